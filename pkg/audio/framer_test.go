package audio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/laith/pkg/audio"
)

func TestFramer_EmitsFixedFrames(t *testing.T) {
	t.Parallel()
	f := audio.NewFramer(0)
	if f.Size() != audio.FrameSamples {
		t.Fatalf("Size = %d, want %d", f.Size(), audio.FrameSamples)
	}

	var frames [][]float32
	emit := func(fr []float32) error {
		frames = append(frames, fr)
		return nil
	}

	// 3000 + 3000 + 3000 = 9000 samples -> two frames and 808 pending.
	for i := range 3 {
		chunk := make([]float32, 3000)
		for j := range chunk {
			chunk[j] = float32(i*3000+j) / 10000
		}
		if err := f.Write(chunk, emit); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	for i, fr := range frames {
		if len(fr) != audio.FrameSamples {
			t.Errorf("frame %d len = %d", i, len(fr))
		}
	}
	if got := frames[1][0]; got != float32(audio.FrameSamples)/10000 {
		t.Errorf("second frame starts at %v, want continuation", got)
	}
	if f.Buffered() != 9000-2*audio.FrameSamples {
		t.Errorf("Buffered = %d", f.Buffered())
	}

	f.Reset()
	if f.Buffered() != 0 {
		t.Errorf("Buffered after Reset = %d", f.Buffered())
	}
}

func TestFramer_EmitError(t *testing.T) {
	t.Parallel()
	f := audio.NewFramer(4)
	wantErr := errors.New("sink full")
	calls := 0
	err := f.Write(make([]float32, 12), func([]float32) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("emit calls = %d, want 1", calls)
	}
}

func TestFramer_FramesAreIndependent(t *testing.T) {
	t.Parallel()
	f := audio.NewFramer(2)
	var frames [][]float32
	_ = f.Write([]float32{1, 2, 3, 4}, func(fr []float32) error {
		frames = append(frames, fr)
		return nil
	})
	frames[0][0] = 99
	if frames[1][0] != 3 {
		t.Errorf("frames share storage: %v", frames)
	}
}

func TestResampleFloat(t *testing.T) {
	t.Parallel()
	in := []float32{0, 1, 0, -1}
	if got := audio.ResampleFloat(in, 16000, 16000); len(got) != 4 {
		t.Errorf("same rate len = %d", len(got))
	}
	up := audio.ResampleFloat(in, 8000, 16000)
	if len(up) != 8 {
		t.Fatalf("upsample len = %d, want 8", len(up))
	}
	if up[1] != 0.5 {
		t.Errorf("interpolated sample = %v, want 0.5", up[1])
	}
	down := audio.ResampleFloat(make([]float32, 48000), 48000, 16000)
	if len(down) != 16000 {
		t.Errorf("downsample len = %d, want 16000", len(down))
	}
}

func TestDownmixInterleave(t *testing.T) {
	t.Parallel()
	mono := audio.Downmix([]float32{1, 0, 0.5, 0.5, 9}, 2)
	if len(mono) != 2 || mono[0] != 0.5 || mono[1] != 0.5 {
		t.Errorf("Downmix = %v", mono)
	}
	inter := audio.Interleave([][]float32{{1, 2}, {3, 4}})
	want := []float32{1, 3, 2, 4}
	for i := range want {
		if inter[i] != want[i] {
			t.Errorf("Interleave[%d] = %v, want %v", i, inter[i], want[i])
		}
	}
}

// seekBuffer is an in-memory io.WriteSeeker.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if need := s.pos + len(p); need > len(s.buf) {
		s.buf = append(s.buf, make([]byte, need-len(s.buf))...)
	}
	copy(s.buf[s.pos:], p)
	s.pos += len(p)
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	s.pos = int(offset)
	return offset, nil
}

func TestWAVWriter_PatchesHeader(t *testing.T) {
	t.Parallel()
	dst := &seekBuffer{}
	w := audio.NewWAVWriter(dst, audio.Mono(audio.PlaybackRate))
	if _, err := w.Write(make([]byte, 480)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write(make([]byte, 20)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !bytes.HasPrefix(dst.buf, []byte("RIFF")) {
		t.Fatal("missing RIFF tag")
	}
	if got := binary.LittleEndian.Uint32(dst.buf[40:44]); got != 500 {
		t.Errorf("data size = %d, want 500", got)
	}
	if got := binary.LittleEndian.Uint32(dst.buf[24:28]); got != audio.PlaybackRate {
		t.Errorf("sample rate = %d", got)
	}
	if _, err := w.Write([]byte{0, 0}); err == nil {
		t.Error("expected error writing after Close")
	}
}

func TestEncodeWAV(t *testing.T) {
	t.Parallel()
	out, err := audio.EncodeWAV(make([]byte, 100), audio.Mono(audio.CaptureRate))
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if len(out) != 144 {
		t.Errorf("len = %d, want 144", len(out))
	}
	if _, err := audio.EncodeWAV(nil, audio.Format{}); err == nil {
		t.Error("expected error for zero sample rate")
	}
}
