package capture_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/laith/pkg/audio"
	"github.com/MrWong99/laith/pkg/audio/capture"
)

func f32Bytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

// recorder is a FrameSink remembering every frame.
type recorder struct {
	mu     sync.Mutex
	frames []audio.EncodedFrame
	err    error
}

func (r *recorder) Send(f audio.EncodedFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestReader_F32LE(t *testing.T) {
	t.Parallel()
	src := bytes.NewReader(f32Bytes([]float32{0.5, -0.25, 1}))
	r := capture.NewReader(src, audio.Mono(16000), capture.F32LE)

	buf := make([]float32, 2)
	n, err := r.Read(buf)
	if err != nil || n != 2 {
		t.Fatalf("Read = %d, %v", n, err)
	}
	if buf[0] != 0.5 || buf[1] != -0.25 {
		t.Errorf("samples = %v", buf)
	}
	n, err = r.Read(buf)
	if err != nil || n != 1 || buf[0] != 1 {
		t.Fatalf("partial Read = %d, %v, %v", n, err, buf[:n])
	}
	if _, err := r.Read(buf); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want EOF", err)
	}
}

func TestReader_S16LE(t *testing.T) {
	t.Parallel()
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint16(raw, uint16(16384))
	v := int16(-32768)
	binary.LittleEndian.PutUint16(raw[2:], uint16(v))
	r := capture.NewReader(bytes.NewReader(raw), audio.Mono(16000), capture.S16LE)

	buf := make([]float32, 2)
	if n, err := r.Read(buf); err != nil || n != 2 {
		t.Fatalf("Read = %d, %v", n, err)
	}
	if buf[0] != 0.5 || buf[1] != -1 {
		t.Errorf("samples = %v", buf)
	}
}

func TestReader_CloseUnblocks(t *testing.T) {
	t.Parallel()
	pr, pw := io.Pipe()
	defer pw.Close()
	r := capture.NewReader(pr, audio.Mono(16000), capture.F32LE)

	done := make(chan error, 1)
	go func() {
		_, err := r.Read(make([]float32, 16))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("err = %v, want EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock after Close")
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestReader_Pacing(t *testing.T) {
	t.Parallel()
	// 1600 samples at 16 kHz = 100ms of audio.
	src := bytes.NewReader(f32Bytes(make([]float32, 1600)))
	r := capture.NewReader(src, audio.Mono(16000), capture.F32LE, capture.WithPacing())

	start := time.Now()
	buf := make([]float32, 400)
	for {
		if _, err := r.Read(buf); err != nil {
			break
		}
	}
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Errorf("paced read took %v, want about 100ms", elapsed)
	}
}

func TestParseEncoding(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]capture.Encoding{"": capture.F32LE, "F32LE": capture.F32LE, "s16le": capture.S16LE} {
		got, err := capture.ParseEncoding(in)
		if err != nil || got != want {
			t.Errorf("ParseEncoding(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := capture.ParseEncoding("mulaw"); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestPump_FramesAndEncodes(t *testing.T) {
	t.Parallel()
	// 2.5 frames of audio: two full frames are sent, the partial is dropped.
	samples := make([]float32, audio.FrameSamples*5/2)
	for i := range samples {
		samples[i] = 0.5
	}
	stream := capture.NewReader(bytes.NewReader(f32Bytes(samples)), audio.Mono(audio.CaptureRate), capture.F32LE)
	sink := &recorder{}
	var hooks int
	p := capture.NewPump(stream, sink, capture.WithOnFrame(func() { hooks++ }))

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sink.count() != 2 {
		t.Fatalf("frames = %d, want 2", sink.count())
	}
	if hooks != 2 {
		t.Errorf("onFrame calls = %d, want 2", hooks)
	}
	f := sink.frames[0]
	if f.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType = %q", f.MIMEType)
	}
	raw, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	if len(raw) != audio.FrameSamples*2 {
		t.Errorf("frame bytes = %d, want %d", len(raw), audio.FrameSamples*2)
	}
	if got := int16(binary.LittleEndian.Uint16(raw)); got != 16384 {
		t.Errorf("first sample = %d, want 16384", got)
	}
}

func TestPump_DownmixesAndResamples(t *testing.T) {
	t.Parallel()
	// Stereo 48 kHz, 3 frames worth after conversion to 16 kHz mono.
	frames := audio.FrameSamples * 3 * 3
	samples := make([]float32, frames*2)
	stream := capture.NewReader(bytes.NewReader(f32Bytes(samples)), audio.Format{SampleRate: 48000, Channels: 2}, capture.F32LE)
	sink := &recorder{}
	if err := capture.NewPump(stream, sink).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sink.count(); got < 2 || got > 3 {
		t.Errorf("frames = %d, want about 3", got)
	}
}

func TestPump_SinkErrorStops(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("transport closed")
	stream := capture.NewReader(bytes.NewReader(f32Bytes(make([]float32, audio.FrameSamples*4))), audio.Mono(audio.CaptureRate), capture.F32LE)
	sink := &recorder{err: wantErr}
	err := capture.NewPump(stream, sink).Run(context.Background())
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

func TestPump_CancelAndClose(t *testing.T) {
	t.Parallel()
	pr, pw := io.Pipe()
	defer pw.Close()
	stream := capture.NewReader(pr, audio.Mono(audio.CaptureRate), capture.F32LE)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- capture.NewPump(stream, &recorder{}).Run(ctx) }()

	cancel()
	_ = stream.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel and close")
	}
}

func TestFFmpeg_Args(t *testing.T) {
	t.Parallel()
	d := &capture.FFmpeg{InputArgs: []string{"-f", "alsa", "-i", "hw:0"}}
	args := d.Args(audio.Mono(16000))
	for _, want := range [][]string{{"-f", "alsa"}, {"-ar", "16000"}, {"-ac", "1"}, {"-f", "f32le"}} {
		if !containsPair(args, want[0], want[1]) {
			t.Errorf("args %v missing %v", args, want)
		}
	}
	if args[len(args)-1] != "-" {
		t.Errorf("last arg = %q, want stdout", args[len(args)-1])
	}
}

func containsPair(args []string, k, v string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == k && args[i+1] == v {
			return true
		}
	}
	return false
}

func TestFFmpeg_MissingBinaryIsUnavailable(t *testing.T) {
	t.Parallel()
	d := &capture.FFmpeg{Command: "laith-no-such-ffmpeg-binary"}
	_, err := d.Open(context.Background(), audio.Mono(16000))
	if !errors.Is(err, capture.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestDefaultInputArgs(t *testing.T) {
	t.Parallel()
	if !slices.Contains(capture.DefaultInputArgs(), "-i") {
		t.Error("default input args lack -i")
	}
}

func TestFFmpeg_CustomCommandS16LE(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	pcm := make([]byte, 8)
	for i, v := range []int16{0, 16384, -16384, 32767} {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	path := filepath.Join(t.TempDir(), "mic.raw")
	if err := os.WriteFile(path, pcm, 0o644); err != nil {
		t.Fatal(err)
	}

	d := &capture.FFmpeg{Command: "cat", CommandArgs: []string{path}, Encoding: capture.S16LE}
	stream, err := d.Open(context.Background(), audio.Mono(16000))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	var got []float32
	buf := make([]float32, 16)
	for {
		n, err := stream.Read(buf)
		got = append(got, buf[:n]...)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.Fatalf("Read: %v", err)
			}
			break
		}
	}
	want := []float32{0, 0.5, -0.5, 32767.0 / 32768}
	if !slices.Equal(got, want) {
		t.Errorf("samples = %v, want %v", got, want)
	}
}
