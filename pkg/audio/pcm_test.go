package audio_test

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/laith/pkg/audio"
)

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestPCM16Sample(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"negative half", -0.5, -16384},
		{"full negative", -1, -32768},
		{"full positive saturates", 1, 32767},
		{"above range saturates", 1.5, 32767},
		{"below range saturates", -2, -32768},
		{"nan is silence", float32(math.NaN()), 0},
		{"positive infinity", float32(math.Inf(1)), 32767},
		{"negative infinity", float32(math.Inf(-1)), -32768},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.PCM16Sample(tt.in); got != tt.want {
				t.Errorf("PCM16Sample(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestFloatToPCM16_ZerosRoundTrip(t *testing.T) {
	t.Parallel()
	zeros := make([]float32, audio.FrameSamples)
	pcm := audio.FloatToPCM16(zeros)
	if len(pcm) != audio.FrameSamples*2 {
		t.Fatalf("len = %d, want %d", len(pcm), audio.FrameSamples*2)
	}
	for i, b := range pcm {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}

	frame := audio.EncodePCM(pcm, audio.CaptureRate)
	decoded, err := frame.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	planar, err := audio.PCM16ToFloat(decoded, 1)
	if err != nil {
		t.Fatalf("PCM16ToFloat: %v", err)
	}
	for i, s := range planar[0] {
		if s != 0 {
			t.Fatalf("sample %d = %v, want 0", i, s)
		}
	}
}

func TestFloatToPCM16_LittleEndian(t *testing.T) {
	t.Parallel()
	got := bytesToSamples(audio.FloatToPCM16([]float32{0.25, -0.25, 1, -1}))
	want := []int16{8192, -8192, 32767, -32768}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPCM16ToFloat_Stereo(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{16384, -16384, 0, 32767})
	planar, err := audio.PCM16ToFloat(pcm, 2)
	if err != nil {
		t.Fatalf("PCM16ToFloat: %v", err)
	}
	if len(planar) != 2 || len(planar[0]) != 2 {
		t.Fatalf("shape = %dx%d, want 2x2", len(planar), len(planar[0]))
	}
	if planar[0][0] != 0.5 || planar[1][0] != -0.5 || planar[0][1] != 0 {
		t.Errorf("unexpected samples: %v", planar)
	}
}

func TestPCM16ToFloat_Misaligned(t *testing.T) {
	t.Parallel()
	if _, err := audio.PCM16ToFloat([]byte{1, 2, 3}, 1); !errors.Is(err, audio.ErrMisalignedPCM) {
		t.Errorf("odd bytes: err = %v, want ErrMisalignedPCM", err)
	}
	if _, err := audio.PCM16ToFloat([]byte{1, 2}, 2); !errors.Is(err, audio.ErrMisalignedPCM) {
		t.Errorf("half stereo frame: err = %v, want ErrMisalignedPCM", err)
	}
	if _, err := audio.PCM16ToFloat(nil, 0); err == nil {
		t.Error("expected error for zero channels")
	}
}

func TestEncodeFrame(t *testing.T) {
	t.Parallel()
	f := audio.EncodeFrame(make([]float32, audio.FrameSamples), audio.CaptureRate)
	if f.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType = %q", f.MIMEType)
	}
	raw, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	if len(raw) != 8192 {
		t.Errorf("decoded length = %d, want 8192", len(raw))
	}
}

func TestEncodedFrame_DecodeInvalid(t *testing.T) {
	t.Parallel()
	if _, err := (audio.EncodedFrame{Data: "!!!not base64"}).Decode(); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestParseRate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mime string
		want int
	}{
		{"audio/pcm;rate=24000", 24000},
		{"audio/pcm; rate=16000", 16000},
		{"audio/pcm;RATE=8000", 8000},
		{"audio/pcm", 24000},
		{"audio/pcm;rate=abc", 24000},
		{"audio/pcm;channels=1;rate=44100", 44100},
		{"", 24000},
	}
	for _, tt := range tests {
		if got := audio.ParseRate(tt.mime, 24000); got != tt.want {
			t.Errorf("ParseRate(%q) = %d, want %d", tt.mime, got, tt.want)
		}
	}
}

func TestBufferDuration(t *testing.T) {
	t.Parallel()
	pcm := make([]byte, 12000*2)
	buf, err := audio.DecodeBuffer(pcm, audio.Mono(audio.PlaybackRate))
	if err != nil {
		t.Fatalf("DecodeBuffer: %v", err)
	}
	if got := buf.Duration(); got != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", got)
	}
	if got := audio.Mono(audio.PlaybackRate).Frames(500 * time.Millisecond); got != 12000 {
		t.Errorf("Frames = %d, want 12000", got)
	}
}

func TestFormat_FramesDurationRoundTrip(t *testing.T) {
	t.Parallel()
	for _, rate := range []int{audio.CaptureRate, audio.PlaybackRate, 44100} {
		f := audio.Mono(rate)
		for _, n := range []int{1, 2, 1001, 4097, 123457} {
			d := f.Duration(n)
			if got := f.Frames(d); got != n {
				t.Errorf("%dHz: Frames(Duration(%d)) = %d", rate, n, got)
			}
			if exact := float64(n) / float64(rate) * float64(time.Second); float64(d) < exact-1e-3 {
				t.Errorf("%dHz: Duration(%d) = %v ends before %vns", rate, n, d, exact)
			}
		}
	}
}
