// Package audio holds the PCM primitives shared by the voice pipeline:
// float/int16 conversion, fixed-size framing, the base64 wire encoding used
// by realtime transports, resampling, and WAV output.
//
// Capture devices live in [github.com/MrWong99/laith/pkg/audio/capture] and
// the output clock and buffer scheduler in
// [github.com/MrWong99/laith/pkg/audio/playback].
package audio

import (
	"fmt"
	"time"
)

const (
	// CaptureRate is the sample rate in Hz of microphone audio sent upstream.
	CaptureRate = 16000

	// PlaybackRate is the sample rate in Hz of model audio received downstream.
	PlaybackRate = 24000

	// FrameSamples is the number of mono samples in one captured frame.
	FrameSamples = 4096
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Mono returns a single-channel Format at rate.
func Mono(rate int) Format {
	return Format{SampleRate: rate, Channels: 1}
}

// BytesPerFrame returns the size in bytes of one PCM16 sample frame
// (one sample per channel).
func (f Format) BytesPerFrame() int {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	return 2 * ch
}

// Duration returns how long n sample frames play at this format's rate,
// rounded up to the nanosecond. Frames(Duration(n)) == n for every n.
func (f Format) Duration(frames int) time.Duration {
	if f.SampleRate <= 0 || frames <= 0 {
		return 0
	}
	rate := int64(f.SampleRate)
	return time.Duration((int64(frames)*int64(time.Second) + rate - 1) / rate)
}

// Frames returns the sample frame nearest to offset d.
func (f Format) Frames(d time.Duration) int {
	if d <= 0 || f.SampleRate <= 0 {
		return 0
	}
	return int((int64(d)*int64(f.SampleRate) + int64(time.Second)/2) / int64(time.Second))
}

// String returns a human-readable description, e.g. "24000Hz mono".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Buffer is a decoded block of float samples, one slice per channel, ready
// to be handed to an output device.
type Buffer struct {
	// Channels holds planar float32 samples in [-1, 1], one slice per channel.
	// All slices have equal length.
	Channels [][]float32

	// SampleRate in Hz.
	SampleRate int
}

// Len returns the number of sample frames in the buffer.
func (b *Buffer) Len() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil {
		return 0
	}
	return Format{SampleRate: b.SampleRate, Channels: len(b.Channels)}.Duration(b.Len())
}
