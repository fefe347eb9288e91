// Package capture acquires microphone audio as float samples and pumps it,
// framed and encoded, into a realtime transport.
//
// A [Device] opens a [Stream]. [FFmpeg] records from the platform's default
// input through an ffmpeg subprocess, and [Reader] decodes raw PCM from any
// [io.Reader] (a file, a pipe, stdin). [Pump] turns a Stream into
// fixed-size [audio.EncodedFrame] values.
package capture

import (
	"context"
	"errors"

	"github.com/MrWong99/laith/pkg/audio"
)

// ErrUnavailable is returned by [Device.Open] when the input device cannot
// be acquired, typically because permission was denied or no microphone is
// present.
var ErrUnavailable = errors.New("capture: input device unavailable")

// Stream is an open capture stream delivering interleaved float samples.
type Stream interface {
	// Read fills p with interleaved float32 samples in [-1, 1] and returns
	// the number of samples written. It returns io.EOF when the source ends.
	Read(p []float32) (int, error)

	// Format returns the stream's sample rate and channel count.
	Format() audio.Format

	// Close stops capture and releases the device. Close is idempotent and
	// unblocks a pending Read.
	Close() error
}

// Device opens capture streams.
type Device interface {
	// Open acquires the input and starts capturing at (or as close as
	// possible to) want. Failures to acquire the input wrap [ErrUnavailable].
	Open(ctx context.Context, want audio.Format) (Stream, error)
}

// DeviceFunc adapts a function to the [Device] interface.
type DeviceFunc func(ctx context.Context, want audio.Format) (Stream, error)

// Open implements [Device].
func (f DeviceFunc) Open(ctx context.Context, want audio.Format) (Stream, error) {
	return f(ctx, want)
}
