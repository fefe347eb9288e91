// Package playback schedules decoded model audio on an output clock so that
// successive buffers play back-to-back without gaps, and stops everything
// queued when the remote model signals an interruption.
//
// The [Device] interface abstracts the output. [Context] is a software
// implementation that mixes scheduled buffers in fixed quanta and writes the
// result as PCM16 to any [io.Writer], typically the stdin of an external
// player process (see [Command]) or a WAV file.
package playback

import (
	"errors"
	"time"

	"github.com/MrWong99/laith/pkg/audio"
)

// ErrDecode is returned by [Scheduler.Schedule] when a payload cannot be
// decoded as PCM16.
var ErrDecode = errors.New("playback: decode failed")

// ErrClosed is returned when scheduling onto a closed device or scheduler.
var ErrClosed = errors.New("playback: closed")

// Device is an audio output with its own clock.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Now returns the device's current playback position. It is
	// monotonically non-decreasing.
	Now() time.Duration

	// SampleRate returns the rate in Hz the device renders at.
	SampleRate() int

	// Start schedules buf to begin playing at device time at. A time in the
	// past starts the buffer immediately.
	Start(buf *audio.Buffer, at time.Duration) (Handle, error)

	// Close stops all playing buffers and releases the output. Close is
	// idempotent.
	Close() error
}

// Handle controls one scheduled buffer.
type Handle interface {
	// Stop halts the buffer. Stopping a finished or stopped handle is a no-op.
	Stop()

	// Done is closed when the buffer finishes playing or is stopped, or the
	// device is closed.
	Done() <-chan struct{}
}

// InterruptReason identifies why queued playback was cut short.
type InterruptReason int

const (
	// ServerInterrupt indicates that the remote model detected the user
	// speaking over it and discarded the rest of its turn.
	ServerInterrupt InterruptReason = iota

	// Teardown indicates that the owning session is shutting down.
	Teardown
)

// String returns the human-readable name of the interrupt reason.
func (r InterruptReason) String() string {
	switch r {
	case ServerInterrupt:
		return "SERVER_INTERRUPT"
	case Teardown:
		return "TEARDOWN"
	default:
		return "UNKNOWN"
	}
}
