// Package mock provides an in-memory implementation of [playback.Device] for
// use in unit tests.
//
// The device clock is manual: it only moves when the test calls
// [Device.Advance], and handles whose buffers have fully elapsed are
// completed at that point. Every Start call is recorded.
//
// All methods are safe for concurrent use.
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/laith/pkg/audio"
	"github.com/MrWong99/laith/pkg/audio/playback"
)

// StartCall records the arguments of a single [Device.Start] invocation.
type StartCall struct {
	// At is the requested start time.
	At time.Duration

	// Duration is the buffer's playback length.
	Duration time.Duration

	// Handle is the handle returned to the caller.
	Handle *Handle
}

// Device is a mock implementation of [playback.Device].
type Device struct {
	mu sync.Mutex

	// Rate is returned by SampleRate. Defaults to 24000 if zero.
	Rate int

	// StartError, if non-nil, is returned by Start.
	StartError error

	// CloseError is returned by Close.
	CloseError error

	now    time.Duration
	closed bool

	// StartCalls records all Start invocations in order.
	StartCalls []StartCall

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewDevice returns a Device whose clock starts at now.
func NewDevice(now time.Duration) *Device {
	return &Device{now: now}
}

// Now implements [playback.Device].
func (d *Device) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

// SampleRate implements [playback.Device].
func (d *Device) SampleRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Rate == 0 {
		return audio.PlaybackRate
	}
	return d.Rate
}

// Start implements [playback.Device].
func (d *Device) Start(buf *audio.Buffer, at time.Duration) (playback.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.StartError != nil {
		return nil, d.StartError
	}
	if d.closed {
		return nil, playback.ErrClosed
	}
	h := &Handle{
		Start: at,
		End:   at + buf.Duration(),
		done:  make(chan struct{}),
	}
	d.StartCalls = append(d.StartCalls, StartCall{At: at, Duration: buf.Duration(), Handle: h})
	return h, nil
}

// Advance moves the clock forward by dt and completes every handle whose
// buffer has finished playing.
func (d *Device) Advance(dt time.Duration) {
	d.mu.Lock()
	d.now += dt
	now := d.now
	calls := append([]StartCall(nil), d.StartCalls...)
	d.mu.Unlock()
	for _, c := range calls {
		if c.Handle.End <= now {
			c.Handle.finish()
		}
	}
}

// Close implements [playback.Device]. It completes all outstanding handles.
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.CallCountClose++
	calls := append([]StartCall(nil), d.StartCalls...)
	err := d.CloseError
	d.mu.Unlock()
	for _, c := range calls {
		c.Handle.finish()
	}
	return err
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Starts returns a copy of the recorded Start calls.
func (d *Device) Starts() []StartCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]StartCall(nil), d.StartCalls...)
}

// Handle is a mock implementation of [playback.Handle].
type Handle struct {
	// Start and End bound the scheduled playback interval.
	Start time.Duration
	End   time.Duration

	mu        sync.Mutex
	stopCount int
	once      sync.Once
	done      chan struct{}
}

// Stop implements [playback.Handle].
func (h *Handle) Stop() {
	h.mu.Lock()
	h.stopCount++
	h.mu.Unlock()
	h.finish()
}

// Done implements [playback.Handle].
func (h *Handle) Done() <-chan struct{} { return h.done }

// StopCount returns how many times Stop was called.
func (h *Handle) StopCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopCount
}

// Finished reports whether the handle has completed or been stopped.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) finish() {
	h.once.Do(func() { close(h.done) })
}
