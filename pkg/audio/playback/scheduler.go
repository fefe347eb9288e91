package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/laith/pkg/audio"
)

// Scheduler queues decoded buffers on a [Device] back-to-back.
//
// It keeps the start time for the next buffer (the playback clock) and the
// set of handles still playing. Each Schedule starts its buffer at
// max(next, device.Now()) and advances next by the buffer's duration, so a
// burst of frames arriving faster than real time plays gaplessly, while a
// frame arriving after the queue has drained starts immediately.
//
// All methods are safe for concurrent use. Handles are removed from the
// queue by a watcher goroutine when the device reports them done.
type Scheduler struct {
	dev      Device
	channels int

	mu   sync.Mutex
	next time.Duration
	// run is the gapless sequence next belongs to: buffers chained from
	// runStart at runRate, runFrames frames so far. Deriving next from the
	// frame count keeps per-buffer rounding from accumulating.
	runStart  time.Duration
	runRate   int
	runFrames int
	queue   map[uint64]Handle
	seq     uint64
	stopped int
	closed  bool
	wg      sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// SchedulerOption configures a [Scheduler].
type SchedulerOption func(*Scheduler)

// WithChannels sets the channel count payloads are interleaved with.
// Defaults to 1.
func WithChannels(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.channels = n
		}
	}
}

// NewScheduler returns a Scheduler for dev with the playback clock set to
// the device's current time.
func NewScheduler(dev Device, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		dev:      dev,
		channels: 1,
		queue:    make(map[uint64]Handle),
	}
	for _, o := range opts {
		o(s)
	}
	s.next = dev.Now()
	return s
}

// Schedule decodes pcm as interleaved PCM16 at rate and queues it for
// playback. It returns the device time the buffer is scheduled to start.
//
// A payload that cannot be decoded returns an error wrapping [ErrDecode]
// and leaves the clock and queue untouched.
func (s *Scheduler) Schedule(pcm []byte, rate int) (time.Duration, error) {
	if rate <= 0 {
		rate = s.dev.SampleRate()
	}
	buf, err := audio.DecodeBuffer(pcm, audio.Format{SampleRate: rate, Channels: s.channels})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return s.ScheduleBuffer(buf)
}

// ScheduleBuffer queues an already decoded buffer.
func (s *Scheduler) ScheduleBuffer(buf *audio.Buffer) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	start := max(s.next, s.dev.Now())
	h, err := s.dev.Start(buf, start)
	if err != nil {
		return 0, fmt.Errorf("playback: start buffer: %w", err)
	}
	if start != s.next || buf.SampleRate != s.runRate {
		s.runStart, s.runRate, s.runFrames = start, buf.SampleRate, 0
	}
	s.runFrames += buf.Len()
	s.next = s.runStart + audio.Format{SampleRate: s.runRate}.Duration(s.runFrames)

	s.seq++
	id := s.seq
	s.queue[id] = h
	s.wg.Add(1)
	go s.watch(id, h)
	return start, nil
}

// watch removes a handle from the queue once it completes.
func (s *Scheduler) watch(id uint64, h Handle) {
	defer s.wg.Done()
	<-h.Done()
	s.mu.Lock()
	delete(s.queue, id)
	s.mu.Unlock()
}

// Interrupt stops every queued buffer, empties the queue and resets the
// playback clock to zero. The next scheduled buffer therefore starts at the
// device's current time. It returns the number of handles stopped.
func (s *Scheduler) Interrupt(reason InterruptReason) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.queue)
	for id, h := range s.queue {
		h.Stop()
		delete(s.queue, id)
	}
	s.next, s.runStart, s.runFrames = 0, 0, 0
	if reason == ServerInterrupt {
		s.stopped += n
	}
	if n > 0 {
		slog.Debug("playback interrupted", "reason", reason, "stopped", n)
	}
	return n
}

// Pending returns the number of buffers scheduled or playing.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Next returns the playback clock: the earliest start time for the next
// buffer.
func (s *Scheduler) Next() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Stopped returns the total number of handles stopped by server
// interruptions. Buffers cut by Close are not counted.
func (s *Scheduler) Stopped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Device returns the output device the scheduler plays on.
func (s *Scheduler) Device() Device { return s.dev }

// Close stops and clears everything queued, then closes the device.
// Close is idempotent.
func (s *Scheduler) Close() error {
	s.closeOnce.Do(func() {
		s.Interrupt(Teardown)

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if err := s.dev.Close(); err != nil {
			s.closeErr = fmt.Errorf("playback: close device: %w", err)
		}
		s.wg.Wait()
	})
	return s.closeErr
}
