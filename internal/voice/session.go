// Package voice runs a realtime spoken conversation with a live model.
//
// A [Session] owns the microphone stream, the playback device and the live
// transport for the duration of one conversation. A single event-loop
// goroutine consumes the transport's ordered event stream: model audio is
// queued on a [playback.Scheduler] and server interruptions flush that queue
// so the model stops talking as soon as the user speaks over it. Microphone
// frames are pumped to the transport from a second goroutine once the
// session is open.
//
// Every exit path (Stop, context cancellation, transport error, remote
// close) converges on the same cleanup, which releases the microphone,
// closes the transport, stops all queued playback and closes the output
// device exactly once.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/laith/internal/observe"
	"github.com/MrWong99/laith/pkg/audio"
	"github.com/MrWong99/laith/pkg/audio/capture"
	"github.com/MrWong99/laith/pkg/audio/playback"
	"github.com/MrWong99/laith/pkg/provider/live"
)

var (
	// ErrDeviceAccess is returned by [Session.Start] when the microphone or
	// the output device cannot be opened. The session never becomes active.
	ErrDeviceAccess = errors.New("voice: audio device unavailable")

	// ErrAlreadyStarted is returned by a second call to [Session.Start].
	ErrAlreadyStarted = errors.New("voice: session already started")
)

// OutputFunc opens the playback device for a session.
type OutputFunc func(ctx context.Context) (playback.Device, error)

// Config holds the dependencies of a [Session].
type Config struct {
	// Transport opens the live model session. Required.
	Transport live.Provider

	// Capture opens the microphone. Required.
	Capture capture.Device

	// Output opens the playback device. Required.
	Output OutputFunc

	// Session is passed to Transport.Connect.
	Session live.SessionConfig

	// FrameSize is the number of samples per microphone frame. Zero means
	// [audio.FrameSamples].
	FrameSize int

	// Metrics receives voice instrumentation. Nil uses
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// OnStatus, if set, is called with each new user-facing status line.
	OnStatus func(status string)

	// OnTranscript, if set, is called for every transcription fragment.
	// role is [live.RoleUser] or [live.RoleModel].
	OnTranscript func(role, text string)
}

// Stats is a snapshot of a session's counters.
type Stats struct {
	FramesSent     int64
	FramesReceived int64
	DecodeFailures int64
	Interruptions  int64
	StoppedBuffers int64
}

// Session is one realtime voice conversation. Create it with [New], begin it
// with [Session.Start] and end it with [Session.Stop]. A Session cannot be
// restarted.
//
// All methods are safe for concurrent use.
type Session struct {
	cfg     Config
	metrics *observe.Metrics

	mu      sync.Mutex
	state   State
	status  string
	err     error
	started bool
	stopped bool
	cancel  context.CancelFunc

	stream    capture.Stream
	sched     *playback.Scheduler
	transport live.Session

	releaseMic  sync.Once
	cleanupOnce sync.Once
	cleanupErr  error
	done        chan struct{}

	framesSent     atomic.Int64
	framesReceived atomic.Int64
	decodeFailures atomic.Int64
	interruptions  atomic.Int64
	stoppedBuffers atomic.Int64
}

// New returns an idle Session.
func New(cfg Config) *Session {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Session{
		cfg:     cfg,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Start opens the microphone and the output device, then connects the
// transport. It returns once the transport has been dialled; the session
// becomes [StateActive] when the server accepts the setup. Cancelling ctx
// later ends the session as [Session.Stop] does.
//
// Device failures set [StatusNoMicrophone] and return [ErrDeviceAccess].
// A dial failure sets [StatusError]. In both cases the session is closed
// and every resource opened so far is released.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.state == StateClosed {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	s.setState(StateConnecting)
	s.setStatus(StatusConnecting)

	stream, err := s.cfg.Capture.Open(ctx, audio.Mono(audio.CaptureRate))
	if err != nil {
		s.abort(StatusNoMicrophone, fmt.Errorf("%w: microphone: %w", ErrDeviceAccess, err))
		return s.Err()
	}
	s.stream = stream

	dev, err := s.cfg.Output(ctx)
	if err != nil {
		s.closeStream()
		s.abort(StatusNoMicrophone, fmt.Errorf("%w: output: %w", ErrDeviceAccess, err))
		return s.Err()
	}
	s.sched = playback.NewScheduler(dev)

	dialStart := time.Now()
	transport, err := s.cfg.Transport.Connect(ctx, s.cfg.Session)
	if err != nil {
		s.metrics.RecordProviderError(ctx, "live", "voice")
		s.closeStream()
		if cerr := s.sched.Close(); cerr != nil {
			slog.Warn("voice: close output device", "err", cerr)
		}
		s.abort(StatusError, fmt.Errorf("voice: connect: %w", err))
		return s.Err()
	}
	s.transport = transport
	s.metrics.ActiveVoiceSessions.Add(ctx, 1)

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	if s.stopped {
		cancel()
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		defer s.closeStream()
		return s.run(gctx, g, dialStart)
	})

	go func() {
		err := g.Wait()
		cancel()
		s.cleanup()
		s.metrics.ActiveVoiceSessions.Add(context.WithoutCancel(ctx), -1)
		s.mu.Lock()
		if s.err == nil && err != nil {
			s.err = err
		}
		s.state = StateClosed
		s.mu.Unlock()
		slog.Info("voice session closed",
			"frames_sent", s.framesSent.Load(),
			"frames_received", s.framesReceived.Load(),
			"interruptions", s.interruptions.Load(),
			"decode_failures", s.decodeFailures.Load(),
		)
		close(s.done)
	}()

	return nil
}

// run is the event loop. It owns all scheduler and state transitions driven
// by the transport and returns when the transport reports EventClosed or ctx
// is cancelled.
func (s *Session) run(ctx context.Context, g *errgroup.Group, dialStart time.Time) error {
	events := s.transport.Events()
	pumping := false
	for {
		select {
		case <-ctx.Done():
			_ = s.transport.Close()
			for range events {
			}
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case live.EventOpened:
				s.metrics.RecordDuration(ctx, s.metrics.LiveConnectDuration, "live", dialStart)
				s.setState(StateActive)
				s.setStatus(StatusListening)
				if !pumping {
					pumping = true
					g.Go(func() error { return s.pump(ctx) })
				}
			case live.EventAudio:
				s.play(ctx, ev)
			case live.EventInterrupted:
				n := s.sched.Interrupt(playback.ServerInterrupt)
				s.interruptions.Add(1)
				s.stoppedBuffers.Add(int64(n))
				s.metrics.RecordInterruption(ctx, n)
				slog.Debug("voice: playback interrupted", "stopped", n)
			case live.EventTranscript:
				if s.cfg.OnTranscript != nil {
					s.cfg.OnTranscript(ev.Role, ev.Text)
				}
			case live.EventTurnComplete:
				slog.Debug("voice: model turn complete", "pending", s.sched.Pending())
			case live.EventError:
				slog.Error("voice: transport error", "err", ev.Err)
				s.metrics.RecordProviderError(ctx, "live", "voice")
				s.setErr(fmt.Errorf("voice: transport: %w", ev.Err))
				s.setStatus(StatusError)
			case live.EventClosed:
				for range events {
				}
				return nil
			}
		}
	}
}

// play schedules one chunk of model audio. Undecodable chunks are logged,
// counted and skipped.
func (s *Session) play(ctx context.Context, ev live.Event) {
	rate := audio.ParseRate(ev.MIMEType, audio.PlaybackRate)
	if _, err := s.sched.Schedule(ev.Audio, rate); err != nil {
		if errors.Is(err, playback.ErrClosed) {
			return
		}
		s.decodeFailures.Add(1)
		s.metrics.VoiceDecodeFailures.Add(ctx, 1)
		slog.Warn("voice: skipping undecodable audio", "bytes", len(ev.Audio), "err", err)
		return
	}
	s.framesReceived.Add(1)
	s.metrics.VoiceFramesReceived.Add(ctx, 1)
}

// pump streams microphone frames to the transport until the microphone is
// released.
func (s *Session) pump(ctx context.Context) error {
	p := capture.NewPump(s.stream, s.transport,
		capture.WithFrameSize(s.cfg.FrameSize),
		capture.WithOnFrame(func() {
			s.framesSent.Add(1)
			s.metrics.VoiceFramesSent.Add(ctx, 1)
		}),
	)
	err := p.Run(ctx)
	if err == nil || errors.Is(err, live.ErrClosed) || ctx.Err() != nil {
		return nil
	}
	slog.Error("voice: microphone pump failed", "err", err)
	s.setStatus(StatusError)
	return err
}

// Stop ends the session and blocks until every resource is released. It is
// idempotent and may be called before Start, in which case the session
// moves straight to [StateClosed]. The returned error reports failures
// while releasing devices, not the cause of the session ending (see
// [Session.Err]).
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.started = true
		s.state = StateClosed
		s.mu.Unlock()
		close(s.done)
		return nil
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-s.done
	return s.cleanupErr
}

// cleanup releases the transport, the microphone and the playback device.
// Runs once.
func (s *Session) cleanup() {
	s.cleanupOnce.Do(func() {
		var errs []error
		if s.transport != nil {
			if err := s.transport.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close transport: %w", err))
			}
		}
		s.closeStream()
		if s.sched != nil {
			if n := s.sched.Pending(); n > 0 {
				slog.Debug("voice: stopping queued playback", "pending", n)
			}
			if err := s.sched.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close output: %w", err))
			}
		}
		s.cleanupErr = errors.Join(errs...)
	})
}

func (s *Session) closeStream() {
	s.releaseMic.Do(func() {
		if s.stream == nil {
			return
		}
		if err := s.stream.Close(); err != nil {
			slog.Warn("voice: close microphone", "err", err)
		}
	})
}

// abort closes a session that failed before its event loop started.
func (s *Session) abort(status string, err error) {
	slog.Error("voice: start failed", "err", err)
	s.setStatus(status)
	s.mu.Lock()
	s.err = err
	s.state = StateClosed
	s.mu.Unlock()
	close(s.done)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	if s.cfg.OnStatus != nil {
		s.cfg.OnStatus(status)
	}
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the latest user-facing status line.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the first error that ended or failed the session, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session has reached [StateClosed] and released
// its resources.
func (s *Session) Done() <-chan struct{} { return s.done }

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		FramesSent:     s.framesSent.Load(),
		FramesReceived: s.framesReceived.Load(),
		DecodeFailures: s.decodeFailures.Load(),
		Interruptions:  s.interruptions.Load(),
		StoppedBuffers: s.stoppedBuffers.Load(),
	}
}
