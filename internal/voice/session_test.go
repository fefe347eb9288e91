package voice_test

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/laith/internal/observe"
	"github.com/MrWong99/laith/internal/voice"
	"github.com/MrWong99/laith/pkg/audio"
	"github.com/MrWong99/laith/pkg/audio/capture"
	"github.com/MrWong99/laith/pkg/audio/playback"
	pbmock "github.com/MrWong99/laith/pkg/audio/playback/mock"
	"github.com/MrWong99/laith/pkg/provider/live"
	livemock "github.com/MrWong99/laith/pkg/provider/live/mock"
)

// ─── helpers ──────────────────────────────────────────────────────────────────

type fixture struct {
	provider *livemock.Provider
	remote   *livemock.Session
	dev      *pbmock.Device
	mic      *io.PipeWriter
	stream   *capture.Reader
	session  *voice.Session

	mu          sync.Mutex
	statuses    []string
	transcripts []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		provider: &livemock.Provider{Session: livemock.NewSession()},
		dev:      pbmock.NewDevice(0),
	}
	f.remote = f.provider.Session

	pr, pw := io.Pipe()
	f.mic = pw
	f.stream = capture.NewReader(pr, audio.Mono(audio.CaptureRate), capture.F32LE)

	f.session = voice.New(f.config(t))
	t.Cleanup(func() { _ = f.session.Stop() })
	return f
}

func (f *fixture) config(t *testing.T) voice.Config {
	t.Helper()
	return voice.Config{
		Transport: f.provider,
		Capture: capture.DeviceFunc(func(context.Context, audio.Format) (capture.Stream, error) {
			return f.stream, nil
		}),
		Output: func(context.Context) (playback.Device, error) {
			return f.dev, nil
		},
		Session: live.SessionConfig{VoiceName: "Zephyr"},
		Metrics: testMetrics(t),
		OnStatus: func(s string) {
			f.mu.Lock()
			f.statuses = append(f.statuses, s)
			f.mu.Unlock()
		},
		OnTranscript: func(role, text string) {
			f.mu.Lock()
			f.transcripts = append(f.transcripts, role+": "+text)
			f.mu.Unlock()
		},
	}
}

func (f *fixture) Statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.statuses...)
}

// speak writes n f32le samples of a quiet tone into the microphone pipe.
func (f *fixture) speak(n int) {
	buf := make([]byte, n*4)
	for i := range n {
		v := float32(0.25 * math.Sin(float64(i)/8))
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	go func() { _, _ = f.mic.Write(buf) }()
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func pcmFor(d time.Duration) []byte {
	return make([]byte, audio.Mono(audio.PlaybackRate).Frames(d)*2)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, s *voice.Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close")
	}
}

func startActive(t *testing.T, f *fixture) {
	t.Helper()
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.remote.Open()
	waitFor(t, "active state", func() bool { return f.session.State() == voice.StateActive })
}

// ─── lifecycle ────────────────────────────────────────────────────────────────

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s    voice.State
		want string
	}{
		{voice.StateIdle, "IDLE"},
		{voice.StateConnecting, "CONNECTING"},
		{voice.StateActive, "ACTIVE"},
		{voice.StateClosed, "CLOSED"},
		{voice.State(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestSession_StartConnectsThenOpens(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if got := f.session.State(); got != voice.StateIdle {
		t.Fatalf("initial state = %v, want IDLE", got)
	}
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := f.session.State(); got != voice.StateConnecting {
		t.Errorf("state after Start = %v, want CONNECTING", got)
	}
	if got := f.session.Status(); got != voice.StatusConnecting {
		t.Errorf("status = %q, want %q", got, voice.StatusConnecting)
	}

	calls := f.provider.Calls()
	if len(calls) != 1 || calls[0].Config.VoiceName != "Zephyr" {
		t.Fatalf("connect calls = %+v, want one with voice Zephyr", calls)
	}

	f.remote.Open()
	waitFor(t, "active state", func() bool { return f.session.State() == voice.StateActive })
	if got := f.session.Status(); got != voice.StatusListening {
		t.Errorf("status = %q, want %q", got, voice.StatusListening)
	}
}

func TestSession_StartTwice(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.session.Start(context.Background()); !errors.Is(err, voice.ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestSession_StopBeforeStart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if err := f.session.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := f.session.State(); got != voice.StateClosed {
		t.Errorf("state = %v, want CLOSED", got)
	}
	waitDone(t, f.session)
	if err := f.session.Start(context.Background()); !errors.Is(err, voice.ErrAlreadyStarted) {
		t.Errorf("Start after Stop = %v, want ErrAlreadyStarted", err)
	}
}

func TestSession_CloseBeforeOpenSendsNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.speak(audio.FrameSamples)

	if err := f.session.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if n := len(f.remote.Sent()); n != 0 {
		t.Errorf("sent %d frames before open, want 0", n)
	}
	if f.session.State() != voice.StateClosed {
		t.Errorf("state = %v, want CLOSED", f.session.State())
	}
	for _, s := range f.Statuses() {
		if s == voice.StatusListening {
			t.Error("session reported listening without opening")
		}
	}
}

func TestSession_StopReleasesEverything(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	startActive(t, f)

	f.remote.Audio(pcmFor(time.Second))
	waitFor(t, "scheduled audio", func() bool { return len(f.dev.Starts()) == 1 })

	if err := f.session.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitDone(t, f.session)

	if !f.remote.Closed() {
		t.Error("transport not closed")
	}
	if !f.dev.Closed() {
		t.Error("output device not closed")
	}
	if _, err := f.mic.Write([]byte{0, 0, 0, 0}); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("microphone write after stop = %v, want ErrClosedPipe", err)
	}
	if h := f.dev.Starts()[0].Handle; !h.Finished() {
		t.Error("queued playback still running after stop")
	}

	// Stop is idempotent.
	if err := f.session.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if f.dev.CallCountClose != 1 {
		t.Errorf("device closed %d times, want 1", f.dev.CallCountClose)
	}
}

func TestSession_ContextCancelEndsSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	if err := f.session.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.remote.Open()
	cancel()

	waitDone(t, f.session)
	if !f.remote.Closed() || !f.dev.Closed() {
		t.Error("resources not released after cancel")
	}
}

func TestSession_RemoteHangup(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	startActive(t, f)

	f.remote.Hangup()
	waitDone(t, f.session)
	if f.session.Err() != nil {
		t.Errorf("Err = %v, want nil after clean hangup", f.session.Err())
	}
	if !f.dev.Closed() {
		t.Error("output device not closed")
	}
}

// ─── audio flow ───────────────────────────────────────────────────────────────

func TestSession_MicrophoneFramesSentAfterOpen(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	startActive(t, f)

	f.speak(2 * audio.FrameSamples)
	waitFor(t, "two frames", func() bool { return len(f.remote.Sent()) == 2 })

	for i, fr := range f.remote.Sent() {
		if fr.MIMEType != "audio/pcm;rate=16000" {
			t.Errorf("frame %d mime = %q", i, fr.MIMEType)
		}
		if len(fr.Data) != audio.FrameSamples*2 {
			t.Errorf("frame %d = %d bytes, want %d", i, len(fr.Data), audio.FrameSamples*2)
		}
	}
	waitFor(t, "frame stats", func() bool { return f.session.Stats().FramesSent == 2 })
}

func TestSession_AudioPlaysBackToBack(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	startActive(t, f)

	f.remote.Audio(pcmFor(500 * time.Millisecond))
	f.remote.Audio(pcmFor(500 * time.Millisecond))
	waitFor(t, "two buffers", func() bool { return len(f.dev.Starts()) == 2 })

	starts := f.dev.Starts()
	if starts[0].At != 0 || starts[1].At != 500*time.Millisecond {
		t.Errorf("starts = %v, %v; want 0s, 500ms", starts[0].At, starts[1].At)
	}
	if got := f.session.Stats().FramesReceived; got != 2 {
		t.Errorf("FramesReceived = %d, want 2", got)
	}
}

func TestSession_InterruptStopsQueuedPlayback(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	startActive(t, f)

	for range 3 {
		f.remote.Audio(pcmFor(time.Second))
	}
	waitFor(t, "three buffers", func() bool { return len(f.dev.Starts()) == 3 })

	f.dev.Advance(100 * time.Millisecond)
	f.remote.Interrupt()
	waitFor(t, "interruption", func() bool { return f.session.Stats().Interruptions == 1 })

	for i, c := range f.dev.Starts() {
		if c.Handle.StopCount() != 1 {
			t.Errorf("handle %d stopped %d times, want 1", i, c.Handle.StopCount())
		}
	}
	if got := f.session.Stats().StoppedBuffers; got != 3 {
		t.Errorf("StoppedBuffers = %d, want 3", got)
	}

	// Playback resumes at the current device time, not after the flushed queue.
	f.remote.Audio(pcmFor(time.Second))
	waitFor(t, "resumed buffer", func() bool { return len(f.dev.Starts()) == 4 })
	if at := f.dev.Starts()[3].At; at != 100*time.Millisecond {
		t.Errorf("resumed at %v, want 100ms", at)
	}
	if f.session.State() != voice.StateActive {
		t.Errorf("state = %v, want ACTIVE after interruption", f.session.State())
	}
}

func TestSession_RepeatedInterruptions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	startActive(t, f)

	f.remote.Audio(pcmFor(time.Second))
	f.remote.Interrupt()
	f.remote.Interrupt()
	f.remote.Audio(pcmFor(time.Second))
	f.remote.Interrupt()
	waitFor(t, "three interruptions", func() bool { return f.session.Stats().Interruptions == 3 })

	if got := f.session.Stats().StoppedBuffers; got != 2 {
		t.Errorf("StoppedBuffers = %d, want 2", got)
	}
	for i, c := range f.dev.Starts() {
		if !c.Handle.Finished() {
			t.Errorf("handle %d still playing", i)
		}
	}
}

func TestSession_StopAfterInterruptCyclesReleasesEverything(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	startActive(t, f)

	for i := range 3 {
		f.remote.Audio(pcmFor(time.Second))
		f.remote.Audio(pcmFor(time.Second))
		waitFor(t, "cycle buffers", func() bool { return len(f.dev.Starts()) == 2*(i+1) })
		f.speak(audio.FrameSamples)
		f.dev.Advance(1500 * time.Millisecond)
		f.remote.Interrupt()
		waitFor(t, "cycle interruption", func() bool { return f.session.Stats().Interruptions == int64(i+1) })
	}
	f.remote.Audio(pcmFor(time.Second))
	waitFor(t, "final buffer", func() bool { return len(f.dev.Starts()) == 7 })
	stopped := f.session.Stats().StoppedBuffers

	if err := f.session.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitDone(t, f.session)

	if !f.remote.Closed() {
		t.Error("transport not closed")
	}
	if !f.dev.Closed() {
		t.Error("output device not closed")
	}
	if f.dev.CallCountClose != 1 {
		t.Errorf("device closed %d times, want 1", f.dev.CallCountClose)
	}
	if _, err := f.mic.Write([]byte{0, 0, 0, 0}); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("microphone write after stop = %v, want ErrClosedPipe", err)
	}
	for i, c := range f.dev.Starts() {
		if !c.Handle.Finished() {
			t.Errorf("handle %d still playing", i)
		}
	}
	if got := f.session.Stats().StoppedBuffers; got != stopped {
		t.Errorf("StoppedBuffers = %d after stop, want %d; teardown is not an interruption", got, stopped)
	}
}

func TestSession_DecodeFailureIsSkipped(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	startActive(t, f)

	f.remote.Audio([]byte{1, 2, 3})
	f.remote.Audio(pcmFor(250 * time.Millisecond))
	waitFor(t, "valid buffer", func() bool { return len(f.dev.Starts()) == 1 })

	st := f.session.Stats()
	if st.DecodeFailures != 1 {
		t.Errorf("DecodeFailures = %d, want 1", st.DecodeFailures)
	}
	if at := f.dev.Starts()[0].At; at != 0 {
		t.Errorf("valid buffer starts at %v, want 0", at)
	}
	if f.session.State() != voice.StateActive {
		t.Errorf("state = %v, want ACTIVE", f.session.State())
	}
}

func TestSession_Transcripts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	startActive(t, f)

	f.remote.Emit(live.Event{Kind: live.EventTranscript, Role: live.RoleUser, Text: "hello"})
	f.remote.Emit(live.Event{Kind: live.EventTranscript, Role: live.RoleModel, Text: "hi there"})
	waitFor(t, "transcripts", func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.transcripts) == 2
	})
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transcripts[0] != "user: hello" || f.transcripts[1] != "model: hi there" {
		t.Errorf("transcripts = %q", f.transcripts)
	}
}

// ─── failures ─────────────────────────────────────────────────────────────────

func TestSession_TransportErrorCloses(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	startActive(t, f)

	boom := errors.New("boom")
	f.remote.Fail(boom)
	waitDone(t, f.session)

	if got := f.session.Status(); got != voice.StatusError {
		t.Errorf("status = %q, want %q", got, voice.StatusError)
	}
	if !errors.Is(f.session.Err(), boom) {
		t.Errorf("Err = %v, want wrapping boom", f.session.Err())
	}
	if f.session.State() != voice.StateClosed {
		t.Errorf("state = %v, want CLOSED", f.session.State())
	}
	if !f.dev.Closed() {
		t.Error("output device not closed")
	}
	if calls := f.provider.Calls(); len(calls) != 1 {
		t.Errorf("connect calls = %d, want 1 (no reconnect)", len(calls))
	}
}

func TestSession_MicrophoneUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	cfg := f.config(t)
	cfg.Capture = capture.DeviceFunc(func(context.Context, audio.Format) (capture.Stream, error) {
		return nil, capture.ErrUnavailable
	})
	s := voice.New(cfg)

	err := s.Start(context.Background())
	if !errors.Is(err, voice.ErrDeviceAccess) {
		t.Fatalf("Start = %v, want ErrDeviceAccess", err)
	}
	if !errors.Is(err, capture.ErrUnavailable) {
		t.Errorf("Start = %v, want wrapping ErrUnavailable", err)
	}
	if s.Status() != voice.StatusNoMicrophone {
		t.Errorf("status = %q, want %q", s.Status(), voice.StatusNoMicrophone)
	}
	if s.State() != voice.StateClosed {
		t.Errorf("state = %v, want CLOSED", s.State())
	}
	if len(f.provider.Calls()) != 0 {
		t.Error("transport dialled despite device failure")
	}
	waitDone(t, s)
}

func TestSession_OutputUnavailableReleasesMicrophone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	cfg := f.config(t)
	cfg.Output = func(context.Context) (playback.Device, error) {
		return nil, errors.New("no speaker")
	}
	s := voice.New(cfg)

	if err := s.Start(context.Background()); !errors.Is(err, voice.ErrDeviceAccess) {
		t.Fatalf("Start = %v, want ErrDeviceAccess", err)
	}
	if _, err := f.mic.Write([]byte{0, 0, 0, 0}); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("microphone write = %v, want ErrClosedPipe", err)
	}
}

func TestSession_ConnectFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.provider.ConnectError = errors.New("dial refused")

	err := f.session.Start(context.Background())
	if err == nil || errors.Is(err, voice.ErrDeviceAccess) {
		t.Fatalf("Start = %v, want connect error", err)
	}
	if got := f.session.Status(); got != voice.StatusError {
		t.Errorf("status = %q, want %q", got, voice.StatusError)
	}
	if !f.dev.Closed() {
		t.Error("output device not closed after connect failure")
	}
	waitDone(t, f.session)
}
