// Package mock provides in-memory implementations of [live.Provider] and
// [live.Session] for use in unit tests.
//
// The test drives the session from the server side by calling [Session.Open],
// [Session.Emit] and [Session.Fail]; everything the client sends is recorded
// and can be inspected with [Session.Sent]. The mocks follow the same
// contract as the real transports: Send before Open returns
// [live.ErrNotOpen], EventClosed is emitted exactly once and last.
//
// All mocks are safe for concurrent use.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/laith/pkg/audio"
	"github.com/MrWong99/laith/pkg/provider/live"
)

// ─── Session ──────────────────────────────────────────────────────────────────

// Session is a mock implementation of [live.Session].
type Session struct {
	mu     sync.Mutex
	events chan live.Event
	open   bool
	closed bool
	ended  bool
	sent   []audio.EncodedFrame

	// SendError, if non-nil, is returned by Send once the session is open.
	SendError error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewSession returns an unopened Session.
func NewSession() *Session {
	return &Session{events: make(chan live.Event, 256)}
}

// Events implements [live.Session].
func (s *Session) Events() <-chan live.Event { return s.events }

// Send implements [live.Session].
func (s *Session) Send(frame audio.EncodedFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return live.ErrClosed
	case !s.open:
		return live.ErrNotOpen
	case s.SendError != nil:
		return s.SendError
	}
	s.sent = append(s.sent, frame)
	return nil
}

// Close implements [live.Session]. The first call emits EventClosed and
// closes the event channel.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.closed = true
	s.endLocked()
	return nil
}

// Open marks the session open and emits EventOpened.
func (s *Session) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.open = true
	s.events <- live.Event{Kind: live.EventOpened}
}

// Emit delivers ev to the consumer, as if sent by the server. Events after
// the session ended are dropped.
func (s *Session) Emit(ev live.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.events <- ev
}

// Audio emits an EventAudio carrying pcm at 24 kHz.
func (s *Session) Audio(pcm []byte) {
	s.Emit(live.Event{Kind: live.EventAudio, Audio: pcm, MIMEType: audio.MIMEType(audio.PlaybackRate)})
}

// Interrupt emits an EventInterrupted.
func (s *Session) Interrupt() {
	s.Emit(live.Event{Kind: live.EventInterrupted})
}

// Fail emits EventError followed by EventClosed, as a transport failure does.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.closed = true
	s.events <- live.Event{Kind: live.EventError, Err: err}
	s.endLocked()
}

// Hangup ends the session from the server side without an error.
func (s *Session) Hangup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.endLocked()
}

func (s *Session) endLocked() {
	if s.ended {
		return
	}
	s.ended = true
	s.events <- live.Event{Kind: live.EventClosed}
	close(s.events)
}

// Sent returns a copy of every frame accepted by Send.
func (s *Session) Sent() []audio.EncodedFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.EncodedFrame(nil), s.sent...)
}

// Closed reports whether Close was called or the session ended.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ─── Provider ─────────────────────────────────────────────────────────────────

// ConnectCall records the arguments of a single [Provider.Connect] invocation.
type ConnectCall struct {
	Config live.SessionConfig
}

// Provider is a mock implementation of [live.Provider].
type Provider struct {
	mu sync.Mutex

	// Session is returned by Connect. A fresh Session is created when nil.
	Session *Session

	// ConnectError is returned by Connect when non-nil.
	ConnectError error

	// AutoOpen opens the session immediately after Connect returns.
	AutoOpen bool

	// ConnectCalls records all Connect invocations.
	ConnectCalls []ConnectCall
}

// Connect implements [live.Provider].
func (p *Provider) Connect(_ context.Context, cfg live.SessionConfig) (live.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Config: cfg})
	if p.ConnectError != nil {
		return nil, p.ConnectError
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	if p.AutoOpen {
		p.Session.Open()
	}
	return p.Session, nil
}

// Calls returns a copy of the recorded Connect calls.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ConnectCall(nil), p.ConnectCalls...)
}
