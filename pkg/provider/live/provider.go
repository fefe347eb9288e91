// Package live defines the Provider interface for realtime voice backends.
//
// A live provider opens a bidirectional session with a remote voice model:
// the caller streams encoded microphone frames in with [Session.Send] and
// consumes everything the model produces from a single ordered event
// channel, [Session.Events]. Audio, interruptions, transcripts, errors and
// the terminal close all travel over that one channel, so a single consumer
// goroutine observes them in exactly the order the server sent them.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"errors"

	"github.com/MrWong99/laith/pkg/audio"
)

var (
	// ErrNotOpen is returned by [Session.Send] before the session has
	// emitted [EventOpened]. Nothing is transmitted.
	ErrNotOpen = errors.New("live: session not open")

	// ErrClosed is returned by [Session.Send] after the session was closed
	// or failed.
	ErrClosed = errors.New("live: session closed")
)

// EventKind discriminates the variants of [Event].
type EventKind int

const (
	// EventOpened signals that the remote side accepted the session. Audio
	// may be sent from this point on.
	EventOpened EventKind = iota

	// EventAudio carries one decoded PCM16 chunk of model speech.
	EventAudio

	// EventInterrupted signals that the model detected the user speaking
	// and abandoned the rest of its current turn.
	EventInterrupted

	// EventTranscript carries a transcription fragment of user or model
	// speech.
	EventTranscript

	// EventTurnComplete signals that the model finished its turn.
	EventTurnComplete

	// EventError carries a transport or server error. The session closes
	// after emitting it.
	EventError

	// EventClosed is always the last event. The channel is closed after it.
	EventClosed
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "OPENED"
	case EventAudio:
		return "AUDIO"
	case EventInterrupted:
		return "INTERRUPTED"
	case EventTranscript:
		return "TRANSCRIPT"
	case EventTurnComplete:
		return "TURN_COMPLETE"
	case EventError:
		return "ERROR"
	case EventClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Transcript speaker roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Event is one message from a live session. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind EventKind

	// Audio is raw PCM16 for EventAudio.
	Audio []byte

	// MIMEType names the audio format for EventAudio, e.g.
	// "audio/pcm;rate=24000".
	MIMEType string

	// Role is RoleUser or RoleModel for EventTranscript.
	Role string

	// Text is the transcription fragment for EventTranscript.
	Text string

	// Err is set for EventError.
	Err error
}

// SessionConfig is the initial configuration for a new live session.
type SessionConfig struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// VoiceName selects a prebuilt voice, e.g. "Zephyr".
	VoiceName string

	// SystemInstruction is the system-level prompt for the session.
	SystemInstruction string

	// Transcripts requests input and output speech transcription events.
	Transcripts bool
}

// Session is an open realtime channel to a voice model.
type Session interface {
	// Events returns the ordered event stream. It is closed after
	// EventClosed. The consumer must drain it until closed.
	Events() <-chan Event

	// Send transmits one encoded audio frame. It returns ErrNotOpen before
	// EventOpened and ErrClosed after the session ended.
	Send(frame audio.EncodedFrame) error

	// Close ends the session. It is idempotent; EventClosed is emitted
	// exactly once regardless of how many times Close is called.
	Close() error
}

// Provider opens live sessions.
type Provider interface {
	// Connect dials the remote service and starts session setup. The
	// returned Session emits EventOpened once the server accepts the setup.
	// A dial failure is returned directly; failures after dialling arrive
	// as EventError.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
