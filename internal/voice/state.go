package voice

// State is the lifecycle phase of a [Session].
type State int32

const (
	// StateIdle is the state of a Session that has not been started.
	StateIdle State = iota

	// StateConnecting means the devices are open and the transport is
	// negotiating the session.
	StateConnecting

	// StateActive means the transport is open: microphone frames flow out
	// and model audio is scheduled for playback. Interruptions do not leave
	// this state.
	StateActive

	// StateClosed is terminal. Every resource has been released.
	StateClosed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// User-facing status lines reported through [Config.OnStatus].
const (
	StatusConnecting   = "Connecting..."
	StatusListening    = "I am listening..."
	StatusError        = "Voice Error"
	StatusNoMicrophone = "Please enable microphone"
)
