package link

// State is the lifecycle state of the link to the flight controller.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHandshake
	StateReady
	StateSending
	StateFaulted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateAwaitingHandshake:
		return "AWAITING_HANDSHAKE"
	case StateReady:
		return "READY"
	case StateSending:
		return "SENDING"
	case StateFaulted:
		return "FAULTED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Connected reports whether a handshaken session is open in this state.
func (s State) Connected() bool {
	return s == StateReady || s == StateSending
}
