package session

// State is the connection state. Transitions only move forward:
// StateNew -> StateConnected -> StateClosed, or StateNew -> StateClosed.
type State int32

const (
	StateNew State = iota
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from s to next is allowed.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateNew:
		return next == StateConnected || next == StateClosed
	case StateConnected:
		return next == StateClosed
	default:
		return false
	}
}

// Session holds the identifiers negotiated by the handshake.
type Session struct {
	ServerCVID int32
	SID        int32
	ServerUUID string
}
