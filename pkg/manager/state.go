package manager

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	// SwitchingChain is a substate of Connected: the session stays usable
	// while the wallet considers the request.
	SwitchingChain
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case SwitchingChain:
		return "switching_chain"
	default:
		return "unknown"
	}
}

// IsConnected reports whether a session is active in s.
func (s State) IsConnected() bool {
	return s == Connected || s == SwitchingChain
}
