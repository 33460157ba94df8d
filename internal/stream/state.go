package stream

// State is the push channel's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// transitions lists the legal moves out of each state.
// Any state may stay where it is.
var transitions = map[State][]State{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnecting, StateConnected, StateBackoff, StateDisconnected},
	StateConnected:    {StateConnecting, StateBackoff, StateDisconnected},
	StateBackoff:      {StateConnecting, StateDisconnected},
}

func canTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
