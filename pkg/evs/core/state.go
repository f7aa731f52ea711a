package core

// State is one of the five protocol FSM states of spec 4.4.
type State int

const (
	StateClosed State = iota
	StateJoining
	StateLeaving
	StateRecovery
	StateOperational
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateJoining:
		return "JOINING"
	case StateLeaving:
		return "LEAVING"
	case StateRecovery:
		return "RECOVERY"
	case StateOperational:
		return "OPERATIONAL"
	default:
		return "UNKNOWN"
	}
}

// allowedTransitions encodes the table in spec 4.4; any pair not present
// here is fatal (types.ProtocolViolation).
var allowedTransitions = map[State]map[State]bool{
	StateClosed:      {StateJoining: true},
	StateJoining:     {StateLeaving: true, StateRecovery: true},
	StateLeaving:     {StateClosed: true},
	StateRecovery:    {StateLeaving: true, StateRecovery: true, StateOperational: true},
	StateOperational: {StateLeaving: true, StateRecovery: true},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to State) bool {
	edges, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}
