package chat

type State int

const (
	StateIdle State = iota
	StateComposing
	StateSubmitted
	StateAwaitingResponse
	StateRendered
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComposing:
		return "composing"
	case StateSubmitted:
		return "submitted"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateRendered:
		return "rendered"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Composing is never stored; it is Idle with a non-empty input buffer.
var transitions = map[State][]State{
	StateIdle:             {StateSubmitted},
	StateSubmitted:        {StateAwaitingResponse},
	StateAwaitingResponse: {StateRendered, StateFailed},
	StateRendered:         {StateIdle},
	StateFailed:           {StateIdle},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
