package supervisor

// State is the lifecycle state of a managed process.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// transitions is the allowed state machine:
// Idle -> Running, Running -> Stopping (Stop requested) or Stopped (natural
// exit) or Errored (the key is claimed optimistically before spawn, so a
// spawn failure lands here), Stopping -> Stopped. Stopped and Errored are
// terminal; the next Start for the same key replaces the entry with a fresh
// one.
var transitions = map[State][]State{
	StateIdle:     {StateRunning, StateErrored},
	StateRunning:  {StateStopping, StateStopped, StateErrored},
	StateStopping: {StateStopped},
}

// canTransition reports whether from -> to is a legal transition.
func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
