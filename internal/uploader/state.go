package uploader

import "fmt"

// State tracks one product through the create phase.
type State string

const (
	StateNotStarted   State = "not_started"
	StateCreating     State = "creating"
	StateCreated      State = "created"
	StateCreateFailed State = "create_failed"
)

// validTransitions guards the per-product state machine. Every destination
// step runs inside StateCreating; there is no way back out of a terminal
// state.
var validTransitions = map[State][]State{
	StateNotStarted: {StateCreating},
	StateCreating:   {StateCreated, StateCreateFailed},
}

func transition(from, to State) (State, error) {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return to, nil
		}
	}
	return from, fmt.Errorf("invalid state transition %s -> %s", from, to)
}
