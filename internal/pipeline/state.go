package pipeline

import (
	"errors"
	"fmt"
)

// State is a step of the job state machine.
type State string

const (
	StateInit       State = "init"
	StatePreflight  State = "preflight"
	StateSafetyGate State = "safety_gate"
	StateImagePath  State = "image_path"
	StateVideoPath  State = "video_path"
	StateDone       State = "done"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
// Every state may jump to StateDone on failure.
var validTransitions = map[State][]State{
	StateInit:       {StatePreflight, StateDone},
	StatePreflight:  {StateSafetyGate, StateDone},
	StateSafetyGate: {StateImagePath, StateVideoPath, StateDone},
	StateImagePath:  {StateDone},
	StateVideoPath:  {StateDone},
	StateDone:       {},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
