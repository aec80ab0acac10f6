package scheduling

import "errors"

var (
	// ErrInvalidTransition covers both an illegal source status and a
	// disallowed actor; the record is left untouched either way.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// StateMachine enforces the appointment lifecycle:
// demande -> confirme | refuse, confirme -> annule | termine,
// demande -> annule. Refused, cancelled and completed are terminal.
type StateMachine struct {
	guard Guard
}

func NewStateMachine() *StateMachine {
	return &StateMachine{}
}

// Authorize checks that the transition exists and that the role may drive
// it. It does not touch the store; the conditional write in the repository
// settles races on the current status.
func (m *StateMachine) Authorize(role Role, from, to Status) error {
	if from.Terminal() {
		return ErrInvalidTransition
	}
	if !m.guard.CanTransition(role, from, to) {
		return ErrInvalidTransition
	}
	return nil
}

func (m *StateMachine) Guard() Guard {
	return m.guard
}
