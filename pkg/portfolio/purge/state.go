// Package purge implements the guarded bulk-deletion protocol: selected
// resource groups are purged only after re-authentication and a countdown,
// by a remote purge function.
//
//	idle → awaiting_password_confirmation → countdown_armed → executing → completed | failed
//
// Cancel returns to idle from any state before executing. Dismiss returns
// a terminal state to idle.
package purge

import (
	"fmt"

	"github.com/tendant/portfolio-content/pkg/portfolio"
)

// State is a protocol state.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingPassword State = "awaiting_password_confirmation"
	StateCountdownArmed   State = "countdown_armed"
	StateExecuting        State = "executing"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// validTransitions maps the current state to the states it may move to.
var validTransitions = map[State]map[State]bool{
	StateIdle:             {StateAwaitingPassword: true},
	StateAwaitingPassword: {StateCountdownArmed: true, StateIdle: true},
	StateCountdownArmed:   {StateExecuting: true, StateIdle: true},
	StateExecuting:        {StateCompleted: true, StateFailed: true},
	StateCompleted:        {StateIdle: true},
	StateFailed:           {StateIdle: true},
}

// Terminal reports whether s waits for a dismissal.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Transition error codes.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeSelectionLocked   = "SELECTION_LOCKED"
	CodeSuperseded        = "SUPERSEDED"
)

// TransitionError is an action attempted in a state that does not allow it.
type TransitionError struct {
	Code    string
	From    State
	To      State
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TransitionError) Is(target error) bool {
	return target == portfolio.ErrInvalidTransition
}

func canTransition(from, to State) bool {
	return validTransitions[from][to]
}

func invalidTransition(from, to State) *TransitionError {
	return &TransitionError{
		Code:    CodeInvalidTransition,
		From:    from,
		To:      to,
		Message: fmt.Sprintf("transition %s → %s is not allowed", from, to),
	}
}
