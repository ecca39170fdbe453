package goal

import "errors"

// Domain errors for goals.
var (
	// ErrGoalNotFound indicates an unknown goal id.
	ErrGoalNotFound = errors.New("goal not found")

	// ErrInvalidGoal indicates a malformed goal definition.
	ErrInvalidGoal = errors.New("invalid goal")

	// ErrDuplicateGoal indicates two goals share an id.
	ErrDuplicateGoal = errors.New("duplicate goal id")
)
