package action

import "errors"

// Domain errors for the action catalog.
var (
	// ErrUnknownAction indicates an id outside the catalog.
	ErrUnknownAction = errors.New("unknown action")

	// ErrInvalidParams indicates parameters that fail validation.
	ErrInvalidParams = errors.New("invalid action parameters")
)
