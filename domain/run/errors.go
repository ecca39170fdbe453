package run

import "errors"

// Store errors. Backends wrap driver failures with ErrConnectionFailed or
// ErrOperationTimeout so callers can match them with errors.Is.
var (
	ErrRunNotFound  = errors.New("run not found")
	ErrRunExists    = errors.New("run id already taken")
	ErrInvalidRunID = errors.New("run id must not be empty")

	ErrConnectionFailed = errors.New("run store unreachable")
	ErrOperationTimeout = errors.New("run store deadline exceeded")
)

// ErrRunActive is returned by the service when a scan is requested while
// another one is still in progress.
var ErrRunActive = errors.New("a scan is already running")
