package scan

import "errors"

// Domain errors for scan state handling.
var (
	// ErrInvalidTarget indicates the target failed validation.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrInvalidPort indicates a port outside 1..65535.
	ErrInvalidPort = errors.New("invalid port")

	// ErrMalformedOutput indicates scanner output could not be parsed.
	ErrMalformedOutput = errors.New("malformed scanner output")
)
