package policy

import "errors"

// Domain errors for policy enforcement.
var (
	// ErrBudgetExceeded indicates the budget limit has been exceeded.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrInvalidLimits indicates run limits that cannot be enforced.
	ErrInvalidLimits = errors.New("invalid limits")
)
