package resilience

import "time"

// Option adjusts an ExecutorConfig.
type Option func(*ExecutorConfig)

// WithBulkhead caps how many calls may run at once. One serializes calls,
// which is what a single scan target or a rate-limited API wants.
func WithBulkhead(n int) Option {
	return func(c *ExecutorConfig) { c.MaxConcurrent = n }
}

// WithBreaker opens the circuit after threshold consecutive failures and
// keeps it open for openFor.
func WithBreaker(threshold int, openFor time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.CircuitBreakerThreshold = threshold
		c.CircuitBreakerTimeout = openFor
	}
}

// WithRetry makes up to attempts tries with exponential backoff starting at
// initialDelay. Errors matching any of permanent are returned at once.
func WithRetry(attempts int, initialDelay time.Duration, permanent ...error) Option {
	return func(c *ExecutorConfig) {
		c.RetryMaxAttempts = attempts
		c.RetryInitialDelay = initialDelay
		c.NonRetryableErrors = permanent
	}
}

// WithTimeout bounds every call.
func WithTimeout(d time.Duration) Option {
	return func(c *ExecutorConfig) { c.DefaultTimeout = d }
}

// NewExecutorWithOptions applies opts over DefaultExecutorConfig.
func NewExecutorWithOptions[T any](opts ...Option) *Executor[T] {
	cfg := DefaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewExecutor[T](cfg)
}
