// Package resilience provides resilient execution patterns using fortify.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
)

// ErrRejected is returned when the bulkhead or circuit breaker refused the
// call before the operation ran.
var ErrRejected = errors.New("call rejected by resilience policy")

// Executor runs operations with bulkhead, timeout, circuit breaker and
// optional retry applied.
type Executor[T any] struct {
	bulkhead bulkhead.Bulkhead[T]
	breaker  circuitbreaker.CircuitBreaker[T]
	retry    retry.Retry[T]
	timeout  time.Duration
}

// ExecutorConfig configures the resilient executor.
type ExecutorConfig struct {
	// MaxConcurrent limits concurrent executions.
	MaxConcurrent int

	// CircuitBreakerThreshold is the number of consecutive failures before opening.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration

	// RetryMaxAttempts is the maximum number of attempts. Values below 2
	// disable retry entirely.
	RetryMaxAttempts int

	// RetryInitialDelay is the initial delay between retries.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64

	// NonRetryableErrors are never retried (matched with errors.Is).
	NonRetryableErrors []error

	// DefaultTimeout bounds each call. Zero leaves the caller's deadline alone.
	DefaultTimeout time.Duration
}

// DefaultExecutorConfig returns a configuration with sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent:           4,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        1,
		RetryInitialDelay:       500 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
	}
}

// NewExecutor creates a new resilient executor.
func NewExecutor[T any](config ExecutorConfig) *Executor[T] {
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	threshold := config.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}
	breakerTimeout := config.CircuitBreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}

	e := &Executor[T]{
		bulkhead: bulkhead.New[T](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
		}),
		breaker: circuitbreaker.New[T](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    breakerTimeout,
			Timeout:     breakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounds checked above
			},
		}),
		timeout: config.DefaultTimeout,
	}

	if config.RetryMaxAttempts > 1 {
		multiplier := config.RetryBackoffMultiplier
		if multiplier < 1 {
			multiplier = 2.0
		}
		e.retry = retry.New[T](retry.Config{
			MaxAttempts:        config.RetryMaxAttempts,
			InitialDelay:       config.RetryInitialDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         multiplier,
			NonRetryableErrors: config.NonRetryableErrors,
		})
	}
	return e
}

// Execute runs fn with resilience patterns applied.
// Composition order: Bulkhead → Timeout → Circuit Breaker → Retry.
// When the policy refuses the call before fn runs, the error wraps ErrRejected.
func (e *Executor[T]) Execute(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	called := false
	result, err := e.bulkhead.Execute(ctx, func(ctx context.Context) (T, error) {
		if e.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}

		return e.breaker.Execute(ctx, func(ctx context.Context) (T, error) {
			called = true
			if e.retry != nil {
				return e.retry.Do(ctx, fn)
			}
			return fn(ctx)
		})
	})
	if err != nil && !called {
		return result, errors.Join(ErrRejected, err)
	}
	return result, err
}
