package application

import (
	"context"
	"time"

	"github.com/felixgeelhaar/recon-go/domain/action"
	"github.com/felixgeelhaar/recon-go/domain/artifact"
	"github.com/felixgeelhaar/recon-go/domain/goal"
	"github.com/felixgeelhaar/recon-go/domain/policy"
	"github.com/felixgeelhaar/recon-go/infrastructure/planner"
	"github.com/felixgeelhaar/recon-go/infrastructure/telemetry"
)

// Option configures the engine.
type Option func(*EngineConfig)

// WithCatalog sets the action catalog.
func WithCatalog(c *action.Catalog) Option {
	return func(cfg *EngineConfig) {
		cfg.Catalog = c
	}
}

// WithExecutor sets the invocation executor.
func WithExecutor(e Executor) Option {
	return func(cfg *EngineConfig) {
		cfg.Executor = e
	}
}

// WithDecisionMaker sets the decision-maker.
func WithDecisionMaker(d planner.DecisionMaker) Option {
	return func(cfg *EngineConfig) {
		cfg.DecisionMaker = d
	}
}

// WithGoals sets the goal registry.
func WithGoals(r *goal.Registry) Option {
	return func(cfg *EngineConfig) {
		cfg.Goals = r
	}
}

// WithLimits sets the per-run limits.
func WithLimits(l policy.Limits) Option {
	return func(cfg *EngineConfig) {
		cfg.Limits = l
	}
}

// WithNarrowRanges drops fixed port-scan variants already covered.
func WithNarrowRanges(enabled bool) Option {
	return func(cfg *EngineConfig) {
		cfg.Menu.NarrowRanges = enabled
	}
}

// WithCooling sets the pause after each invocation.
func WithCooling(d time.Duration) Option {
	return func(cfg *EngineConfig) {
		cfg.Cooling = d
	}
}

// WithArtifactStore keeps raw scanner output in s.
func WithArtifactStore(s artifact.Store) Option {
	return func(cfg *EngineConfig) {
		cfg.Artifacts = s
	}
}

// WithTelemetry sets the tracing and metrics provider.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(cfg *EngineConfig) {
		cfg.Telemetry = p
	}
}

// WithClock replaces the wall clock and the sleep used for waits and
// cooling.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(cfg *EngineConfig) {
		cfg.Now = now
		cfg.Sleep = sleep
	}
}

// NewEngineWithOptions creates an engine with functional options.
func NewEngineWithOptions(opts ...Option) (*Engine, error) {
	config := EngineConfig{}
	for _, opt := range opts {
		opt(&config)
	}
	return NewEngine(config)
}
