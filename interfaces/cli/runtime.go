package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/felixgeelhaar/recon-go/application"
	"github.com/felixgeelhaar/recon-go/domain/action"
	"github.com/felixgeelhaar/recon-go/domain/config"
	"github.com/felixgeelhaar/recon-go/domain/goal"
	infraconfig "github.com/felixgeelhaar/recon-go/infrastructure/config"
	"github.com/felixgeelhaar/recon-go/infrastructure/logging"
	"github.com/felixgeelhaar/recon-go/infrastructure/nmap"
	"github.com/felixgeelhaar/recon-go/infrastructure/planner"
	"github.com/felixgeelhaar/recon-go/infrastructure/storage"
	"github.com/felixgeelhaar/recon-go/infrastructure/telemetry"
)

// loadConfig reads the configuration file (defaults when path is empty)
// and initializes logging from it.
func loadConfig(path string, strict bool, logOutput io.Writer) (*config.Config, error) {
	loader := infraconfig.NewLoaderWithOptions(infraconfig.WithStrictEnv(strict))
	cfg, err := loader.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		NoColor: cfg.Logging.NoColor,
		Output:  logOutput,
	})
	return cfg, nil
}

// goalRegistry returns the built-in goals plus the configured goals file.
func goalRegistry(cfg *config.Config) (*goal.Registry, error) {
	registry := goal.NewBuiltinRegistry()
	if cfg.GoalsFile == "" {
		return registry, nil
	}
	if err := infraconfig.ApplyGoalsFile(registry, cfg.GoalsFile); err != nil {
		return nil, err
	}
	return registry, nil
}

func newPreflight(cfg *config.Config, runner nmap.Runner) *nmap.Preflight {
	return nmap.NewPreflight(nmap.PreflightConfig{
		Binary:    cfg.Nmap.Binary,
		Sudo:      cfg.Nmap.Sudo,
		Execution: cfg.ExecutionEnabled(),
		Resolve:   cfg.Nmap.ResolveTarget,
	}, runner)
}

// runtime is everything a command needs to start scans.
type runtime struct {
	cfg       *config.Config
	goals     *goal.Registry
	service   *application.Service
	telemetry *telemetry.Provider
	stores    *storage.Stores
	watcher   *infraconfig.GoalWatcher
}

// buildRuntime wires the decision-maker, scanner, storage and telemetry
// named by cfg into a service.
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	goals, err := goalRegistry(cfg)
	if err != nil {
		return nil, err
	}

	dm, err := planner.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("decision-maker: %w", err)
	}

	runner := nmap.NewExecRunner()
	executor := nmap.NewExecutor(runner, nmap.ExecutorConfig{
		DryRun:           !cfg.ExecutionEnabled(),
		MaxConcurrent:    cfg.Nmap.Bulkhead,
		BreakerThreshold: cfg.Nmap.BreakerThreshold,
		BreakerTimeout:   cfg.Nmap.BreakerTimeout.Duration(),
	})

	rt := &runtime{cfg: cfg, goals: goals}

	rt.stores, err = storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	rt.telemetry, err = telemetry.New(ctx, cfg.Telemetry, telemetry.WithVersion(Version))
	if err != nil {
		_ = rt.stores.Close()
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	cooling := cfg.Nmap.CoolingPeriod.Duration()
	if !cfg.Nmap.Cooling {
		cooling = 0
	}

	engine, err := application.NewEngineWithOptions(
		application.WithCatalog(action.NewCatalog(cfg.Nmap.CatalogConfig())),
		application.WithExecutor(executor),
		application.WithDecisionMaker(dm),
		application.WithGoals(goals),
		application.WithLimits(cfg.Budget.Limits()),
		application.WithNarrowRanges(cfg.Nmap.NarrowRanges),
		application.WithCooling(cooling),
		application.WithArtifactStore(rt.stores.Artifacts),
		application.WithTelemetry(rt.telemetry),
	)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	rt.service, err = application.NewService(application.ServiceConfig{
		Engine:    engine,
		Preflight: newPreflight(cfg, runner),
		Store:     rt.stores.Runs,
	})
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	runner.OnStderrLine = rt.service.StreamLine

	logging.Debug().
		Add(logging.Component("cli")).
		Add(logging.Str("provider", cfg.LLM.Provider)).
		Add(logging.Str("run_store", cfg.Storage.Runs.Driver)).
		Add(logging.Str("artifact_store", cfg.Storage.Artifacts.Driver)).
		Add(logging.Count("goals", goals.Len())).
		Msg("runtime ready")

	return rt, nil
}

// watchGoals reloads the goals file into the registry until ctx ends.
func (r *runtime) watchGoals(ctx context.Context) error {
	if r.cfg.GoalsFile == "" {
		return nil
	}
	r.watcher = infraconfig.NewGoalWatcher(r.cfg.GoalsFile, r.goals)
	return r.watcher.Start(ctx)
}

// Close cancels any active run and releases every backend.
func (r *runtime) Close(ctx context.Context) error {
	var errs []error
	if r.watcher != nil {
		errs = append(errs, r.watcher.Close())
	}
	if r.service != nil {
		r.service.Close()
	}
	if r.telemetry != nil {
		errs = append(errs, r.telemetry.Shutdown(context.WithoutCancel(ctx)))
	}
	if r.stores != nil {
		errs = append(errs, r.stores.Close())
	}
	return errors.Join(errs...)
}
