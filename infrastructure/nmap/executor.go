package nmap

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/felixgeelhaar/recon-go/domain/action"
	"github.com/felixgeelhaar/recon-go/infrastructure/logging"
	"github.com/felixgeelhaar/recon-go/infrastructure/resilience"
)

// Status classifies an invocation outcome.
type Status string

// Outcome statuses.
const (
	StatusOK          Status = "ok"
	StatusFailed      Status = "failed"
	StatusTimeout     Status = "timeout"
	StatusUnavailable Status = "unavailable"
	StatusSkipped     Status = "skipped"
)

// Outcome is the record of one attempted invocation.
type Outcome struct {
	ActionID  action.ID
	Argv      []string
	Command   string
	Stdout    string
	Stderr    string
	ExitCode  int
	Status    Status
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Invoked reports whether the scanner process actually ran.
func (o Outcome) Invoked() bool {
	switch o.Status {
	case StatusOK, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// ExecutorConfig configures the executor.
type ExecutorConfig struct {
	// DryRun reports every invocation as skipped without running it.
	DryRun bool

	// MaxConcurrent bounds concurrent scanner processes across runs.
	MaxConcurrent int

	// BreakerThreshold is consecutive failed invocations before the
	// executor refuses new ones.
	BreakerThreshold int

	// BreakerTimeout is how long refusals last.
	BreakerTimeout time.Duration
}

// Executor performs execute-kind invocations. It never returns an error:
// every failure becomes an Outcome status. Invocations are never retried.
type Executor struct {
	runner Runner
	guard  *resilience.Executor[RunResult]
	dryRun bool
	now    func() time.Time
}

var errNonZeroExit = errors.New("nmap exited with non-zero status")

// NewExecutor creates an executor.
func NewExecutor(runner Runner, config ExecutorConfig) *Executor {
	return &Executor{
		runner: runner,
		guard: resilience.NewExecutorWithOptions[RunResult](
			resilience.WithBulkhead(config.MaxConcurrent),
			resilience.WithBreaker(config.BreakerThreshold, config.BreakerTimeout),
		),
		dryRun: config.DryRun,
		now:    time.Now,
	}
}

// DryRun reports whether invocations are simulated.
func (e *Executor) DryRun() bool {
	return e.dryRun
}

// Execute runs the invocation under its own timeout.
func (e *Executor) Execute(ctx context.Context, inv action.Invocation) Outcome {
	out := Outcome{
		ActionID:  inv.ActionID,
		Argv:      inv.Argv,
		Command:   inv.Command(),
		StartedAt: e.now(),
	}

	if inv.Kind != action.KindExecute || len(inv.Argv) == 0 {
		out.Status = StatusSkipped
		out.Error = fmt.Sprintf("%s is not an executable action", inv.ActionID)
		return out
	}
	if e.dryRun {
		out.Status = StatusSkipped
		return out
	}

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	var last RunResult
	_, err := e.guard.Execute(runCtx, func(ctx context.Context) (RunResult, error) {
		res, err := e.runner.Run(ctx, inv.Argv)
		last = res
		if err != nil {
			return res, err
		}
		if res.TimedOut || res.ExitCode != 0 {
			return res, errNonZeroExit
		}
		return res, nil
	})

	out.Stdout = last.Stdout
	out.Stderr = last.Stderr
	out.ExitCode = last.ExitCode
	out.Duration = last.Duration

	switch {
	case err == nil:
		out.Status = StatusOK
	case errors.Is(err, resilience.ErrRejected):
		out.Status = StatusUnavailable
		out.Error = err.Error()
	case errors.Is(err, exec.ErrNotFound):
		out.Status = StatusUnavailable
		out.Error = err.Error()
	case last.TimedOut || errors.Is(runCtx.Err(), context.DeadlineExceeded):
		out.Status = StatusTimeout
		out.Error = fmt.Sprintf("timed out after %s", inv.Timeout)
	default:
		out.Status = StatusFailed
		if !errors.Is(err, errNonZeroExit) {
			out.Error = err.Error()
		}
	}

	logging.Debug().
		Add(logging.Component("nmap")).
		Add(logging.Action(inv.ActionID.String())).
		Add(logging.Status(string(out.Status))).
		Add(logging.ExitCode(out.ExitCode)).
		Add(logging.Duration(out.Duration)).
		Msg("invocation finished")

	return out
}

// DisplayOutput returns the human-readable output of an outcome: stderr
// (nmap -vv progress) when present, a summary of the XML otherwise.
func (o Outcome) DisplayOutput(summary func(xml string) string) string {
	if o.Status == StatusSkipped {
		return "(dry run)"
	}
	lines := scanLines(o.Stderr)
	if len(lines) > 0 {
		return o.Stderr
	}
	if summary != nil {
		return summary(o.Stdout)
	}
	return o.Stdout
}
