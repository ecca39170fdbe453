// Package application runs the reconnaissance decision loop and the
// single-run service the control surfaces talk to.
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/recon-go/domain/action"
	"github.com/felixgeelhaar/recon-go/domain/artifact"
	"github.com/felixgeelhaar/recon-go/domain/goal"
	"github.com/felixgeelhaar/recon-go/domain/guardrail"
	"github.com/felixgeelhaar/recon-go/domain/ledger"
	"github.com/felixgeelhaar/recon-go/domain/policy"
	"github.com/felixgeelhaar/recon-go/domain/run"
	"github.com/felixgeelhaar/recon-go/domain/scan"
	"github.com/felixgeelhaar/recon-go/infrastructure/logging"
	"github.com/felixgeelhaar/recon-go/infrastructure/nmap"
	"github.com/felixgeelhaar/recon-go/infrastructure/planner"
	"github.com/felixgeelhaar/recon-go/infrastructure/statemachine"
	"github.com/felixgeelhaar/recon-go/infrastructure/telemetry"
)

// Executor performs execute-kind invocations. *nmap.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, inv action.Invocation) nmap.Outcome
}

// Engine drives decision loops. It holds only read-only collaborators and
// may run several targets concurrently; every run gets its own state.
type Engine struct {
	catalog   *action.Catalog
	executor  Executor
	decider   planner.DecisionMaker
	goals     *goal.Registry
	limits    policy.Limits
	menu      action.MenuOptions
	cooling   time.Duration
	artifacts artifact.Store
	telemetry *telemetry.Provider
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// EngineConfig contains configuration for the engine.
type EngineConfig struct {
	Catalog       *action.Catalog
	Executor      Executor
	DecisionMaker planner.DecisionMaker
	Goals         *goal.Registry
	Limits        policy.Limits
	Menu          action.MenuOptions

	// Cooling is the pause after each real invocation. Zero disables it.
	Cooling time.Duration

	// Artifacts keeps the raw XML of each invocation when set.
	Artifacts artifact.Store

	Telemetry *telemetry.Provider

	// Now and Sleep replace the wall clock, mainly in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a new engine with the given configuration.
func NewEngine(config EngineConfig) (*Engine, error) {
	if config.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if config.DecisionMaker == nil {
		return nil, errors.New("decision-maker is required")
	}
	if err := config.Limits.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		catalog:   config.Catalog,
		executor:  config.Executor,
		decider:   config.DecisionMaker,
		goals:     config.Goals,
		limits:    config.Limits,
		menu:      config.Menu,
		cooling:   config.Cooling,
		artifacts: config.Artifacts,
		telemetry: config.Telemetry,
		now:       config.Now,
		sleep:     config.Sleep,
	}

	if e.catalog == nil {
		e.catalog = action.NewCatalog(action.DefaultCatalogConfig())
	}
	if e.goals == nil {
		e.goals = goal.NewBuiltinRegistry()
	}
	if e.limits == (policy.Limits{}) {
		e.limits = policy.DefaultLimits()
	}
	if e.telemetry == nil {
		e.telemetry = telemetry.NewNoop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.sleep == nil {
		e.sleep = sleepContext
	}

	return e, nil
}

// Goals returns the goal registry runs are resolved against.
func (e *Engine) Goals() *goal.Registry {
	return e.goals
}

// Limits returns the per-run limits.
func (e *Engine) Limits() policy.Limits {
	return e.limits
}

// Request starts one run.
type Request struct {
	// RunID identifies the run. A UUID is generated when empty.
	RunID string

	Target string
	GoalID string

	// OnUpdate receives a copy of the record after every observable step.
	// It is called from the run's goroutine and must not block for long.
	OnUpdate func(*run.Record)
}

// Validate resolves the request's target and goal without running anything.
func (e *Engine) Validate(req Request) (scan.Target, goal.Spec, error) {
	target, err := scan.ParseTarget(req.Target)
	if err != nil {
		return "", goal.Spec{}, err
	}
	spec, err := e.goals.Get(req.GoalID)
	if err != nil {
		return "", goal.Spec{}, err
	}
	return target, spec, nil
}

// Run executes the decision loop until the goal is achieved, the
// decision-maker chooses done, or a budget runs out. Budget exhaustion is a
// normal end and returns a nil error. An invalid target or unknown goal is
// returned before any turn, with a nil record.
func (e *Engine) Run(ctx context.Context, req Request) (*run.Record, error) {
	target, spec, err := e.Validate(req)
	if err != nil {
		return nil, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	started := e.now()
	rec := run.NewRecord(runID, target.String(), spec.ID, spec.DisplayLabel(), e.limits.MaxTurns, started)

	machine, err := statemachine.NewRunMachine()
	if err != nil {
		return nil, fmt.Errorf("failed to create state machine: %w", err)
	}

	sr := &scanRun{
		engine:   e,
		rec:      rec,
		spec:     spec,
		target:   target,
		state:    scan.NewState(target),
		meter:    policy.NewRunMeter(e.limits, started),
		ledger:   ledger.New(runID),
		interp:   statemachine.NewInterpreter(machine, statemachine.NewContext(rec)),
		onUpdate: req.OnUpdate,
	}
	return sr.run(ctx)
}

// scanRun is the per-run state of one decision loop.
type scanRun struct {
	engine   *Engine
	rec      *run.Record
	spec     goal.Spec
	target   scan.Target
	state    *scan.State
	meter    *policy.RunMeter
	ledger   *ledger.Ledger
	interp   *statemachine.Interpreter
	onUpdate func(*run.Record)
}

func (r *scanRun) run(ctx context.Context) (*run.Record, error) {
	e := r.engine
	metrics := e.telemetry.Metrics()

	ctx, span := telemetry.StartRun(ctx, e.telemetry.Tracer(), r.rec.ID, r.target.String(), r.spec.ID)

	r.interp.Start()
	if err := r.interp.Transition(run.StatusRunning, "started"); err != nil {
		telemetry.EndSpan(span, err)
		return r.rec, err
	}
	r.ledger.RecordRunStarted(r.target.String(), r.spec.ID)
	metrics.RunStarted(ctx)

	logging.Info().
		Add(logging.RunID(r.rec.ID)).
		Add(logging.Target(r.target.String())).
		Add(logging.Goal(r.spec.ID)).
		Msg("run started")
	r.publish()

	for {
		if err := ctx.Err(); err != nil {
			r.rec.Error = err.Error()
			r.finish(ctx, run.StatusError, run.StopCancelled)
			telemetry.EndSpan(span, err)
			return r.rec, err
		}

		if name, exhausted := r.meter.Exhausted(e.now()); exhausted {
			r.recordBudget(name)
			r.finish(ctx, run.StatusBudget, run.StopBudget)
			telemetry.EndSpan(span, nil)
			return r.rec, nil
		}

		if goal.Achieved(r.state, r.spec) {
			r.ledger.RecordGoalAchieved(r.meter.Turns(), r.spec.ID)
			r.finish(ctx, run.StatusDone, run.StopGoalAchieved)
			telemetry.EndSpan(span, nil)
			return r.rec, nil
		}

		if r.turn(ctx) {
			r.finish(ctx, run.StatusDone, run.StopPlannerDone)
			telemetry.EndSpan(span, nil)
			return r.rec, nil
		}
	}
}

// turn runs one decision turn and reports whether the decision-maker chose
// to terminate.
func (r *scanRun) turn(ctx context.Context) bool {
	e := r.engine
	metrics := e.telemetry.Metrics()

	_ = r.meter.StartTurn()
	turn := r.meter.Turns()
	r.rec.Turn = turn

	ctx, span := telemetry.StartTurn(ctx, e.telemetry.Tracer(), turn)
	defer span.End()
	metrics.RecordTurn(ctx, r.spec.ID)

	menu := action.ComputeMenu(r.state, r.spec, e.menu)
	r.ledger.RecordTurnStarted(turn, menu.Strings())

	logging.Debug().
		Add(logging.RunID(r.rec.ID)).
		Add(logging.Turn(turn)).
		Add(logging.Menu(menu.Strings())).
		Msg("turn started")

	prompt := planner.Prompt{
		RunID:       r.rec.ID,
		Turn:        turn,
		Goal:        r.spec,
		Menu:        menu,
		Snapshot:    r.state.PromptText(),
		Definitions: e.catalog.Definitions(),
	}

	start := e.now()
	reply, err := e.decider.Decide(ctx, prompt)
	metrics.RecordDecision(ctx, e.now().Sub(start), err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		// A decision-maker that keeps failing is bounded like a stream of
		// rejected replies.
		r.meter.RecordRejection()
		r.ledger.RecordDecisionError(turn, err)
		logging.Warn().
			Add(logging.RunID(r.rec.ID)).
			Add(logging.Turn(turn)).
			Add(logging.ErrorField(err)).
			Msg("decision-maker failed, turn skipped")
		r.publish()
		return false
	}

	decision, err := guardrail.Validate(reply, menu)
	if err != nil {
		r.reject(ctx, turn, err, reply, menu)
		return false
	}

	inv, err := e.catalog.Build(decision.ActionID, r.target, decision.Params)
	if err != nil {
		r.reject(ctx, turn, &guardrail.Rejection{Code: guardrail.CodeInvalidParams, Detail: err.Error()}, reply, menu)
		return false
	}

	r.meter.RecordAcceptance()
	r.state.SetLastPlan(decision.Plan)
	r.ledger.RecordDecision(turn, ledger.DecisionDetails{
		ActionID:  string(decision.ActionID),
		Params:    decision.Params,
		Reason:    decision.Reason,
		Reasoning: decision.Reasoning,
		Plan:      decision.Plan,
	})

	logging.Info().
		Add(logging.RunID(r.rec.ID)).
		Add(logging.Turn(turn)).
		Add(logging.Action(decision.ActionID.String())).
		Add(logging.Reason(decision.Reason)).
		Msg("decision accepted")

	switch inv.Kind {
	case action.KindTerminate:
		return true
	case action.KindWait:
		r.wait(ctx, turn, inv)
	default:
		r.execute(ctx, turn, inv)
	}
	return false
}

func (r *scanRun) reject(ctx context.Context, turn int, err error, reply string, menu action.Menu) {
	var rej *guardrail.Rejection
	if !errors.As(err, &rej) {
		rej = &guardrail.Rejection{Code: guardrail.CodeNotJSON, Detail: err.Error()}
	}

	r.meter.RecordRejection()
	r.rec.Rejections++
	r.ledger.RecordRejection(turn, ledger.RejectionDetails{
		Code:   string(rej.Code),
		Detail: rej.Detail,
		Reply:  guardrail.Compact(reply),
		Menu:   menu.Strings(),
	})
	r.engine.telemetry.Metrics().RecordRejection(ctx, string(rej.Code))

	logging.Warn().
		Add(logging.RunID(r.rec.ID)).
		Add(logging.Turn(turn)).
		Add(logging.Rejection(string(rej.Code))).
		Add(logging.Str("detail", rej.Detail)).
		Msg("reply rejected")
	r.publish()
}

func (r *scanRun) wait(ctx context.Context, turn int, inv action.Invocation) {
	r.rec.CurrentAction = inv.ActionID.String()
	r.rec.CurrentCommand = ""
	r.publish()

	r.ledger.RecordWait(turn, inv.Wait)
	_ = r.engine.sleep(ctx, inv.Wait)

	scan.Merge(r.state, scan.Result{ActionID: inv.ActionID.String(), Effect: inv.Effect, Simulated: true})
	r.rec.CurrentAction = ""
	r.publish()
}

func (r *scanRun) execute(ctx context.Context, turn int, inv action.Invocation) {
	e := r.engine
	id := inv.ActionID.String()
	command := inv.Command()

	r.rec.CurrentAction = id
	r.rec.CurrentCommand = command
	r.ledger.RecordInvocation(turn, id, command)
	r.publish()

	logging.Info().
		Add(logging.RunID(r.rec.ID)).
		Add(logging.Turn(turn)).
		Add(logging.Action(id)).
		Add(logging.Command(command)).
		Msg("executing")

	out := e.executor.Execute(ctx, inv)
	if out.Invoked() {
		_ = r.meter.RecordInvocation()
	}
	e.telemetry.Metrics().RecordInvocation(ctx, id, string(out.Status), out.Duration)
	r.ledger.RecordInvocationDone(turn, ledger.InvocationDetails{
		ActionID: id,
		Command:  command,
		Status:   string(out.Status),
		ExitCode: out.ExitCode,
		Duration: out.Duration,
	})

	// A refused invocation produced no evidence, so the state is untouched.
	if out.Status != nmap.StatusUnavailable {
		change := scan.Merge(r.state, scan.Result{
			ActionID:  id,
			Effect:    inv.Effect,
			Invoked:   out.Invoked(),
			Simulated: out.Status == nmap.StatusSkipped,
			Output:    out.Stdout,
		})
		r.recordMerge(turn, id, change)
	}

	stage := run.Stage{
		ActionID:  id,
		Params:    inv.Params,
		Command:   command,
		Status:    string(out.Status),
		Output:    out.DisplayOutput(summarizeXML),
		StartedAt: out.StartedAt,
		Duration:  out.Duration,
	}
	if out.Error != "" && strings.TrimSpace(stage.Output) == "" {
		stage.Output = out.Error
	}
	stage.Artifact = r.keepArtifact(ctx, id, out)

	r.rec.Stages = append(r.rec.Stages, stage)
	r.rec.CurrentAction = ""
	r.rec.CurrentCommand = ""
	r.publish()

	if e.cooling > 0 && out.Invoked() {
		_ = e.sleep(ctx, e.cooling)
	}
}

func (r *scanRun) recordMerge(turn int, id string, change scan.Change) {
	d := ledger.MergeDetails{
		ActionID:    id,
		NewPorts:    len(change.NewPorts),
		NewServices: len(change.NewServices),
		OSGuess:     change.OSGuess,
	}
	if change.ReachabilitySet {
		d.Reachability = string(r.state.Reachability())
	}
	if change.ParseError != nil {
		d.ParseError = change.ParseError.Error()
	}
	r.ledger.RecordMerge(turn, d)
}

// keepArtifact stores the raw XML of a real invocation and returns the
// artifact id, or "" when nothing was kept.
func (r *scanRun) keepArtifact(ctx context.Context, id string, out nmap.Outcome) string {
	store := r.engine.artifacts
	if store == nil || !out.Invoked() || strings.TrimSpace(out.Stdout) == "" {
		return ""
	}

	name := artifact.ScanName(r.target.String(), id, out.StartedAt)
	ref, err := store.Store(ctx, strings.NewReader(out.Stdout),
		artifact.ScanOptions(r.rec.ID, r.target.String(), id, name))
	if err != nil {
		logging.Warn().
			Add(logging.RunID(r.rec.ID)).
			Add(logging.Action(id)).
			Add(logging.ErrorField(err)).
			Msg("failed to store scan output")
		return ""
	}
	return ref.ID
}

func (r *scanRun) recordBudget(name string) {
	snap := r.meter.Snapshot()
	d := ledger.BudgetDetails{
		BudgetName: name,
		Consumed:   snap.Consumed[name],
		Limit:      snap.Limits[name],
	}
	if name == policy.BudgetElapsed {
		d.Consumed = int(r.meter.Elapsed(r.engine.now()) / time.Second)
		d.Limit = int(r.engine.limits.MaxElapsed / time.Second)
	}
	r.rec.ExhaustedBudget = name
	r.ledger.RecordBudgetExhausted(r.meter.Turns(), d)

	logging.Warn().
		Add(logging.RunID(r.rec.ID)).
		Add(logging.Budget(name, d.Consumed, d.Limit)).
		Msg("budget exhausted")
}

func (r *scanRun) finish(ctx context.Context, status run.Status, reason run.StopReason) {
	r.rec.StopReason = reason
	r.rec.CurrentAction = ""
	r.rec.CurrentCommand = ""
	r.rec.EndTime = r.engine.now()
	if err := r.interp.Transition(status, string(reason)); err != nil {
		r.rec.Status = status
	}
	r.ledger.RecordRunFinished(r.meter.Turns(), string(status), string(reason))
	r.engine.telemetry.Metrics().RunFinished(context.WithoutCancel(ctx), string(status), string(reason))

	logging.Info().
		Add(logging.RunID(r.rec.ID)).
		Add(logging.Status(string(status))).
		Add(logging.Reason(string(reason))).
		Add(logging.Turn(r.rec.Turn)).
		Add(logging.Duration(r.rec.Duration())).
		Msg("run finished")
	r.publish()
}

// publish refreshes the record's derived fields and hands a copy to the
// observer.
func (r *scanRun) publish() {
	r.rec.State = r.state.Snapshot()
	r.rec.Ledger = r.ledger.Entries()
	if r.onUpdate != nil {
		r.onUpdate(r.rec.Clone())
	}
}

func summarizeXML(xml string) string {
	parsed, err := scan.ParseXML(xml)
	if err != nil {
		return xml
	}
	return parsed.Summary()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
