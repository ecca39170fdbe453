package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/recon-go/domain/goal"
	"github.com/felixgeelhaar/recon-go/domain/run"
	"github.com/felixgeelhaar/recon-go/domain/scan"
	"github.com/felixgeelhaar/recon-go/infrastructure/logging"
	"github.com/felixgeelhaar/recon-go/infrastructure/nmap"
	"github.com/felixgeelhaar/recon-go/infrastructure/storage/memory"
)

// ErrPreflight wraps a failed host or target check.
var ErrPreflight = errors.New("preflight failed")

// maxOutputLines bounds the live scanner output kept for status views.
const maxOutputLines = 200

// Preflighter verifies that a run can start. *nmap.Preflight implements it.
type Preflighter interface {
	CheckHost(ctx context.Context) (nmap.Report, error)
	CheckTarget(ctx context.Context, target scan.Target) ([]string, error)
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Engine *Engine

	// Preflight runs before every start. Nil skips the checks.
	Preflight Preflighter

	// Store persists records. Defaults to an in-memory store.
	Store run.Store

	// LogLines bounds the ledger lines in status views.
	LogLines int
}

// Service admits one active run at a time and keeps its latest record for
// status readers.
type Service struct {
	engine    *Engine
	preflight Preflighter
	store     run.Store
	logLines  int

	mu      sync.RWMutex
	current *run.Record
	active  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// output holds the scanner lines of the stage in flight, keyed by
	// its command.
	output        []string
	outputCommand string
}

// NewService creates a service.
func NewService(config ServiceConfig) (*Service, error) {
	if config.Engine == nil {
		return nil, errors.New("engine is required")
	}
	s := &Service{
		engine:    config.Engine,
		preflight: config.Preflight,
		store:     config.Store,
		logLines:  config.LogLines,
	}
	if s.store == nil {
		s.store = memory.NewRunStore()
	}
	if s.logLines <= 0 {
		s.logLines = run.DefaultLogLines
	}
	return s, nil
}

// Goals lists the goals a run may use.
func (s *Service) Goals() []goal.Spec {
	return s.engine.Goals().List()
}

// Check validates a request and runs the preflight checks. Errors are
// scan.ErrInvalidTarget, goal.ErrGoalNotFound or ErrPreflight.
func (s *Service) Check(ctx context.Context, target, goalID string) error {
	t, _, err := s.engine.Validate(Request{Target: target, GoalID: goalID})
	if err != nil {
		return err
	}
	if s.preflight == nil {
		return nil
	}
	if _, err := s.preflight.CheckHost(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPreflight, err)
	}
	if _, err := s.preflight.CheckTarget(ctx, t); err != nil {
		return fmt.Errorf("%w: %w", ErrPreflight, err)
	}
	return nil
}

// Start launches a run in the background and returns its initial record.
// It returns run.ErrRunActive while another run is in progress.
func (s *Service) Start(ctx context.Context, target, goalID string) (*run.Record, error) {
	if err := s.Check(ctx, target, goalID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil, run.ErrRunActive
	}
	rec, err := s.begin(ctx, target, goalID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.active = true
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		_, _ = s.execute(runCtx, rec)
	}()

	return rec.Clone(), nil
}

// RunSync performs a run in the caller's goroutine.
func (s *Service) RunSync(ctx context.Context, target, goalID string) (*run.Record, error) {
	if err := s.Check(ctx, target, goalID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil, run.ErrRunActive
	}
	rec, err := s.begin(ctx, target, goalID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.active = true
	s.mu.Unlock()

	return s.execute(ctx, rec)
}

// begin persists the initial record. Callers hold s.mu.
func (s *Service) begin(ctx context.Context, target, goalID string) (*run.Record, error) {
	t, spec, err := s.engine.Validate(Request{Target: target, GoalID: goalID})
	if err != nil {
		return nil, err
	}
	rec := run.NewRecord(uuid.NewString(), t.String(), spec.ID, spec.DisplayLabel(),
		s.engine.Limits().MaxTurns, s.engine.now())
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	s.current = rec.Clone()
	return rec, nil
}

func (s *Service) execute(ctx context.Context, initial *run.Record) (*run.Record, error) {
	lastTurn := -1
	final, err := s.engine.Run(ctx, Request{
		RunID:  initial.ID,
		Target: initial.Target,
		GoalID: initial.GoalID,
		OnUpdate: func(rec *run.Record) {
			s.mu.Lock()
			s.current = rec
			if rec.CurrentCommand != s.outputCommand {
				s.output = nil
				s.outputCommand = rec.CurrentCommand
			}
			s.mu.Unlock()

			if rec.Turn != lastTurn || rec.Status.IsTerminal() {
				lastTurn = rec.Turn
				s.persist(ctx, rec)
			}
		},
	})

	s.mu.Lock()
	s.active = false
	s.cancel = nil
	s.output = nil
	s.outputCommand = ""
	if final == nil {
		failed := s.current.Clone()
		failed.Status = run.StatusError
		failed.StopReason = run.StopPrecondition
		failed.Error = err.Error()
		failed.EndTime = s.engine.now()
		final = failed
		s.current = failed
	}
	s.mu.Unlock()

	s.persist(context.WithoutCancel(ctx), final)
	return final, err
}

func (s *Service) persist(ctx context.Context, rec *run.Record) {
	if err := s.store.Update(ctx, rec); err != nil {
		logging.Warn().
			Add(logging.RunID(rec.ID)).
			Add(logging.Operation("persist")).
			Add(logging.ErrorField(err)).
			Msg("failed to persist run")
	}
}

// Current returns a copy of the latest record, or nil before the first run.
func (s *Service) Current() *run.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Status returns the status view of the latest run. While a stage runs the
// view carries the scanner output streamed so far.
func (s *Service) Status() run.StatusView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := run.NewStatusView(s.current.Clone(), s.logLines)
	if v.Status == run.StatusRunning && s.outputCommand != "" {
		v.CurrentOutput = strings.Join(s.output, "\n")
	}
	return v
}

// StreamLine records one line of live scanner output for the stage in
// flight. Lines arriving outside a stage are dropped. It is safe to use as
// nmap.ExecRunner.OnStderrLine.
func (s *Service) StreamLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || s.outputCommand == "" {
		return
	}
	s.output = append(s.output, line)
	if n := len(s.output); n > maxOutputLines {
		s.output = append(s.output[:0:0], s.output[n-maxOutputLines:]...)
	}
}

// Active reports whether a run is in progress.
func (s *Service) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Runs lists persisted records.
func (s *Service) Runs(ctx context.Context, filter run.ListFilter) ([]*run.Record, error) {
	return s.store.List(ctx, filter)
}

// Run returns one record, preferring the live copy of the current run.
func (s *Service) Run(ctx context.Context, id string) (*run.Record, error) {
	if cur := s.Current(); cur != nil && cur.ID == id {
		return cur, nil
	}
	return s.store.Get(ctx, id)
}

// Wait blocks until the background run, if any, has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels the active run and waits for it to record its end.
func (s *Service) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
