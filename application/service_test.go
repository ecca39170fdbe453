package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/recon-go/domain/action"
	"github.com/felixgeelhaar/recon-go/domain/goal"
	"github.com/felixgeelhaar/recon-go/domain/run"
	"github.com/felixgeelhaar/recon-go/domain/scan"
	"github.com/felixgeelhaar/recon-go/infrastructure/nmap"
	"github.com/felixgeelhaar/recon-go/infrastructure/planner"
	"github.com/felixgeelhaar/recon-go/infrastructure/storage/memory"
)

type fakePreflight struct {
	hostErr   error
	targetErr error
}

func (p fakePreflight) CheckHost(context.Context) (nmap.Report, error) {
	return nmap.Report{}, p.hostErr
}

func (p fakePreflight) CheckTarget(context.Context, scan.Target) ([]string, error) {
	return nil, p.targetErr
}

// blockingDecider holds every decision until released.
type blockingDecider struct {
	release chan struct{}
}

func (b *blockingDecider) Decide(ctx context.Context, _ planner.Prompt) (string, error) {
	select {
	case <-b.release:
		return `{"action_id": "done"}`, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func newTestService(t *testing.T, dm planner.DecisionMaker, pf Preflighter) (*Service, *memory.RunStore) {
	t.Helper()

	e, _ := newTestEngine(t, &fakeExecutor{outputs: map[action.ID]string{action.PortScan100: portsXML}}, dm)
	store := memory.NewRunStore()
	svc, err := NewService(ServiceConfig{Engine: e, Preflight: pf, Store: store})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	t.Cleanup(svc.Close)
	return svc, store
}

func TestNewService_RequiresEngine(t *testing.T) {
	t.Parallel()

	if _, err := NewService(ServiceConfig{}); err == nil {
		t.Error("NewService() error = nil, want error")
	}
}

func TestService_StatusIdle(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, planner.NewScriptedDecisionMaker(), nil)
	v := svc.Status()
	if v.Status != run.StatusIdle || v.ScanID != "" {
		t.Errorf("Status() = %+v, want idle", v)
	}
	if got := len(svc.Goals()); got != len(goal.Builtin()) {
		t.Errorf("len(Goals()) = %d, want %d", got, len(goal.Builtin()))
	}
}

func TestService_StartAndPersist(t *testing.T) {
	t.Parallel()

	dm := planner.NewScriptedDecisionMaker(`{"action_id": "port_scan_1_100"}`)
	svc, store := newTestService(t, dm, fakePreflight{})

	started, err := svc.Start(context.Background(), "192.0.2.10", "quick_top_ports")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if started.Status != run.StatusRunning {
		t.Errorf("Start() status = %s, want running", started.Status)
	}
	svc.Wait()

	v := svc.Status()
	if v.ScanID != started.ID || v.Status != run.StatusDone {
		t.Errorf("Status() = %s/%s, want %s/done", v.ScanID, v.Status, started.ID)
	}
	if v.Results == nil || len(v.Results.OpenPorts) != 1 {
		t.Errorf("Results = %+v, want one open port", v.Results)
	}
	if v.LastLog == "" || len(v.LogLines) == 0 {
		t.Error("status view has no log lines")
	}

	saved, err := store.Get(context.Background(), started.ID)
	if err != nil {
		t.Fatalf("store.Get() error = %v", err)
	}
	if saved.Status != run.StatusDone || len(saved.Stages) != 1 {
		t.Errorf("persisted record = %s with %d stages, want done with 1", saved.Status, len(saved.Stages))
	}

	runs, err := svc.Runs(context.Background(), run.ListFilter{})
	if err != nil || len(runs) != 1 {
		t.Errorf("Runs() = %d records, %v; want 1", len(runs), err)
	}
}

func TestService_SingleActiveRun(t *testing.T) {
	t.Parallel()

	dm := &blockingDecider{release: make(chan struct{})}
	svc, _ := newTestService(t, dm, nil)

	first, err := svc.Start(context.Background(), "192.0.2.10", "simple_recon")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !svc.Active() {
		t.Error("Active() = false while a run is in progress")
	}

	if _, err := svc.Start(context.Background(), "192.0.2.11", "simple_recon"); !errors.Is(err, run.ErrRunActive) {
		t.Errorf("second Start() error = %v, want ErrRunActive", err)
	}
	if _, err := svc.RunSync(context.Background(), "192.0.2.11", "simple_recon"); !errors.Is(err, run.ErrRunActive) {
		t.Errorf("RunSync() error = %v, want ErrRunActive", err)
	}

	got, err := svc.Run(context.Background(), first.ID)
	if err != nil || got.ID != first.ID {
		t.Errorf("Run(%s) = %v, %v", first.ID, got, err)
	}

	close(dm.release)
	svc.Wait()
	if svc.Active() {
		t.Error("Active() = true after the run finished")
	}
}

func TestService_Close(t *testing.T) {
	t.Parallel()

	dm := &blockingDecider{release: make(chan struct{})}
	svc, _ := newTestService(t, dm, nil)

	if _, err := svc.Start(context.Background(), "192.0.2.10", "simple_recon"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		svc.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close() did not stop the run")
	}

	if got := svc.Current(); got.Status != run.StatusError || got.StopReason != run.StopCancelled {
		t.Errorf("Current() = %s/%s, want error/cancelled", got.Status, got.StopReason)
	}
}

func TestService_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		target  string
		goalID  string
		pf      Preflighter
		wantErr error
	}{
		{"ok", "192.0.2.10", "simple_recon", fakePreflight{}, nil},
		{"invalid target", "a b", "simple_recon", fakePreflight{}, scan.ErrInvalidTarget},
		{"unknown goal", "192.0.2.10", "unknown", fakePreflight{}, goal.ErrGoalNotFound},
		{"nmap missing", "192.0.2.10", "simple_recon", fakePreflight{hostErr: nmap.ErrNmapNotFound}, ErrPreflight},
		{"unresolvable", "nowhere.invalid", "simple_recon", fakePreflight{targetErr: nmap.ErrUnresolvable}, nmap.ErrUnresolvable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, _ := newTestService(t, planner.NewScriptedDecisionMaker(), tt.pf)
			err := svc.Check(context.Background(), tt.target, tt.goalID)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Check() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Check() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_RunSync(t *testing.T) {
	t.Parallel()

	dm := planner.NewScriptedDecisionMaker(`{"action_id": "port_scan_1_100"}`)
	svc, _ := newTestService(t, dm, fakePreflight{})

	rec, err := svc.RunSync(context.Background(), "192.0.2.10", "quick_top_ports")
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if rec.Status != run.StatusDone {
		t.Errorf("Status = %s, want done", rec.Status)
	}
	if svc.Active() {
		t.Error("Active() = true after RunSync returned")
	}
}

// streamingRunner emits stderr lines through emit and snapshots the service
// status while each invocation is still running.
type streamingRunner struct {
	outputs []string
	emit    func(line string)
	status  func() run.StatusView
	seen    []run.StatusView
}

func (r *streamingRunner) Run(_ context.Context, _ []string) (nmap.RunResult, error) {
	n := len(r.seen)
	r.emit(fmt.Sprintf("stage %d started", n))
	r.emit(fmt.Sprintf("stage %d progress", n))
	r.seen = append(r.seen, r.status())
	return nmap.RunResult{Stdout: r.outputs[n], Duration: time.Millisecond}, nil
}

func TestService_StatusStreamsCurrentOutput(t *testing.T) {
	t.Parallel()

	runner := &streamingRunner{outputs: []string{hostUpXML, portsXML}}
	dm := planner.NewScriptedDecisionMaker(`{"action_id": "host_reachability"}`, `{"action_id": "port_scan_1_100"}`)
	e, _ := newTestEngine(t, nmap.NewExecutor(runner, nmap.ExecutorConfig{}), dm)
	svc, err := NewService(ServiceConfig{Engine: e})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	runner.emit = svc.StreamLine
	runner.status = svc.Status

	svc.StreamLine("before any run")
	if got := svc.Status().CurrentOutput; got != "" {
		t.Errorf("idle CurrentOutput = %q, want empty", got)
	}

	rec, err := svc.RunSync(context.Background(), "192.0.2.10", "simple_recon")
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if len(runner.seen) != 2 {
		t.Fatalf("invocations = %d, want 2", len(runner.seen))
	}

	tests := []struct {
		name    string
		view    run.StatusView
		want    string
		notWant string
	}{
		{"first stage", runner.seen[0], "stage 0 started\nstage 0 progress", ""},
		{"second stage resets", runner.seen[1], "stage 1 started\nstage 1 progress", "stage 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if tt.view.Status != run.StatusRunning || tt.view.Command == "" {
				t.Errorf("view = %s/%q, want running with a command", tt.view.Status, tt.view.Command)
			}
			if tt.view.CurrentOutput != tt.want {
				t.Errorf("CurrentOutput = %q, want %q", tt.view.CurrentOutput, tt.want)
			}
			if tt.notWant != "" && strings.Contains(tt.view.CurrentOutput, tt.notWant) {
				t.Errorf("CurrentOutput = %q, want no %q", tt.view.CurrentOutput, tt.notWant)
			}
		})
	}

	if !rec.Status.IsTerminal() {
		t.Fatalf("Status = %s, want terminal", rec.Status)
	}
	svc.StreamLine("after the run")
	if got := svc.Status().CurrentOutput; got != "" {
		t.Errorf("CurrentOutput after the run = %q, want empty", got)
	}
}

func TestService_StreamLineBounded(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, planner.NewScriptedDecisionMaker(), nil)
	svc.mu.Lock()
	svc.active = true
	svc.current = &run.Record{ID: "r", Status: run.StatusRunning, CurrentCommand: "nmap -sn 192.0.2.10"}
	svc.outputCommand = svc.current.CurrentCommand
	svc.mu.Unlock()

	for i := range maxOutputLines + 5 {
		svc.StreamLine(fmt.Sprintf("line %d", i))
	}

	lines := strings.Split(svc.Status().CurrentOutput, "\n")
	if len(lines) != maxOutputLines {
		t.Fatalf("len(lines) = %d, want %d", len(lines), maxOutputLines)
	}
	if lines[0] != "line 5" {
		t.Errorf("lines[0] = %q, want %q", lines[0], "line 5")
	}

	svc.mu.Lock()
	svc.active = false
	svc.mu.Unlock()
}
