package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/recon-go/domain/action"
	"github.com/felixgeelhaar/recon-go/domain/goal"
	"github.com/felixgeelhaar/recon-go/domain/ledger"
	"github.com/felixgeelhaar/recon-go/domain/policy"
	"github.com/felixgeelhaar/recon-go/domain/run"
	"github.com/felixgeelhaar/recon-go/domain/scan"
	"github.com/felixgeelhaar/recon-go/infrastructure/nmap"
	"github.com/felixgeelhaar/recon-go/infrastructure/planner"
	"github.com/felixgeelhaar/recon-go/infrastructure/storage/filesystem"
)

const (
	hostDownXML = `<nmaprun><host><status state="down"/></host></nmaprun>`
	hostUpXML   = `<nmaprun><host><status state="up"/><address addr="192.0.2.10" addrtype="ipv4"/></host></nmaprun>`
	portsXML    = `<nmaprun><host><status state="up"/><address addr="192.0.2.10" addrtype="ipv4"/>
<ports><port protocol="tcp" portid="80"><state state="open"/></port></ports></host></nmaprun>`
	servicesXML = `<nmaprun><host><status state="up"/><address addr="192.0.2.10" addrtype="ipv4"/>
<ports><port protocol="tcp" portid="80"><state state="open"/><service name="http" product="nginx" version="1.25"/></port></ports></host></nmaprun>`
	osXML = `<nmaprun><host><status state="up"/><address addr="192.0.2.10" addrtype="ipv4"/>
<os><osmatch name="Linux 5.X" accuracy="96"/></os></host></nmaprun>`
)

// fakeExecutor returns canned XML per action.
type fakeExecutor struct {
	mu      sync.Mutex
	outputs map[action.ID]string
	status  nmap.Status
	calls   []action.Invocation
}

func (f *fakeExecutor) Execute(_ context.Context, inv action.Invocation) nmap.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, inv)
	status := f.status
	if status == "" {
		status = nmap.StatusOK
	}
	return nmap.Outcome{
		ActionID:  inv.ActionID,
		Argv:      inv.Argv,
		Command:   inv.Command(),
		Stdout:    f.outputs[inv.ActionID],
		Status:    status,
		StartedAt: time.Now(),
		Duration:  time.Millisecond,
	}
}

func (f *fakeExecutor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeSleeper records requested pauses without sleeping.
type fakeSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
	return nil
}

func (s *fakeSleeper) Slept() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

func newTestEngine(t *testing.T, exec Executor, dm planner.DecisionMaker, opts ...Option) (*Engine, *fakeSleeper) {
	t.Helper()

	sleeper := &fakeSleeper{}
	base := []Option{
		WithExecutor(exec),
		WithDecisionMaker(dm),
		WithLimits(policy.Limits{MaxTurns: 10, MaxConsecutiveRejections: 5}),
		WithClock(time.Now, sleeper.Sleep),
	}
	e, err := NewEngineWithOptions(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewEngineWithOptions() error = %v", err)
	}
	return e, sleeper
}

func ledgerCount(rec *run.Record, typ ledger.EntryType) int {
	n := 0
	for _, e := range rec.Ledger {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestNewEngine_Validation(t *testing.T) {
	t.Parallel()

	dm := planner.NewScriptedDecisionMaker()
	tests := []struct {
		name   string
		config EngineConfig
	}{
		{"missing executor", EngineConfig{DecisionMaker: dm}},
		{"missing decision-maker", EngineConfig{Executor: &fakeExecutor{}}},
		{"negative limits", EngineConfig{Executor: &fakeExecutor{}, DecisionMaker: dm, Limits: policy.Limits{MaxTurns: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewEngine(tt.config); err == nil {
				t.Error("NewEngine() error = nil, want error")
			}
		})
	}
}

func TestNewEngine_Defaults(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(EngineConfig{Executor: &fakeExecutor{}, DecisionMaker: planner.NewScriptedDecisionMaker()})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if e.Limits() != policy.DefaultLimits() {
		t.Errorf("Limits() = %+v, want defaults", e.Limits())
	}
	if e.Goals().Len() != len(goal.Builtin()) {
		t.Errorf("Goals().Len() = %d, want %d", e.Goals().Len(), len(goal.Builtin()))
	}
}

func TestEngine_Run_MaxTurnsBudget(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	dm := planner.NewScriptedDecisionMaker().WithFallback(`{"action_id": "port_scan_1_100", "reason": "again"}`)
	e, _ := newTestEngine(t, exec, dm, WithLimits(policy.Limits{MaxTurns: 3}))

	rec, err := e.Run(context.Background(), Request{Target: "192.0.2.10", GoalID: "well_known_tcp"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if rec.Status != run.StatusBudget {
		t.Errorf("Status = %s, want budget", rec.Status)
	}
	if rec.ExhaustedBudget != policy.BudgetTurns {
		t.Errorf("ExhaustedBudget = %q, want %q", rec.ExhaustedBudget, policy.BudgetTurns)
	}
	if rec.Turn != 3 {
		t.Errorf("Turn = %d, want 3", rec.Turn)
	}
	if got := exec.Calls(); got != 3 {
		t.Errorf("invocations = %d, want 3", got)
	}
	if got := len(dm.Prompts()); got != 3 {
		t.Errorf("decisions = %d, want 3", got)
	}
	if ledgerCount(rec, ledger.EntryBudgetExhausted) != 1 {
		t.Error("ledger has no budget_exhausted entry")
	}
}

func TestEngine_Run_HostDown(t *testing.T) {
	t.Parallel()

	persistent := goal.Spec{
		ID:                   "persistent",
		IncludesReachability: true,
		Completion:           goal.CompletionFull,
		OnUnresponsive:       goal.UnresponsiveContinue,
	}
	scanFirst := goal.Spec{
		ID:                   "scan_first",
		IncludesReachability: true,
		Completion:           goal.CompletionScanOnly,
	}
	registry, err := goal.NewRegistry(append(goal.Builtin(), persistent, scanFirst)...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	tests := []struct {
		name        string
		goalID      string
		wantReason  run.StopReason
		wantTurns   int
		wantPrompts int
	}{
		{"complete policy ends the run", "simple_recon", run.StopGoalAchieved, 1, 1},
		{"scan only completes by default", "scan_first", run.StopGoalAchieved, 1, 1},
		{"continue policy offers wait and done", "persistent", run.StopPlannerDone, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exec := &fakeExecutor{outputs: map[action.ID]string{action.HostReachability: hostDownXML}}
			dm := planner.NewScriptedDecisionMaker(`{"action_id": "host_reachability"}`)
			e, _ := newTestEngine(t, exec, dm, WithGoals(registry))

			rec, err := e.Run(context.Background(), Request{Target: "192.0.2.10", GoalID: tt.goalID})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if rec.State.Reachability != scan.ReachabilityUnresponsive {
				t.Errorf("Reachability = %s, want unresponsive", rec.State.Reachability)
			}
			if rec.StopReason != tt.wantReason {
				t.Errorf("StopReason = %s, want %s", rec.StopReason, tt.wantReason)
			}
			if rec.Turn != tt.wantTurns {
				t.Errorf("Turn = %d, want %d", rec.Turn, tt.wantTurns)
			}

			prompts := dm.Prompts()
			if len(prompts) != tt.wantPrompts {
				t.Fatalf("len(Prompts()) = %d, want %d", len(prompts), tt.wantPrompts)
			}
			if tt.wantPrompts < 2 {
				return
			}
			want := action.Menu{action.Wait, action.Done}
			if got := prompts[1].Menu.Literal(); got != want.Literal() {
				t.Errorf("menu after host down = %s, want %s", got, want.Literal())
			}
		})
	}
}

func TestEngine_Run_RejectsWithoutInvocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		goalID   string
		reply    string
		wantCode string
	}{
		{"port range out of bounds", "well_known_tcp", `{"action_id":"port_scan","range":"1-100000"}`, "invalid_params"},
		{"off menu before reachability", "simple_recon", `{"action_id":"port_scan_1_100"}`, "off_menu"},
		{"not json", "well_known_tcp", `scan everything please`, "not_json"},
		{"empty", "well_known_tcp", `   `, "empty_reply"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exec := &fakeExecutor{}
			dm := planner.NewScriptedDecisionMaker(tt.reply)
			e, _ := newTestEngine(t, exec, dm)

			rec, err := e.Run(context.Background(), Request{Target: "192.0.2.10", GoalID: tt.goalID})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := exec.Calls(); got != 0 {
				t.Errorf("invocations = %d, want 0", got)
			}
			if len(rec.State.ActionsExecuted) != 0 {
				t.Errorf("ActionsExecuted = %v, want empty", rec.State.ActionsExecuted)
			}
			if rec.Rejections != 1 {
				t.Errorf("Rejections = %d, want 1", rec.Rejections)
			}

			var details ledger.RejectionDetails
			for _, entry := range rec.Ledger {
				if entry.Type == ledger.EntryRejection {
					if err := entry.DecodeDetails(&details); err != nil {
						t.Fatalf("DecodeDetails() error = %v", err)
					}
				}
			}
			if details.Code != tt.wantCode {
				t.Errorf("rejection code = %q, want %q", details.Code, tt.wantCode)
			}
			if rec.StopReason != run.StopPlannerDone {
				t.Errorf("StopReason = %s, want planner_done", rec.StopReason)
			}
		})
	}
}

func TestEngine_Run_ConsecutiveRejections(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	dm := planner.NewScriptedDecisionMaker().WithFallback(`{"action_id": "rm -rf /"}`)
	e, _ := newTestEngine(t, exec, dm, WithLimits(policy.Limits{MaxTurns: 10, MaxConsecutiveRejections: 2}))

	rec, err := e.Run(context.Background(), Request{Target: "192.0.2.10", GoalID: "well_known_tcp"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.Status != run.StatusBudget || rec.ExhaustedBudget != policy.BudgetRejections {
		t.Errorf("Status = %s (%s), want budget (%s)", rec.Status, rec.ExhaustedBudget, policy.BudgetRejections)
	}
	if rec.Turn != 2 {
		t.Errorf("Turn = %d, want 2", rec.Turn)
	}
}

func TestEngine_Run_AcceptanceResetsRejectionStreak(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	dm := planner.NewScriptedDecisionMaker(
		`nope`,
		`{"action_id": "port_scan_1_100"}`,
		`nope`,
		`{"action_id": "done"}`,
	)
	e, _ := newTestEngine(t, exec, dm, WithLimits(policy.Limits{MaxTurns: 10, MaxConsecutiveRejections: 2}))

	rec, err := e.Run(context.Background(), Request{Target: "192.0.2.10", GoalID: "well_known_tcp"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.StopReason != run.StopPlannerDone {
		t.Errorf("StopReason = %s, want planner_done", rec.StopReason)
	}
	if rec.Rejections != 2 {
		t.Errorf("Rejections = %d, want 2", rec.Rejections)
	}
}

func TestEngine_Run_DecisionErrors(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	dm := planner.DecisionFunc(func(context.Context, planner.Prompt) (string, error) {
		return "", errors.New("connection refused")
	})
	e, _ := newTestEngine(t, exec, dm, WithLimits(policy.Limits{MaxTurns: 10, MaxConsecutiveRejections: 3}))

	rec, err := e.Run(context.Background(), Request{Target: "192.0.2.10", GoalID: "well_known_tcp"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.Status != run.StatusBudget {
		t.Errorf("Status = %s, want budget", rec.Status)
	}
	if got := ledgerCount(rec, ledger.EntryDecisionError); got != 3 {
		t.Errorf("decision_error entries = %d, want 3", got)
	}
	if exec.Calls() != 0 {
		t.Error("decision errors must not invoke the scanner")
	}
}

func TestEngine_Run_FullCoverage(t *testing.T) {
	t.Parallel()

	store, err := filesystem.NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifactStore() error = %v", err)
	}

	exec := &fakeExecutor{outputs: map[action.ID]string{
		action.PortScan1000:  portsXML,
		action.ServiceDetect: servicesXML,
		action.OSFingerprint: osXML,
	}}
	dm := planner.NewScriptedDecisionMaker(
		`{"action_id": "port_scan_1_1000", "reason": "well known", "plan": "then services"}`,
		`{"action_id": "service_detect", "params": {"scope": "all"}}`,
		`{"action_id": "os_fingerprint"}`,
	)

	var mu sync.Mutex
	var updates []*run.Record
	e, sleeper := newTestEngine(t, exec, dm, WithArtifactStore(store), WithCooling(4*time.Second))

	rec, err := e.Run(context.Background(), Request{
		Target: "192.0.2.10",
		GoalID: "well_known_tcp",
		OnUpdate: func(r *run.Record) {
			mu.Lock()
			updates = append(updates, r)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if rec.Status != run.StatusDone || rec.StopReason != run.StopGoalAchieved {
		t.Errorf("Status = %s/%s, want done/goal_achieved", rec.Status, rec.StopReason)
	}
	if rec.Turn != 3 {
		t.Errorf("Turn = %d, want 3", rec.Turn)
	}
	if len(rec.Stages) != 3 {
		t.Fatalf("len(Stages) = %d, want 3", len(rec.Stages))
	}
	for _, s := range rec.Stages {
		if s.Artifact == "" {
			t.Errorf("stage %s has no artifact", s.ActionID)
		}
	}
	if got := rec.State.Services; len(got) != 1 || got[0].Name != "http" {
		t.Errorf("Services = %+v, want http on 80", got)
	}
	if rec.State.OSGuess != "Linux 5.X" {
		t.Errorf("OSGuess = %q, want Linux 5.X", rec.State.OSGuess)
	}
	if rec.State.InvocationCount != 3 {
		t.Errorf("InvocationCount = %d, want 3", rec.State.InvocationCount)
	}
	if got := sleeper.Slept(); len(got) != 3 || got[0] != 4*time.Second {
		t.Errorf("cooling pauses = %v, want three of 4s", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(updates) == 0 || !updates[len(updates)-1].Status.IsTerminal() {
		t.Error("last update is not terminal")
	}
}

func TestEngine_Run_DryRun(t *testing.T) {
	t.Parallel()

	exec := nmap.NewExecutor(nil, nmap.ExecutorConfig{DryRun: true})
	dm := planner.NewScriptedDecisionMaker(`{"action_id": "port_scan", "params": {"range": "22,80,443"}}`)
	e, sleeper := newTestEngine(t, exec, dm, WithCooling(time.Second))

	rec, err := e.Run(context.Background(), Request{Target: "192.0.2.10", GoalID: "quick_top_ports"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if rec.StopReason != run.StopGoalAchieved {
		t.Errorf("StopReason = %s, want goal_achieved", rec.StopReason)
	}
	if len(rec.Stages) != 1 || rec.Stages[0].Status != string(nmap.StatusSkipped) {
		t.Fatalf("Stages = %+v, want one skipped stage", rec.Stages)
	}
	if rec.Stages[0].Output != "(dry run)" {
		t.Errorf("Output = %q, want (dry run)", rec.Stages[0].Output)
	}
	if rec.State.InvocationCount != 0 {
		t.Errorf("InvocationCount = %d, want 0", rec.State.InvocationCount)
	}
	if len(sleeper.Slept()) != 0 {
		t.Error("dry run should not cool down")
	}
}

func TestEngine_Run_UnavailableLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{status: nmap.StatusUnavailable}
	dm := planner.NewScriptedDecisionMaker(`{"action_id": "host_reachability"}`, `{"action_id": "done"}`)
	e, _ := newTestEngine(t, exec, dm)

	rec, err := e.Run(context.Background(), Request{Target: "192.0.2.10", GoalID: "simple_recon"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.State.Reachability != scan.ReachabilityUnknown {
		t.Errorf("Reachability = %s, want unknown", rec.State.Reachability)
	}
	if len(rec.State.ActionsExecuted) != 0 {
		t.Errorf("ActionsExecuted = %v, want empty", rec.State.ActionsExecuted)
	}
	if len(rec.Stages) != 1 || rec.Stages[0].Status != string(nmap.StatusUnavailable) {
		t.Errorf("Stages = %+v, want one unavailable stage", rec.Stages)
	}
}

func TestEngine_Run_Wait(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	dm := planner.NewScriptedDecisionMaker(`{"action_id": "wait"}`)
	e, sleeper := newTestEngine(t, exec, dm)

	rec, err := e.Run(context.Background(), Request{Target: "192.0.2.10", GoalID: "simple_recon"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := action.DefaultCatalogConfig().Wait
	if got := sleeper.Slept(); len(got) != 1 || got[0] != want {
		t.Errorf("slept = %v, want [%s]", got, want)
	}
	if len(rec.State.ActionsExecuted) != 1 || rec.State.ActionsExecuted[0] != "wait" {
		t.Errorf("ActionsExecuted = %v, want [wait]", rec.State.ActionsExecuted)
	}
	if exec.Calls() != 0 {
		t.Error("wait must not invoke the scanner")
	}
}

func TestEngine_Run_Cancelled(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, &fakeExecutor{}, planner.NewScriptedDecisionMaker())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := e.Run(ctx, Request{Target: "192.0.2.10", GoalID: "simple_recon"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if rec.Status != run.StatusError || rec.StopReason != run.StopCancelled {
		t.Errorf("Status = %s/%s, want error/cancelled", rec.Status, rec.StopReason)
	}
}

func TestEngine_Run_Preconditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		target  string
		goalID  string
		wantErr error
	}{
		{"injection in target", "10.0.0.1;id", "simple_recon", scan.ErrInvalidTarget},
		{"empty target", "", "simple_recon", scan.ErrInvalidTarget},
		{"unknown goal", "10.0.0.1", "nope", goal.ErrGoalNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dm := planner.NewScriptedDecisionMaker()
			e, _ := newTestEngine(t, &fakeExecutor{}, dm)
			rec, err := e.Run(context.Background(), Request{Target: tt.target, GoalID: tt.goalID})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if rec != nil {
				t.Errorf("Run() record = %+v, want nil", rec)
			}
			if len(dm.Prompts()) != 0 {
				t.Error("decision-maker was asked before preconditions passed")
			}
		})
	}
}
