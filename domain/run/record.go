package run

import (
	"time"

	"github.com/felixgeelhaar/recon-go/domain/ledger"
	"github.com/felixgeelhaar/recon-go/domain/scan"
)

// Status is the lifecycle status of a run.
type Status string

// Run statuses. Done, Budget and Error are terminal.
const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusBudget  Status = "budget"
	StatusError   Status = "error"
)

// IsTerminal reports whether the status ends a run.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusBudget || s == StatusError
}

// StopReason explains why a run ended.
type StopReason string

// Stop reasons.
const (
	StopGoalAchieved StopReason = "goal_achieved"
	StopPlannerDone  StopReason = "planner_done"
	StopBudget       StopReason = "budget_exhausted"
	StopCancelled    StopReason = "cancelled"
	StopPrecondition StopReason = "precondition_failed"
)

// Stage is one executed action as shown to operators.
type Stage struct {
	ActionID  string            `json:"action_id"`
	Params    map[string]string `json:"params,omitempty"`
	Command   string            `json:"command,omitempty"`
	Status    string            `json:"status"`
	Output    string            `json:"output"`
	Artifact  string            `json:"artifact,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
}

// Record is the persisted result of one run.
type Record struct {
	ID              string         `json:"id"`
	Target          string         `json:"target"`
	GoalID          string         `json:"goal_id"`
	GoalLabel       string         `json:"goal_label"`
	Status          Status         `json:"status"`
	StopReason      StopReason     `json:"stop_reason,omitempty"`
	ExhaustedBudget string         `json:"exhausted_budget,omitempty"`
	Turn            int            `json:"turn"`
	MaxTurns        int            `json:"max_turns"`
	Rejections      int            `json:"rejections"`
	CurrentAction   string         `json:"current_action,omitempty"`
	CurrentCommand  string         `json:"current_command,omitempty"`
	State           scan.Snapshot  `json:"state"`
	Stages          []Stage        `json:"stages"`
	Ledger          []ledger.Entry `json:"ledger,omitempty"`
	Error           string         `json:"error,omitempty"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time,omitempty"`
}

// NewRecord creates a running record.
func NewRecord(id, target, goalID, goalLabel string, maxTurns int, started time.Time) *Record {
	return &Record{
		ID:        id,
		Target:    target,
		GoalID:    goalID,
		GoalLabel: goalLabel,
		Status:    StatusRunning,
		MaxTurns:  maxTurns,
		State:     scan.Snapshot{Target: target, Reachability: scan.ReachabilityUnknown},
		Stages:    []Stage{},
		StartTime: started,
	}
}

// Duration returns the wall-clock run time, measured to now while running.
func (r *Record) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// Clone returns a deep copy that is safe to hand to readers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Stages = append([]Stage(nil), r.Stages...)
	c.Ledger = append([]ledger.Entry(nil), r.Ledger...)
	c.State.OpenPorts = append([]scan.Port(nil), r.State.OpenPorts...)
	c.State.Services = append([]scan.Service(nil), r.State.Services...)
	c.State.ActionsExecuted = append([]string(nil), r.State.ActionsExecuted...)
	return &c
}
