package run

import (
	"github.com/felixgeelhaar/recon-go/domain/scan"
)

// DefaultLogLines is the number of ledger lines a status view carries.
const DefaultLogLines = 40

// StatusView is what control surfaces report about the current run.
type StatusView struct {
	ScanID        string         `json:"scan_id"`
	Target        string         `json:"target"`
	Goal          string         `json:"goal"`
	GoalLabel     string         `json:"goal_label,omitempty"`
	Status        Status         `json:"status"`
	StopReason    StopReason     `json:"stop_reason,omitempty"`
	Step          int            `json:"step"`
	MaxSteps      int            `json:"max_steps"`
	CurrentAction string         `json:"current_action"`
	Command       string         `json:"current_command,omitempty"`
	CurrentOutput string         `json:"current_output,omitempty"`
	Stages        []Stage        `json:"stages"`
	LastLog       string         `json:"last_log"`
	LogLines      []string       `json:"log_lines"`
	Results       *scan.Snapshot `json:"results,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// IdleView is reported when no run has been started.
func IdleView() StatusView {
	return StatusView{Status: StatusIdle, Stages: []Stage{}, LogLines: []string{}}
}

// NewStatusView derives a status view from a record, keeping the last
// logLines ledger lines. Results are attached once the run has ended.
func NewStatusView(r *Record, logLines int) StatusView {
	if r == nil {
		return IdleView()
	}
	if logLines <= 0 {
		logLines = DefaultLogLines
	}

	v := StatusView{
		ScanID:        r.ID,
		Target:        r.Target,
		Goal:          r.GoalID,
		GoalLabel:     r.GoalLabel,
		Status:        r.Status,
		StopReason:    r.StopReason,
		Step:          r.Turn,
		MaxSteps:      r.MaxTurns,
		CurrentAction: r.CurrentAction,
		Command:       r.CurrentCommand,
		Stages:        append([]Stage{}, r.Stages...),
		LogLines:      []string{},
		Error:         r.Error,
	}

	start := 0
	if len(r.Ledger) > logLines {
		start = len(r.Ledger) - logLines
	}
	for _, e := range r.Ledger[start:] {
		v.LogLines = append(v.LogLines, e.Line())
	}
	if n := len(v.LogLines); n > 0 {
		v.LastLog = v.LogLines[n-1]
	}

	if r.Status.IsTerminal() {
		snap := r.State
		v.Results = &snap
	}
	return v
}
