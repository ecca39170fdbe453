// Package ledger provides the append-only audit trail of a reconnaissance run.
package ledger

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// EntryType classifies the type of ledger entry.
type EntryType string

const (
	EntryRunStarted      EntryType = "run_started"
	EntryRunFinished     EntryType = "run_finished"
	EntryRunFailed       EntryType = "run_failed"
	EntryTurnStarted     EntryType = "turn_started"
	EntryDecision        EntryType = "decision"
	EntryRejection       EntryType = "rejection"
	EntryInvocation      EntryType = "invocation"
	EntryInvocationDone  EntryType = "invocation_done"
	EntryMerge           EntryType = "merge"
	EntryWait            EntryType = "wait"
	EntryGoalAchieved    EntryType = "goal_achieved"
	EntryBudgetExhausted EntryType = "budget_exhausted"
	EntryDecisionError   EntryType = "decision_error"
)

// Entry is a single record in the ledger.
type Entry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      EntryType       `json:"type"`
	RunID     string          `json:"run_id"`
	Turn      int             `json:"turn"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// DecisionDetails describes an accepted reply.
type DecisionDetails struct {
	ActionID  string            `json:"action_id"`
	Params    map[string]string `json:"params,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Reasoning string            `json:"reasoning,omitempty"`
	Plan      string            `json:"plan,omitempty"`
}

// RejectionDetails describes a rejected reply.
type RejectionDetails struct {
	Code   string   `json:"code"`
	Detail string   `json:"detail,omitempty"`
	Reply  string   `json:"reply,omitempty"`
	Menu   []string `json:"menu"`
}

// InvocationDetails describes an external tool run.
type InvocationDetails struct {
	ActionID string        `json:"action_id"`
	Command  string        `json:"command"`
	Status   string        `json:"status,omitempty"`
	ExitCode int           `json:"exit_code,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// MergeDetails describes what a result added to the state.
type MergeDetails struct {
	ActionID     string `json:"action_id"`
	Reachability string `json:"reachability,omitempty"`
	NewPorts     int    `json:"new_ports"`
	NewServices  int    `json:"new_services"`
	OSGuess      string `json:"os_guess,omitempty"`
	ParseError   string `json:"parse_error,omitempty"`
}

// BudgetDetails describes an exhausted budget.
type BudgetDetails struct {
	BudgetName string `json:"budget_name"`
	Consumed   int    `json:"consumed"`
	Limit      int    `json:"limit"`
}

var entrySeq atomic.Uint64

// NewEntry creates a ledger entry with marshaled details.
func NewEntry(entryType EntryType, runID string, turn int, message string, details any) Entry {
	var raw json.RawMessage
	if details != nil {
		raw, _ = json.Marshal(details)
	}
	now := time.Now()
	return Entry{
		ID:        generateEntryID(now),
		Timestamp: now,
		Type:      entryType,
		RunID:     runID,
		Turn:      turn,
		Message:   message,
		Details:   raw,
	}
}

func generateEntryID(now time.Time) string {
	return fmt.Sprintf("%s-%06d", now.UTC().Format("20060102150405.000000"), entrySeq.Add(1))
}

// DecodeDetails unmarshals the entry details into v.
func (e Entry) DecodeDetails(v any) error {
	if e.Details == nil {
		return nil
	}
	return json.Unmarshal(e.Details, v)
}

// Line renders the entry as one human-readable log line.
func (e Entry) Line() string {
	return fmt.Sprintf("%s [turn %d] %s", e.Timestamp.UTC().Format(time.TimeOnly), e.Turn, e.Message)
}
