package ledger

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Ledger is an append-only record of everything that happened during a run.
// It is safe for concurrent readers while the run appends.
type Ledger struct {
	runID   string
	entries []Entry
	mu      sync.RWMutex
}

// New creates a new ledger for the given run.
func New(runID string) *Ledger {
	return &Ledger{
		runID:   runID,
		entries: make([]Entry, 0, 64),
	}
}

// Append adds an entry to the ledger.
func (l *Ledger) Append(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.RunID = l.runID
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.ID == "" {
		entry.ID = generateEntryID(entry.Timestamp)
	}
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of all entries.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

// EntriesByType returns entries filtered by type.
func (l *Ledger) EntriesByType(entryType EntryType) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var filtered []Entry
	for _, e := range l.entries {
		if e.Type == entryType {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// LastEntry returns the most recent entry, or nil if empty.
func (l *Ledger) LastEntry() *Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return nil
	}
	entry := l.entries[len(l.entries)-1]
	return &entry
}

// Count returns the number of entries.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// RunID returns the associated run ID.
func (l *Ledger) RunID() string {
	return l.runID
}

// Lines renders the last n entries as log lines; n <= 0 returns all.
func (l *Ledger) Lines(n int) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := 0
	if n > 0 && len(l.entries) > n {
		start = len(l.entries) - n
	}
	lines := make([]string, 0, len(l.entries)-start)
	for _, e := range l.entries[start:] {
		lines = append(lines, e.Line())
	}
	return lines
}

// RecordRunStarted records the start of a run.
func (l *Ledger) RecordRunStarted(target, goalID string) {
	l.Append(NewEntry(EntryRunStarted, l.runID, 0,
		fmt.Sprintf("run started: target=%s goal=%s", target, goalID),
		map[string]string{"target": target, "goal": goalID}))
}

// RecordRunFinished records the terminal status of a run.
func (l *Ledger) RecordRunFinished(turn int, status, reason string) {
	l.Append(NewEntry(EntryRunFinished, l.runID, turn,
		fmt.Sprintf("run finished: status=%s reason=%s", status, reason),
		map[string]string{"status": status, "reason": reason}))
}

// RecordRunFailed records a fatal precondition failure.
func (l *Ledger) RecordRunFailed(turn int, err error) {
	l.Append(NewEntry(EntryRunFailed, l.runID, turn, "run failed: "+err.Error(),
		map[string]string{"error": err.Error()}))
}

// RecordTurnStarted records the beginning of a turn with its menu.
func (l *Ledger) RecordTurnStarted(turn int, menu []string) {
	l.Append(NewEntry(EntryTurnStarted, l.runID, turn,
		"menu: "+strings.Join(menu, ", "),
		map[string][]string{"menu": menu}))
}

// RecordDecision records an accepted reply.
func (l *Ledger) RecordDecision(turn int, d DecisionDetails) {
	msg := "decision: " + d.ActionID
	if len(d.Params) > 0 {
		msg += fmt.Sprintf(" %v", d.Params)
	}
	if d.Reason != "" {
		msg += " (" + d.Reason + ")"
	}
	l.Append(NewEntry(EntryDecision, l.runID, turn, msg, d))
}

// RecordRejection records a rejected reply.
func (l *Ledger) RecordRejection(turn int, d RejectionDetails) {
	l.Append(NewEntry(EntryRejection, l.runID, turn,
		fmt.Sprintf("reply rejected: %s %s", d.Code, d.Detail), d))
}

// RecordDecisionError records a decision-maker transport failure.
func (l *Ledger) RecordDecisionError(turn int, err error) {
	l.Append(NewEntry(EntryDecisionError, l.runID, turn, "decision-maker error: "+err.Error(),
		map[string]string{"error": err.Error()}))
}

// RecordInvocation records the start of an external tool run.
func (l *Ledger) RecordInvocation(turn int, actionID, command string) {
	l.Append(NewEntry(EntryInvocation, l.runID, turn, "executing: "+command,
		InvocationDetails{ActionID: actionID, Command: command}))
}

// RecordInvocationDone records the outcome of an external tool run.
func (l *Ledger) RecordInvocationDone(turn int, d InvocationDetails) {
	l.Append(NewEntry(EntryInvocationDone, l.runID, turn,
		fmt.Sprintf("%s finished: status=%s exit=%d in %s", d.ActionID, d.Status, d.ExitCode, d.Duration.Round(time.Millisecond)), d))
}

// RecordMerge records what a result added to the state.
func (l *Ledger) RecordMerge(turn int, d MergeDetails) {
	msg := fmt.Sprintf("merged %s: +%d ports, +%d services", d.ActionID, d.NewPorts, d.NewServices)
	if d.Reachability != "" {
		msg += ", host " + d.Reachability
	}
	if d.OSGuess != "" {
		msg += ", os " + d.OSGuess
	}
	if d.ParseError != "" {
		msg += ", output not parsed"
	}
	l.Append(NewEntry(EntryMerge, l.runID, turn, msg, d))
}

// RecordWait records a pause.
func (l *Ledger) RecordWait(turn int, d time.Duration) {
	l.Append(NewEntry(EntryWait, l.runID, turn, "waiting "+d.String(),
		map[string]string{"duration": d.String()}))
}

// RecordGoalAchieved records goal completion.
func (l *Ledger) RecordGoalAchieved(turn int, goalID string) {
	l.Append(NewEntry(EntryGoalAchieved, l.runID, turn, "goal achieved: "+goalID,
		map[string]string{"goal": goalID}))
}

// RecordBudgetExhausted records budget exhaustion.
func (l *Ledger) RecordBudgetExhausted(turn int, d BudgetDetails) {
	l.Append(NewEntry(EntryBudgetExhausted, l.runID, turn,
		fmt.Sprintf("budget exhausted: %s (%d/%d)", d.BudgetName, d.Consumed, d.Limit), d))
}
