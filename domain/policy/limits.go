package policy

import (
	"fmt"
	"time"
)

// Limits bounds a single run. Zero values mean unbounded.
type Limits struct {
	MaxTurns                 int           `yaml:"max_turns" json:"max_turns"`
	MaxInvocations           int           `yaml:"max_invocations" json:"max_invocations"`
	MaxElapsed               time.Duration `yaml:"max_elapsed" json:"max_elapsed"`
	MaxConsecutiveRejections int           `yaml:"max_consecutive_rejections" json:"max_consecutive_rejections"`
}

// DefaultLimits returns the standard run limits.
func DefaultLimits() Limits {
	return Limits{
		MaxTurns:                 30,
		MaxInvocations:           25,
		MaxElapsed:               time.Hour,
		MaxConsecutiveRejections: 5,
	}
}

// Validate rejects negative limits.
func (l Limits) Validate() error {
	if l.MaxTurns < 0 || l.MaxInvocations < 0 || l.MaxElapsed < 0 || l.MaxConsecutiveRejections < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidLimits)
	}
	return nil
}

// RunMeter enforces Limits for one run. Checks happen at the top of each
// turn; work in flight is never interrupted by a meter.
type RunMeter struct {
	limits  Limits
	budget  *Budget
	started time.Time
}

// NewRunMeter starts metering at the given instant.
func NewRunMeter(limits Limits, started time.Time) *RunMeter {
	return &RunMeter{
		limits: limits,
		budget: NewBudget(map[string]int{
			BudgetTurns:       limits.MaxTurns,
			BudgetInvocations: limits.MaxInvocations,
			BudgetRejections:  limits.MaxConsecutiveRejections,
		}),
		started: started,
	}
}

// Limits returns the configured limits.
func (m *RunMeter) Limits() Limits {
	return m.limits
}

// Exhausted returns the name of the first exhausted budget, checking elapsed
// time, turns, invocations and then consecutive rejections.
func (m *RunMeter) Exhausted(now time.Time) (string, bool) {
	if m.limits.MaxElapsed > 0 && now.Sub(m.started) >= m.limits.MaxElapsed {
		return BudgetElapsed, true
	}
	for _, name := range []string{BudgetTurns, BudgetInvocations, BudgetRejections} {
		if !m.budget.CanConsume(name, 1) {
			return name, true
		}
	}
	return "", false
}

// StartTurn records a new turn.
func (m *RunMeter) StartTurn() error {
	return m.budget.Consume(BudgetTurns, 1)
}

// RecordInvocation records an external tool run.
func (m *RunMeter) RecordInvocation() error {
	return m.budget.Consume(BudgetInvocations, 1)
}

// RecordRejection records a rejected reply.
func (m *RunMeter) RecordRejection() {
	_ = m.budget.Consume(BudgetRejections, 1)
}

// RecordAcceptance clears the consecutive rejection streak.
func (m *RunMeter) RecordAcceptance() {
	m.budget.Clear(BudgetRejections)
}

// Turns returns the number of turns started.
func (m *RunMeter) Turns() int {
	return m.budget.Consumed(BudgetTurns)
}

// Invocations returns the number of invocations recorded.
func (m *RunMeter) Invocations() int {
	return m.budget.Consumed(BudgetInvocations)
}

// Elapsed returns the time since the run started.
func (m *RunMeter) Elapsed(now time.Time) time.Duration {
	return now.Sub(m.started)
}

// Snapshot returns the counted budgets.
func (m *RunMeter) Snapshot() BudgetSnapshot {
	return m.budget.Snapshot()
}
