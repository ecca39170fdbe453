// Package policy provides the resource limits that bound a reconnaissance run.
package policy

import "sync"

// Budget names used by runs.
const (
	BudgetTurns       = "turns"
	BudgetInvocations = "invocations"
	BudgetRejections  = "consecutive_rejections"
	BudgetElapsed     = "elapsed"
)

// Budget tracks consumption against configured limits.
// A name without a limit is unbounded.
type Budget struct {
	mu       sync.RWMutex
	limits   map[string]int
	consumed map[string]int
}

// BudgetSnapshot is an immutable view of budget state.
type BudgetSnapshot struct {
	Limits    map[string]int `json:"limits"`
	Consumed  map[string]int `json:"consumed"`
	Remaining map[string]int `json:"remaining"`
}

// NewBudget creates a budget with the given limits. Non-positive limits are
// treated as unbounded.
func NewBudget(limits map[string]int) *Budget {
	b := &Budget{
		limits:   make(map[string]int, len(limits)),
		consumed: make(map[string]int, len(limits)),
	}
	for name, limit := range limits {
		if limit > 0 {
			b.limits[name] = limit
		}
		b.consumed[name] = 0
	}
	return b
}

// CanConsume reports whether amount more units fit within the limit.
func (b *Budget) CanConsume(name string, amount int) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit, ok := b.limits[name]
	return !ok || b.consumed[name]+amount <= limit
}

// Consume records usage, failing with ErrBudgetExceeded when the limit would
// be crossed.
func (b *Budget) Consume(name string, amount int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit, ok := b.limits[name]; ok && b.consumed[name]+amount > limit {
		return ErrBudgetExceeded
	}
	b.consumed[name] += amount
	return nil
}

// Clear zeroes the consumption of one budget.
func (b *Budget) Clear(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumed[name] = 0
}

// Consumed returns the usage recorded for a budget.
func (b *Budget) Consumed(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.consumed[name]
}

// Snapshot returns a copy of the current state.
func (b *Budget) Snapshot() BudgetSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := BudgetSnapshot{
		Limits:    make(map[string]int, len(b.limits)),
		Consumed:  make(map[string]int, len(b.consumed)),
		Remaining: make(map[string]int, len(b.limits)),
	}
	for name, used := range b.consumed {
		s.Consumed[name] = used
	}
	for name, limit := range b.limits {
		s.Limits[name] = limit
		s.Remaining[name] = limit - b.consumed[name]
	}
	return s
}
