// Package run provides the run record and its persistence interface.
package run

import (
	"context"
	"sort"
	"time"
)

// Store defines the interface for run persistence.
// Implementations may be in-memory, SQL, key-value or document backends.
type Store interface {
	// Save persists a new run.
	Save(ctx context.Context, rec *Record) error

	// Get retrieves a run by ID.
	Get(ctx context.Context, id string) (*Record, error)

	// Update updates an existing run.
	Update(ctx context.Context, rec *Record) error

	// Delete removes a run by ID.
	Delete(ctx context.Context, id string) error

	// List returns runs matching the filter.
	List(ctx context.Context, filter ListFilter) ([]*Record, error)

	// Count returns the number of runs matching the filter.
	Count(ctx context.Context, filter ListFilter) (int64, error)
}

// ListFilter specifies criteria for listing runs.
type ListFilter struct {
	// Status filters by run status (empty means all).
	Status []Status

	// Target filters by exact target.
	Target string

	// GoalID filters by goal id.
	GoalID string

	// FromTime filters runs started at or after this time.
	FromTime time.Time

	// ToTime filters runs started before this time.
	ToTime time.Time

	// Limit is the maximum number of runs to return (0 = no limit).
	Limit int

	// Offset is the number of runs to skip for pagination.
	Offset int

	// OrderBy specifies the sort order.
	OrderBy OrderBy

	// Descending reverses the sort order.
	Descending bool
}

// OrderBy specifies how to sort run results.
type OrderBy string

const (
	// OrderByStartTime sorts by run start time.
	OrderByStartTime OrderBy = "start_time"

	// OrderByEndTime sorts by run end time.
	OrderByEndTime OrderBy = "end_time"

	// OrderByID sorts by run ID.
	OrderByID OrderBy = "id"

	// OrderByStatus sorts by run status.
	OrderByStatus OrderBy = "status"
)

// Matches reports whether the record satisfies the filter's predicates.
func (f ListFilter) Matches(r *Record) bool {
	if len(f.Status) > 0 {
		found := false
		for _, s := range f.Status {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Target != "" && r.Target != f.Target {
		return false
	}
	if f.GoalID != "" && r.GoalID != f.GoalID {
		return false
	}
	if !f.FromTime.IsZero() && r.StartTime.Before(f.FromTime) {
		return false
	}
	if !f.ToTime.IsZero() && !r.StartTime.Before(f.ToTime) {
		return false
	}
	return true
}

// Apply filters, sorts and paginates records in memory. Backends without
// native query support use it after loading candidates.
func (f ListFilter) Apply(records []*Record) []*Record {
	out := make([]*Record, 0, len(records))
	for _, r := range records {
		if f.Matches(r) {
			out = append(out, r)
		}
	}

	less := func(a, b *Record) bool {
		switch f.OrderBy {
		case OrderByEndTime:
			return a.EndTime.Before(b.EndTime)
		case OrderByID:
			return a.ID < b.ID
		case OrderByStatus:
			return a.Status < b.Status
		default:
			return a.StartTime.Before(b.StartTime)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if f.Descending {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*Record{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Summary provides aggregate statistics about runs.
type Summary struct {
	// TotalRuns is the total number of runs.
	TotalRuns int64

	// DoneRuns is the number of runs that finished normally.
	DoneRuns int64

	// BudgetRuns is the number of runs stopped by a budget.
	BudgetRuns int64

	// FailedRuns is the number of runs that failed a precondition.
	FailedRuns int64

	// RunningRuns is the number of runs in progress.
	RunningRuns int64

	// AverageDuration is the average duration of finished runs.
	AverageDuration time.Duration
}

// SummaryProvider is an optional interface for stores that support summaries.
type SummaryProvider interface {
	// Summary returns aggregate statistics.
	Summary(ctx context.Context, filter ListFilter) (Summary, error)
}

// Summarize computes a Summary from records.
func Summarize(records []*Record) Summary {
	var s Summary
	var total time.Duration
	var finished int64
	for _, r := range records {
		s.TotalRuns++
		switch r.Status {
		case StatusDone:
			s.DoneRuns++
		case StatusBudget:
			s.BudgetRuns++
		case StatusError:
			s.FailedRuns++
		case StatusRunning:
			s.RunningRuns++
		}
		if !r.EndTime.IsZero() {
			total += r.EndTime.Sub(r.StartTime)
			finished++
		}
	}
	if finished > 0 {
		s.AverageDuration = total / time.Duration(finished)
	}
	return s
}
