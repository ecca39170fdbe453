// Package storetest holds behaviour tests shared by every run.Store backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/recon-go/domain/run"
	"github.com/felixgeelhaar/recon-go/domain/scan"
)

// Factory returns an empty store. Cleanup should be registered on t.
type Factory func(t *testing.T) run.Store

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func record(id, target, goalID string, status run.Status, offset time.Duration) *run.Record {
	r := run.NewRecord(id, target, goalID, "", 30, base.Add(offset))
	r.Status = status
	if status.IsTerminal() {
		r.EndTime = r.StartTime.Add(time.Minute)
	}
	return r
}

// RunStore exercises the run.Store contract.
func RunStore(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("save and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rec := record("r1", "10.0.0.1", "simple_recon", run.StatusRunning, 0)
		rec.Stages = append(rec.Stages, run.Stage{ActionID: "port_scan_1_100", Status: "ok", Output: "22/tcp open"})
		rec.State.OpenPorts = []scan.Port{{Number: 22, Protocol: "tcp"}}
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := s.Get(ctx, "r1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Target != "10.0.0.1" || got.Status != run.StatusRunning {
			t.Errorf("Get() = %+v", got)
		}
		if len(got.Stages) != 1 || got.Stages[0].Output != "22/tcp open" {
			t.Errorf("Get().Stages = %+v", got.Stages)
		}
		if len(got.State.OpenPorts) != 1 || got.State.OpenPorts[0].Number != 22 {
			t.Errorf("Get().State.OpenPorts = %+v", got.State.OpenPorts)
		}
		if !got.StartTime.Equal(rec.StartTime) {
			t.Errorf("Get().StartTime = %v, want %v", got.StartTime, rec.StartTime)
		}
	})

	t.Run("errors", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.Save(ctx, &run.Record{}); !errors.Is(err, run.ErrInvalidRunID) {
			t.Errorf("Save(empty id) error = %v, want ErrInvalidRunID", err)
		}
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, run.ErrRunNotFound) {
			t.Errorf("Get(missing) error = %v, want ErrRunNotFound", err)
		}
		if err := s.Update(ctx, record("missing", "h", "g", run.StatusDone, 0)); !errors.Is(err, run.ErrRunNotFound) {
			t.Errorf("Update(missing) error = %v, want ErrRunNotFound", err)
		}
		if err := s.Delete(ctx, "missing"); !errors.Is(err, run.ErrRunNotFound) {
			t.Errorf("Delete(missing) error = %v, want ErrRunNotFound", err)
		}

		rec := record("dup", "h", "g", run.StatusRunning, 0)
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := s.Save(ctx, rec); !errors.Is(err, run.ErrRunExists) {
			t.Errorf("Save(duplicate) error = %v, want ErrRunExists", err)
		}
	})

	t.Run("update and delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rec := record("r1", "10.0.0.1", "simple_recon", run.StatusRunning, 0)
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		rec.Status = run.StatusDone
		rec.StopReason = run.StopGoalAchieved
		rec.EndTime = rec.StartTime.Add(time.Minute)
		if err := s.Update(ctx, rec); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		got, err := s.Get(ctx, "r1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Status != run.StatusDone || got.StopReason != run.StopGoalAchieved {
			t.Errorf("Get() after Update = %+v", got)
		}

		if err := s.Delete(ctx, "r1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := s.Get(ctx, "r1"); !errors.Is(err, run.ErrRunNotFound) {
			t.Errorf("Get() after Delete error = %v, want ErrRunNotFound", err)
		}
	})

	t.Run("list and count", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, r := range []*run.Record{
			record("c", "10.0.0.1", "simple_recon", run.StatusDone, 2*time.Hour),
			record("a", "10.0.0.2", "web_ports", run.StatusBudget, 0),
			record("b", "10.0.0.1", "simple_recon", run.StatusRunning, time.Hour),
		} {
			if err := s.Save(ctx, r); err != nil {
				t.Fatalf("Save(%s) error = %v", r.ID, err)
			}
		}

		tests := []struct {
			name   string
			filter run.ListFilter
			want   []string
		}{
			{"all by start", run.ListFilter{}, []string{"a", "b", "c"}},
			{"descending", run.ListFilter{Descending: true}, []string{"c", "b", "a"}},
			{"status", run.ListFilter{Status: []run.Status{run.StatusDone, run.StatusBudget}}, []string{"a", "c"}},
			{"target", run.ListFilter{Target: "10.0.0.1"}, []string{"b", "c"}},
			{"goal", run.ListFilter{GoalID: "web_ports"}, []string{"a"}},
			{"page", run.ListFilter{Limit: 1, Offset: 1}, []string{"b"}},
		}
		for _, tt := range tests {
			got, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List(%s) error = %v", tt.name, err)
			}
			if len(got) != len(tt.want) {
				t.Errorf("List(%s) returned %d records, want %d", tt.name, len(got), len(tt.want))
				continue
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("List(%s)[%d].ID = %s, want %s", tt.name, i, got[i].ID, id)
				}
			}
		}

		n, err := s.Count(ctx, run.ListFilter{Target: "10.0.0.1"})
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if n != 2 {
			t.Errorf("Count() = %d, want 2", n)
		}

		if sp, ok := s.(run.SummaryProvider); ok {
			sum, err := sp.Summary(ctx, run.ListFilter{})
			if err != nil {
				t.Fatalf("Summary() error = %v", err)
			}
			if sum.TotalRuns != 3 || sum.DoneRuns != 1 || sum.BudgetRuns != 1 || sum.RunningRuns != 1 {
				t.Errorf("Summary() = %+v", sum)
			}
		}
	})
}
