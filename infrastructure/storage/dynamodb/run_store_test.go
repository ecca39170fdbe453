package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"

	"github.com/felixgeelhaar/recon-go/domain/config"
	"github.com/felixgeelhaar/recon-go/domain/run"
)

func TestBuildCondition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		filter    run.ListFilter
		wantOK    bool
		wantNames int
	}{
		{"empty", run.ListFilter{}, false, 0},
		{"status", run.ListFilter{Status: []run.Status{run.StatusDone, run.StatusBudget}}, true, 1},
		{"target and goal", run.ListFilter{Target: "10.0.0.1", GoalID: "simple_recon"}, true, 2},
		{"window", run.ListFilter{FromTime: time.Now(), ToTime: time.Now()}, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cond, ok := buildCondition(tt.filter)
			if ok != tt.wantOK {
				t.Fatalf("buildCondition() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			expr, err := expression.NewBuilder().WithFilter(cond).Build()
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if got := len(expr.Names()); got != tt.wantNames {
				t.Errorf("Names() = %d entries, want %d", got, tt.wantNames)
			}
		})
	}
}

func TestFormatTimeSortsLexically(t *testing.T) {
	t.Parallel()

	a := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := a.Add(500 * time.Millisecond)
	if !(formatTime(a) < formatTime(b)) {
		t.Errorf("formatTime(%v) >= formatTime(%v)", a, b)
	}
}

func TestItemRoundTrip(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := run.NewRecord("r1", "10.0.0.1", "simple_recon", "Simple", 30, start)
	rec.Status = run.StatusDone
	rec.EndTime = start.Add(time.Minute)

	item, err := toItem(rec)
	if err != nil {
		t.Fatalf("toItem() error = %v", err)
	}
	if item.EndTime == "" || item.Status != "done" {
		t.Errorf("toItem() = %+v", item)
	}

	got, err := fromItem(item)
	if err != nil {
		t.Fatalf("fromItem() error = %v", err)
	}
	if got.ID != "r1" || !got.EndTime.Equal(rec.EndTime) {
		t.Errorf("fromItem() = %+v", got)
	}
}

func TestRunStore_InvalidID(t *testing.T) {
	t.Parallel()

	s := &RunStore{tableName: "t", queryTimeout: time.Second}
	ctx := context.Background()

	if err := s.Save(ctx, &run.Record{}); !errors.Is(err, run.ErrInvalidRunID) {
		t.Errorf("Save() error = %v, want ErrInvalidRunID", err)
	}
	if _, err := s.Get(ctx, ""); !errors.Is(err, run.ErrInvalidRunID) {
		t.Errorf("Get() error = %v, want ErrInvalidRunID", err)
	}
	if err := s.Delete(ctx, ""); !errors.Is(err, run.ErrInvalidRunID) {
		t.Errorf("Delete() error = %v, want ErrInvalidRunID", err)
	}
}

func TestConfigFor(t *testing.T) {
	t.Parallel()

	cfg := ConfigFor(config.RunStoreConfig{Driver: "dynamodb"})
	if cfg.Region != "us-east-1" || cfg.Table != "recon_runs" || cfg.Endpoint != "" {
		t.Errorf("ConfigFor(defaults) = %+v", cfg)
	}

	cfg = ConfigFor(config.RunStoreConfig{Region: "eu-west-1", Endpoint: "http://localhost:8000", Table: "lab_runs"})
	if cfg.Region != "eu-west-1" || cfg.Table != "lab_runs" || cfg.Endpoint != "http://localhost:8000" {
		t.Errorf("ConfigFor() = %+v", cfg)
	}
}
