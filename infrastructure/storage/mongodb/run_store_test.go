package mongodb

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/felixgeelhaar/recon-go/domain/run"
	"github.com/felixgeelhaar/recon-go/domain/scan"
)

func TestBuildFilter(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := buildFilter(run.ListFilter{
		Status:   []run.Status{run.StatusDone, run.StatusBudget},
		Target:   "10.0.0.1",
		FromTime: from,
	})

	if got := f["target"]; got != "10.0.0.1" {
		t.Errorf("target = %v", got)
	}
	in, ok := f["status"].(bson.M)["$in"].([]string)
	if !ok || len(in) != 2 {
		t.Errorf("status = %v", f["status"])
	}
	window, ok := f["start_time"].(bson.M)
	if !ok || window["$gte"] != from {
		t.Errorf("start_time = %v", f["start_time"])
	}
	if _, ok := window["$lt"]; ok {
		t.Error("unexpected upper bound")
	}

	if len(buildFilter(run.ListFilter{})) != 0 {
		t.Error("empty filter should match everything")
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	t.Parallel()

	rec := run.NewRecord("r1", "10.0.0.1", "simple_recon", "Simple", 30, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rec.State.OpenPorts = []scan.Port{{Number: 443, Protocol: "tcp"}}

	doc, err := toDocument(rec)
	if err != nil {
		t.Fatalf("toDocument() error = %v", err)
	}
	if doc.ID != "r1" || doc.Status != string(run.StatusRunning) || doc.EndTime != nil {
		t.Errorf("toDocument() = %+v", doc)
	}

	got, err := fromDocument(doc)
	if err != nil {
		t.Fatalf("fromDocument() error = %v", err)
	}
	if len(got.State.OpenPorts) != 1 || got.State.OpenPorts[0].Number != 443 {
		t.Errorf("fromDocument().State = %+v", got.State)
	}
}
