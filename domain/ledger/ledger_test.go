package ledger_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/recon-go/domain/ledger"
)

func TestNew(t *testing.T) {
	t.Parallel()

	l := ledger.New("run-123")
	if l.RunID() != "run-123" {
		t.Errorf("RunID() = %s, want run-123", l.RunID())
	}
	if l.Count() != 0 {
		t.Errorf("Count() = %d, want 0 for new ledger", l.Count())
	}
	if l.LastEntry() != nil {
		t.Error("LastEntry() != nil for new ledger")
	}
}

func TestLedger_Append(t *testing.T) {
	t.Parallel()

	t.Run("sets run ID and ID", func(t *testing.T) {
		t.Parallel()

		l := ledger.New("run-1")
		l.Append(ledger.Entry{Type: ledger.EntryWait, Message: "waiting"})

		e := l.Entries()[0]
		if e.RunID != "run-1" {
			t.Errorf("RunID = %s, want run-1", e.RunID)
		}
		if e.ID == "" {
			t.Error("ID is empty")
		}
		if e.Timestamp.IsZero() {
			t.Error("Timestamp is zero")
		}
	})

	t.Run("ids are unique", func(t *testing.T) {
		t.Parallel()

		l := ledger.New("run-1")
		for i := 0; i < 50; i++ {
			l.Append(ledger.NewEntry(ledger.EntryTurnStarted, "", i, "turn", nil))
		}
		seen := make(map[string]bool)
		for _, e := range l.Entries() {
			if seen[e.ID] {
				t.Fatalf("duplicate entry ID %s", e.ID)
			}
			seen[e.ID] = true
		}
	})
}

func TestLedger_Records(t *testing.T) {
	t.Parallel()

	l := ledger.New("run-7")
	l.RecordRunStarted("192.0.2.1", "simple_recon")
	l.RecordTurnStarted(1, []string{"host_reachability", "wait", "done"})
	l.RecordDecision(1, ledger.DecisionDetails{ActionID: "host_reachability", Reason: "check liveness"})
	l.RecordInvocation(1, "host_reachability", "nmap -sn 192.0.2.1")
	l.RecordInvocationDone(1, ledger.InvocationDetails{ActionID: "host_reachability", Status: "ok", Duration: 2 * time.Second})
	l.RecordMerge(1, ledger.MergeDetails{ActionID: "host_reachability", Reachability: "up"})
	l.RecordTurnStarted(2, []string{"port_scan", "wait", "done"})
	l.RecordRejection(2, ledger.RejectionDetails{Code: "off_menu", Detail: "nope", Menu: []string{"wait"}})
	l.RecordDecisionError(3, errors.New("connection refused"))
	l.RecordBudgetExhausted(3, ledger.BudgetDetails{BudgetName: "turns", Consumed: 3, Limit: 3})
	l.RecordRunFinished(3, "budget", "turns")

	if l.Count() != 11 {
		t.Fatalf("Count() = %d, want 11", l.Count())
	}

	rejections := l.EntriesByType(ledger.EntryRejection)
	if len(rejections) != 1 {
		t.Fatalf("EntriesByType(rejection) = %d, want 1", len(rejections))
	}
	var rd ledger.RejectionDetails
	if err := rejections[0].DecodeDetails(&rd); err != nil {
		t.Fatalf("DecodeDetails() error = %v", err)
	}
	if rd.Code != "off_menu" {
		t.Errorf("Code = %s, want off_menu", rd.Code)
	}

	last := l.LastEntry()
	if last.Type != ledger.EntryRunFinished || last.Turn != 3 {
		t.Errorf("LastEntry() = %+v, want run_finished on turn 3", last)
	}

	lines := l.Lines(2)
	if len(lines) != 2 {
		t.Fatalf("Lines(2) = %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[1], "run finished: status=budget") {
		t.Errorf("Lines(2)[1] = %q", lines[1])
	}
	if got := len(l.Lines(0)); got != 11 {
		t.Errorf("len(Lines(0)) = %d, want 11", got)
	}
}

func TestLedger_ConcurrentReaders(t *testing.T) {
	t.Parallel()

	l := ledger.New("run-c")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(turn int) {
			defer wg.Done()
			l.RecordWait(turn, time.Second)
		}(i)
		go func() {
			defer wg.Done()
			_ = l.Lines(5)
		}()
	}
	wg.Wait()

	if l.Count() != 20 {
		t.Errorf("Count() = %d, want 20", l.Count())
	}
}
