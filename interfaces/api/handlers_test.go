package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/felixgeelhaar/recon-go/application"
	"github.com/felixgeelhaar/recon-go/domain/goal"
	"github.com/felixgeelhaar/recon-go/domain/run"
	"github.com/felixgeelhaar/recon-go/domain/scan"
	"github.com/felixgeelhaar/recon-go/infrastructure/nmap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubScanner struct {
	startErr error
	started  []string
	records  map[string]*run.Record
	filter   run.ListFilter
}

func (s *stubScanner) Goals() []goal.Spec { return goal.Builtin() }

func (s *stubScanner) Start(_ context.Context, target, goalID string) (*run.Record, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.started = append(s.started, target+"/"+goalID)
	return run.NewRecord("scan-1", target, goalID, "", 30, time.Now()), nil
}

func (s *stubScanner) Status() run.StatusView {
	v := run.IdleView()
	v.ScanID = "scan-1"
	v.Status = run.StatusRunning
	v.Step = 2
	v.MaxSteps = 30
	return v
}

func (s *stubScanner) Runs(_ context.Context, filter run.ListFilter) ([]*run.Record, error) {
	s.filter = filter
	out := make([]*run.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}

func (s *stubScanner) Run(_ context.Context, id string) (*run.Record, error) {
	if r, ok := s.records[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s", run.ErrRunNotFound, id)
}

func newTestRouter(t *testing.T, sc Scanner, metrics http.Handler) *gin.Engine {
	t.Helper()

	router, err := NewRouter(Config{Scanner: sc, MetricsHandler: metrics})
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNewRouter_RequiresScanner(t *testing.T) {
	t.Parallel()

	if _, err := NewRouter(Config{}); err == nil {
		t.Error("NewRouter() error = nil, want error")
	}
}

func TestPing(t *testing.T) {
	t.Parallel()

	w := serve(newTestRouter(t, &stubScanner{}, nil), httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/ping = %d, want 200", w.Code)
	}
	var body struct {
		OK  bool `json:"ok"`
		PID int  `json:"pid"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !body.OK || body.PID == 0 {
		t.Errorf("ping = %+v", body)
	}
}

func TestListGoals(t *testing.T) {
	t.Parallel()

	w := serve(newTestRouter(t, &stubScanner{}, nil), httptest.NewRequest(http.MethodGet, "/api/goals", nil))
	var body struct {
		Goals []goalResponse `json:"goals"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Goals) != len(goal.Builtin()) || body.Goals[0].ID != goal.DefaultID {
		t.Errorf("goals = %+v", body.Goals)
	}
}

func TestStartScan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		startErr    error
		wantCode    int
		wantStarted string
	}{
		{"json", "application/json", `{"target":"192.0.2.10","goal":"web_ports"}`, nil, http.StatusOK, "192.0.2.10/web_ports"},
		{"form", "application/x-www-form-urlencoded", url.Values{"target": {"192.0.2.10"}}.Encode(), nil, http.StatusOK, "192.0.2.10/simple_recon"},
		{"malformed json", "application/json", `{"target":`, nil, http.StatusBadRequest, ""},
		{"invalid target", "application/json", `{"target":"a;b"}`, fmt.Errorf("%w: bad", scan.ErrInvalidTarget), http.StatusBadRequest, ""},
		{"unknown goal", "application/json", `{"target":"192.0.2.10","goal":"x"}`, fmt.Errorf("%w: x", goal.ErrGoalNotFound), http.StatusBadRequest, ""},
		{"run active", "application/json", `{"target":"192.0.2.10"}`, run.ErrRunActive, http.StatusConflict, ""},
		{"preflight", "application/json", `{"target":"192.0.2.10"}`, fmt.Errorf("%w: %w", application.ErrPreflight, nmap.ErrNmapNotFound), http.StatusServiceUnavailable, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sc := &stubScanner{startErr: tt.startErr}
			req := httptest.NewRequest(http.MethodPost, "/api/scan", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)

			w := serve(newTestRouter(t, sc, nil), req)
			if w.Code != tt.wantCode {
				t.Fatalf("POST /api/scan = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantStarted == "" {
				return
			}
			if len(sc.started) != 1 || sc.started[0] != tt.wantStarted {
				t.Errorf("started = %v, want [%s]", sc.started, tt.wantStarted)
			}
			if !strings.Contains(w.Body.String(), `"scan_id":"scan-1"`) {
				t.Errorf("body = %s", w.Body.String())
			}
		})
	}
}

func TestScanStatus(t *testing.T) {
	t.Parallel()

	w := serve(newTestRouter(t, &stubScanner{}, nil), httptest.NewRequest(http.MethodGet, "/api/scan/status", nil))
	var v run.StatusView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if v.ScanID != "scan-1" || v.Status != run.StatusRunning || v.Step != 2 || v.MaxSteps != 30 {
		t.Errorf("status = %+v", v)
	}
}

func TestRuns(t *testing.T) {
	t.Parallel()

	rec := run.NewRecord("r1", "192.0.2.10", "simple_recon", "Simple recon scan", 30, time.Now())
	rec.Status = run.StatusDone
	rec.EndTime = rec.StartTime.Add(time.Minute)
	sc := &stubScanner{records: map[string]*run.Record{"r1": rec}}
	router := newTestRouter(t, sc, nil)

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
	}{
		{"list", "/api/runs?status=done,budget&limit=5", http.StatusOK, `"id":"r1"`},
		{"bad limit", "/api/runs?limit=-1", http.StatusBadRequest, "limit"},
		{"get", "/api/runs/r1", http.StatusOK, `"target":"192.0.2.10"`},
		{"missing", "/api/runs/nope", http.StatusNotFound, "run not found"},
		{"report", "/api/runs/r1/report", http.StatusOK, "Status:     done"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.wantCode {
				t.Fatalf("GET %s = %d, want %d", tt.path, w.Code, tt.wantCode)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("GET %s body missing %q: %s", tt.path, tt.wantBody, w.Body.String())
			}
		})
	}

	if len(sc.filter.Status) != 2 || sc.filter.Limit != 5 {
		t.Errorf("filter = %+v, want two statuses and limit 5", sc.filter)
	}
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "recon_turns_total 1\n")
	})

	w := serve(newTestRouter(t, &stubScanner{}, metrics), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "recon_turns_total") {
		t.Errorf("GET /metrics = %d %s", w.Code, w.Body.String())
	}

	w = serve(newTestRouter(t, &stubScanner{}, nil), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /metrics without handler = %d, want 404", w.Code)
	}
}
