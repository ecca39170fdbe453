package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/recon-go/domain/goal"
	"github.com/felixgeelhaar/recon-go/domain/run"
)

type stubScanner struct {
	started []string
	err     error
	view    run.StatusView
}

func (s *stubScanner) Goals() []goal.Spec {
	return goal.Builtin()[:2]
}

func (s *stubScanner) Start(_ context.Context, target, goalID string) (*run.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.started = append(s.started, target+"/"+goalID)
	return run.NewRecord("scan-1", target, goalID, "", 30, time.Now()), nil
}

func (s *stubScanner) Status() run.StatusView {
	return s.view
}

func newTestServer(t *testing.T, sc Scanner) *Server {
	t.Helper()

	srv, err := NewServer(ServerConfig{Name: "recon-test", Version: "0.0.0", Scanner: sc})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}

func TestNewServer_RequiresScanner(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("NewServer() error = nil, want error")
	}
}

func TestServer_ListGoals(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubScanner{})
	out, err := srv.listGoals(context.Background(), nil)
	if err != nil {
		t.Fatalf("listGoals() error = %v", err)
	}

	var got struct {
		Goals []goalInfo `json:"goals"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("listGoals() returned invalid JSON: %v", err)
	}
	if len(got.Goals) != 2 || got.Goals[0].ID != goal.DefaultID {
		t.Errorf("listGoals() = %+v, want two goals starting with %s", got.Goals, goal.DefaultID)
	}
}

func TestServer_StartScan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		scanErr   error
		wantStart string
		wantErr   error
	}{
		{"explicit goal", `{"target":"192.0.2.10","goal":"web_ports"}`, nil, "192.0.2.10/web_ports", nil},
		{"default goal", `{"target":"192.0.2.10"}`, nil, "192.0.2.10/" + goal.DefaultID, nil},
		{"bad json", `{"target":`, nil, "", ErrInvalidInput},
		{"run active", `{"target":"192.0.2.10"}`, run.ErrRunActive, "", run.ErrRunActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sc := &stubScanner{err: tt.scanErr}
			srv := newTestServer(t, sc)

			out, err := srv.startScan(context.Background(), json.RawMessage(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("startScan() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("startScan() error = %v", err)
			}
			if len(sc.started) != 1 || sc.started[0] != tt.wantStart {
				t.Errorf("started = %v, want [%s]", sc.started, tt.wantStart)
			}
			if !strings.Contains(out, `"scan_id":"scan-1"`) || !strings.Contains(out, `"status":"running"`) {
				t.Errorf("startScan() = %s", out)
			}
		})
	}
}

func TestServer_ScanStatus(t *testing.T) {
	t.Parallel()

	view := run.IdleView()
	view.ScanID = "scan-1"
	view.Status = run.StatusBudget
	view.Step = 3
	srv := newTestServer(t, &stubScanner{view: view})

	out, err := srv.scanStatus(context.Background(), nil)
	if err != nil {
		t.Fatalf("scanStatus() error = %v", err)
	}
	var got run.StatusView
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("scanStatus() returned invalid JSON: %v", err)
	}
	if got.ScanID != "scan-1" || got.Status != run.StatusBudget || got.Step != 3 {
		t.Errorf("scanStatus() = %+v", got)
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func TestServer_ServeHTTP(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubScanner{})
	addr := freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.ServeHTTP(ctx, addr,
			[]HTTPOption{WithReadTimeout(5 * time.Second), WithWriteTimeout(5 * time.Second)},
			WithMiddleware(Recover(), RequestID()),
		)
	}()

	healthy := false
	for i := 0; i < 50 && !healthy; i++ {
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			healthy = resp.StatusCode == http.StatusOK
			_ = resp.Body.Close()
		}
		if !healthy {
			time.Sleep(20 * time.Millisecond)
		}
	}
	if !healthy {
		t.Error("GET /health never returned 200")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeHTTP() after cancel = %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("ServeHTTP() did not return after cancel")
	}
}

func TestServer_ServeStdioCancelled(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubScanner{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := srv.ServeStdio(ctx, WithMiddleware(Recover(), RequestID())); err != nil {
		t.Errorf("ServeStdio() with cancelled context = %v, want nil", err)
	}
}
