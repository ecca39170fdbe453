package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcpgo "github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/recon-go/domain/goal"
	"github.com/felixgeelhaar/recon-go/domain/run"
	"github.com/felixgeelhaar/recon-go/infrastructure/logging"
)

// Tool names.
const (
	ToolListGoals  = "list_goals"
	ToolStartScan  = "start_scan"
	ToolScanStatus = "scan_status"
)

// ErrInvalidInput is returned for tool arguments that cannot be decoded.
var ErrInvalidInput = errors.New("invalid tool input")

const defaultInstructions = "Plan bounded nmap reconnaissance of one authorized host. " +
	"Call list_goals, then start_scan with a target and goal id, then poll scan_status until status is done, budget or error."

// Scanner is the control surface the server drives.
type Scanner interface {
	Goals() []goal.Spec
	Start(ctx context.Context, target, goalID string) (*run.Record, error)
	Status() run.StatusView
}

// ServerConfig configures a scan MCP server.
type ServerConfig struct {
	// Name is the server name.
	Name string

	// Version is the server version.
	Version string

	// Scanner runs and reports scans.
	Scanner Scanner

	// DefaultGoal is used when start_scan omits the goal.
	DefaultGoal string

	// Instructions overrides the usage text sent to clients.
	Instructions string
}

// Server exposes list_goals, start_scan and scan_status over MCP.
type Server struct {
	srv         *mcpgo.Server
	scanner     Scanner
	defaultGoal string
}

// NewServer creates the server and registers its tools.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Scanner == nil {
		return nil, errors.New("scanner is required")
	}
	if cfg.Name == "" {
		cfg.Name = "recon"
	}
	if cfg.DefaultGoal == "" {
		cfg.DefaultGoal = goal.DefaultID
	}
	if cfg.Instructions == "" {
		cfg.Instructions = defaultInstructions
	}

	info := mcpgo.ServerInfo{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Description: "Bounded nmap reconnaissance planner",
		Capabilities: mcpgo.Capabilities{
			Tools: true,
		},
	}

	s := &Server{
		srv:         mcpgo.NewServer(info, mcpgo.WithInstructions(cfg.Instructions)),
		scanner:     cfg.Scanner,
		defaultGoal: cfg.DefaultGoal,
	}

	s.srv.Tool(ToolListGoals).
		Description("List the reconnaissance goals a scan can pursue.").
		Handler(s.listGoals)
	s.srv.Tool(ToolStartScan).
		Description(`Start a scan. Input: {"target": "<hostname or IPv4>", "goal": "<goal id>"}. Only one scan runs at a time.`).
		Handler(s.startScan)
	s.srv.Tool(ToolScanStatus).
		Description("Report the current scan: status, step, stages, recent log lines and results once finished.").
		Handler(s.scanStatus)

	return s, nil
}

type goalInfo struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

func (s *Server) listGoals(_ context.Context, _ json.RawMessage) (string, error) {
	specs := s.scanner.Goals()
	out := struct {
		Goals []goalInfo `json:"goals"`
	}{Goals: make([]goalInfo, 0, len(specs))}
	for _, g := range specs {
		out.Goals = append(out.Goals, goalInfo{ID: g.ID, Label: g.DisplayLabel(), Description: g.Description})
	}
	return marshal(out)
}

type startInput struct {
	Target string `json:"target"`
	Goal   string `json:"goal"`
}

func (s *Server) startScan(ctx context.Context, input json.RawMessage) (string, error) {
	var in startInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if strings.TrimSpace(in.Goal) == "" {
		in.Goal = s.defaultGoal
	}

	rec, err := s.scanner.Start(ctx, in.Target, in.Goal)
	if err != nil {
		logging.Warn().
			Add(logging.Component("mcp")).
			Add(logging.Target(in.Target)).
			Add(logging.ErrorField(err)).
			Msg("start_scan refused")
		return "", err
	}

	return marshal(struct {
		ScanID string     `json:"scan_id"`
		Status run.Status `json:"status"`
	}{ScanID: rec.ID, Status: run.StatusRunning})
}

func (s *Server) scanStatus(_ context.Context, _ json.RawMessage) (string, error) {
	return marshal(s.scanner.Status())
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ServeStdio runs the server over stdin/stdout until ctx is cancelled or
// the client closes stdin.
func (s *Server) ServeStdio(ctx context.Context, opts ...ServeOption) error {
	return cleanShutdown(ctx, mcpgo.ServeStdio(ctx, s.srv, opts...))
}

// ServeHTTP runs the server over HTTP: JSON-RPC on /mcp, events on /mcp/sse
// and a /health endpoint. It returns nil once ctx is cancelled and the listener
// has drained.
func (s *Server) ServeHTTP(ctx context.Context, addr string, httpOpts []HTTPOption, opts ...ServeOption) error {
	return cleanShutdown(ctx, mcpgo.ServeHTTPWithMiddleware(ctx, s.srv, addr, httpOpts, opts...))
}

func cleanShutdown(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}
