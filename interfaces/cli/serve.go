package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recon-go/infrastructure/logging"
	"github.com/felixgeelhaar/recon-go/infrastructure/mcp"
	"github.com/felixgeelhaar/recon-go/interfaces/api"
)

type serveOptions struct {
	addr string
}

// newServeCmd creates the serve command.
func (a *App) newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST control surface",
		Long: `Serve the REST API: start a scan, poll its status, browse past runs and
scrape metrics. One scan runs at a time. The goals file, when configured, is
reloaded whenever it changes.

Examples:
  recon serve -c recon.yaml
  recon serve --addr 127.0.0.1:12001`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (overrides config)")

	return cmd
}

func (a *App) serve(ctx context.Context, opts *serveOptions) error {
	cfg, err := loadConfig(a.configPath, false, a.stderr)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(ctx) }()

	if err := rt.watchGoals(ctx); err != nil {
		return err
	}

	router, err := api.NewRouter(api.Config{
		Scanner:        rt.service,
		MetricsHandler: rt.telemetry.MetricsHandler(),
		ServiceName:    cfg.Telemetry.ServiceName,
		DefaultGoal:    cfg.Goal,
	})
	if err != nil {
		return err
	}

	return api.NewServer(cfg.Server.Addr, router).ListenAndServe(ctx)
}

type mcpOptions struct {
	httpAddr string
}

// newMCPCmd creates the mcp command.
func (a *App) newMCPCmd() *cobra.Command {
	opts := &mcpOptions{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the scan tools over MCP",
		Long: `Serve list_goals, start_scan and scan_status to an MCP client. By default
the server speaks over stdin/stdout and logs go to stderr. With --http it
listens on the given address instead (JSON-RPC on /mcp, events on /mcp/sse).

Examples:
  recon mcp -c recon.yaml
  recon mcp -c recon.yaml --http 127.0.0.1:12002`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serveMCP(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.httpAddr, "http", "", "Serve over HTTP on this address instead of stdio")

	return cmd
}

func (a *App) serveMCP(ctx context.Context, opts *mcpOptions) error {
	cfg, err := loadConfig(a.configPath, false, a.stderr)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(ctx) }()

	if err := rt.watchGoals(ctx); err != nil {
		return err
	}

	srv, err := mcp.NewServer(mcp.ServerConfig{
		Name:        "recon",
		Version:     Version,
		Scanner:     rt.service,
		DefaultGoal: cfg.Goal,
	})
	if err != nil {
		return err
	}
	middleware := mcp.WithMiddleware(mcp.Recover(), mcp.RequestID())

	if opts.httpAddr != "" {
		logging.Info().
			Add(logging.Component("mcp")).
			Add(logging.Operation("serve_http")).
			Add(logging.Str("addr", opts.httpAddr)).
			Msg("serving")
		return srv.ServeHTTP(ctx, opts.httpAddr,
			[]mcp.HTTPOption{mcp.WithReadTimeout(30 * time.Second), mcp.WithWriteTimeout(30 * time.Second)},
			middleware,
		)
	}

	logging.Info().
		Add(logging.Component("mcp")).
		Add(logging.Operation("serve_stdio")).
		Msg("serving")

	return srv.ServeStdio(ctx, middleware)
}
