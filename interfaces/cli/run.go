package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recon-go/domain/run"
)

// runOptions holds options for the run command.
type runOptions struct {
	target     string
	goal       string
	jsonOutput bool
	dryRun     bool
	maxTurns   int
}

// newRunCmd creates the run command.
func (a *App) newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one reconnaissance scan and print the result",
		Long: `Run one scan of the target in the foreground. The decision-maker picks
actions until the goal is met, it chooses done, or a budget runs out.

Examples:
  # Quick scan with the default goal
  recon run --target scanme.example.org

  # Pick a goal and tighten the turn budget
  recon run -c recon.yaml --target 192.0.2.10 --goal web_ports --max-turns 10

  # Plan without running nmap
  recon run --target 192.0.2.10 --dry-run --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScan(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "Hostname or IPv4 address to scan (overrides config)")
	cmd.Flags().StringVarP(&opts.goal, "goal", "g", "", "Goal id (overrides config)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the full run record as JSON")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Plan without running nmap")
	cmd.Flags().IntVar(&opts.maxTurns, "max-turns", 0, "Maximum decision turns (overrides config)")

	return cmd
}

func (a *App) runScan(ctx context.Context, opts *runOptions) error {
	cfg, err := loadConfig(a.configPath, false, a.stderr)
	if err != nil {
		return err
	}

	if opts.target != "" {
		cfg.Target = opts.target
	}
	if opts.goal != "" {
		cfg.Goal = opts.goal
	}
	if opts.dryRun {
		cfg.DryRun = true
	}
	if opts.maxTurns > 0 {
		cfg.Budget.MaxTurns = opts.maxTurns
	}
	if strings.TrimSpace(cfg.Target) == "" {
		return errors.New("no target specified (use --target or set target in config)")
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(ctx) }()

	rec, runErr := rt.service.RunSync(ctx, cfg.Target, cfg.Goal)
	if rec == nil {
		return runErr
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return err
		}
		return runErr
	}

	fmt.Fprint(a.stdout, run.Report(rec))
	results, err := json.MarshalIndent(rec.State, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "\nResults (JSON):\n%s\n", results)
	return runErr
}
