package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recon-go/domain/config"
	"github.com/felixgeelhaar/recon-go/infrastructure/planner"
)

// validateOptions holds options for the validate command.
type validateOptions struct {
	strict bool
}

// newValidateCmd creates the validate command.
func (a *App) newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate a recon configuration file for correctness.

This command checks:
  - File format (YAML or JSON)
  - Budget limits and nmap timeouts
  - LLM provider settings and the API key
  - Storage and telemetry drivers
  - The goals file, when one is named
  - Environment variable references (in strict mode)

Examples:
  recon validate -c recon.yaml
  recon validate -c recon.yaml --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validateConfig(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail on missing environment variables")

	return cmd
}

func (a *App) validateConfig(opts *validateOptions) error {
	if a.configPath == "" {
		return fmt.Errorf("configuration file path is required (-c flag)")
	}

	cfg, err := loadConfig(a.configPath, opts.strict, a.stderr)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	goals, err := goalRegistry(cfg)
	if err != nil {
		return fmt.Errorf("goals file: %w", err)
	}
	if cfg.LLM.NeedsAPIKey() {
		if _, err := planner.ResolveAPIKey(cfg.LLM); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	fmt.Fprintf(a.stdout, "✓ Configuration is valid\n")
	fmt.Fprintf(a.stdout, "\nConfiguration summary:\n")
	if cfg.Target != "" {
		fmt.Fprintf(a.stdout, "  Target: %s\n", cfg.Target)
	}
	fmt.Fprintf(a.stdout, "  Goal: %s\n", cfg.Goal)
	fmt.Fprintf(a.stdout, "  Goals available: %d\n", goals.Len())
	fmt.Fprintf(a.stdout, "  Budgets:\n")
	fmt.Fprintf(a.stdout, "    - turns: %d\n", cfg.Budget.MaxTurns)
	fmt.Fprintf(a.stdout, "    - invocations: %d\n", cfg.Budget.MaxInvocations)
	fmt.Fprintf(a.stdout, "    - elapsed: %s\n", cfg.Budget.MaxElapsed.Duration())
	fmt.Fprintf(a.stdout, "    - consecutive rejections: %d\n", cfg.Budget.MaxConsecutiveRejections)
	fmt.Fprintf(a.stdout, "  Decision-maker: %s (%s)\n", cfg.LLM.Provider, orNone(cfg.LLM.Model))
	fmt.Fprintf(a.stdout, "  nmap: %s, sudo=%t, %s\n", cfg.Nmap.Binary, cfg.Nmap.Sudo, executionMode(cfg))
	fmt.Fprintf(a.stdout, "  Run store: %s\n", cfg.Storage.Runs.Driver)
	fmt.Fprintf(a.stdout, "  Artifacts: %s\n", cfg.Storage.Artifacts.Driver)

	if cfg.Telemetry.Tracing.Enabled {
		fmt.Fprintf(a.stdout, "  Tracing: %s\n", cfg.Telemetry.Tracing.Exporter)
	}
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(a.stdout, "  Metrics: %s\n", cfg.Telemetry.Metrics.Exporter)
	}

	return nil
}

func executionMode(cfg *config.Config) string {
	if cfg.ExecutionEnabled() {
		return "execution enabled"
	}
	return "dry run"
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
