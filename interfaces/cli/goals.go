package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recon-go/domain/goal"
	"github.com/felixgeelhaar/recon-go/domain/scan"
	"github.com/felixgeelhaar/recon-go/infrastructure/nmap"
)

// newGoalsCmd creates the goals command.
func (a *App) newGoalsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "goals",
		Short: "List the goals a scan can pursue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(a.configPath, false, a.stderr)
			if err != nil {
				return err
			}
			registry, err := goalRegistry(cfg)
			if err != nil {
				return err
			}
			return a.printGoals(registry.List(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func (a *App) printGoals(specs []goal.Spec, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(specs)
	}

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tCOMPLETION\tREACHABILITY")
	for _, s := range specs {
		reach := "-"
		if s.IncludesReachability {
			reach = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.DisplayLabel(), s.Completion, reach)
	}
	return w.Flush()
}

type preflightOptions struct {
	target string
}

// newPreflightCmd creates the preflight command.
func (a *App) newPreflightCmd() *cobra.Command {
	opts := &preflightOptions{}

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check that scans can run on this host",
		Long: `Check that nmap is installed and has the privileges the configuration
asks for. With --target, also validate and resolve the target.

Examples:
  recon preflight
  recon preflight -c recon.yaml --target scanme.example.org`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.preflight(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "Target to validate and resolve")

	return cmd
}

func (a *App) preflight(ctx context.Context, opts *preflightOptions) error {
	cfg, err := loadConfig(a.configPath, false, a.stderr)
	if err != nil {
		return err
	}

	pf := newPreflight(cfg, nmap.NewExecRunner())
	rep, err := pf.CheckHost(ctx)
	if err != nil {
		return err
	}

	if !cfg.ExecutionEnabled() {
		fmt.Fprintf(a.stdout, "Execution disabled: nmap checks skipped\n")
	} else {
		fmt.Fprintf(a.stdout, "✓ nmap found: %s\n", rep.BinaryPath)
		if rep.Version != "" {
			fmt.Fprintf(a.stdout, "  Version: %s\n", rep.Version)
		}
		if cfg.Nmap.Sudo {
			fmt.Fprintf(a.stdout, "  Privileges: passwordless sudo\n")
		} else {
			fmt.Fprintf(a.stdout, "  Privileges: running as root\n")
		}
	}

	if opts.target == "" {
		return nil
	}

	target, err := scan.ParseTarget(opts.target)
	if err != nil {
		return err
	}
	addrs, err := pf.CheckTarget(ctx, target)
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		fmt.Fprintf(a.stdout, "✓ Target %s (resolution disabled)\n", target)
		return nil
	}
	fmt.Fprintf(a.stdout, "✓ Target %s: %s\n", target, strings.Join(addrs, ", "))
	return nil
}
