// Package cli provides the recon command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	recongo "github.com/felixgeelhaar/recon-go"
)

// Version is the release version reported by every surface.
const Version = recongo.Version

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	configPath string
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "recon",
		Short: "Bounded nmap reconnaissance driven by a language model",
		Long: `recon plans nmap reconnaissance of one authorized host. A language model
picks the next action from a menu computed from what is already known; every
reply is validated before anything runs, and each run is bounded by turn,
invocation and wall-clock budgets.

Only scan hosts you are authorized to test.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	app.root.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Path to configuration file (YAML or JSON)")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newValidateCmd(),
		app.newRunCmd(),
		app.newServeCmd(),
		app.newMCPCmd(),
		app.newGoalsCmd(),
		app.newPreflightCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := recongo.ReadBuildInfo()
			fmt.Fprintf(a.stdout, "recon version %s\n", info.Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s", info.Commit)
			if info.Modified {
				fmt.Fprint(a.stdout, " (modified)")
			}
			fmt.Fprintf(a.stdout, "\n  Build date: %s\n", info.Date)
			fmt.Fprintf(a.stdout, "  Go: %s\n", info.GoVersion)
		},
	}
}
