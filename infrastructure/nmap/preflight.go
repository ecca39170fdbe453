package nmap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"time"

	"github.com/felixgeelhaar/recon-go/domain/scan"
)

// Precondition errors. Each one is fatal for a run before its first turn.
var (
	ErrNmapNotFound     = errors.New("nmap not found on PATH")
	ErrSudoUnavailable  = errors.New("passwordless sudo for nmap is not available")
	ErrPrivilegeMissing = errors.New("raw-socket scans need root when sudo is disabled")
	ErrUnresolvable     = errors.New("target does not resolve")
)

// PreflightConfig selects which checks apply.
type PreflightConfig struct {
	Binary    string
	Sudo      bool
	Execution bool
	Resolve   bool
}

// Report is the result of a successful preflight.
type Report struct {
	BinaryPath string
	Version    string
	Addresses  []string
}

// Preflight verifies that runs can start.
type Preflight struct {
	config   PreflightConfig
	runner   Runner
	lookPath func(string) (string, error)
	euid     func() int
	resolver *net.Resolver
}

// NewPreflight creates a preflight checker.
func NewPreflight(config PreflightConfig, runner Runner) *Preflight {
	return &Preflight{
		config:   config,
		runner:   runner,
		lookPath: exec.LookPath,
		euid:     effectiveUID,
		resolver: net.DefaultResolver,
	}
}

// CheckHost verifies the scanner can run. It is a no-op in dry-run mode.
func (p *Preflight) CheckHost(ctx context.Context) (Report, error) {
	var rep Report
	if !p.config.Execution {
		return rep, nil
	}

	path, err := p.lookPath(p.config.Binary)
	if err != nil {
		return rep, fmt.Errorf("%w: %s", ErrNmapNotFound, p.config.Binary)
	}
	rep.BinaryPath = path

	if p.config.Sudo {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		res, err := p.runner.Run(ctx, []string{"sudo", "-n", p.config.Binary, "--version"})
		if err != nil || res.ExitCode != 0 {
			return rep, fmt.Errorf("%w: configure NOPASSWD for %s or set nmap.sudo=false and run as root", ErrSudoUnavailable, path)
		}
		if lines := scanLines(res.Stdout); len(lines) > 0 {
			rep.Version = lines[0]
		}
		return rep, nil
	}

	if uid := p.euid(); uid != 0 {
		return rep, ErrPrivilegeMissing
	}
	return rep, nil
}

// CheckTarget resolves hostnames when resolution is enabled. IPv4 literals
// always pass.
func (p *Preflight) CheckTarget(ctx context.Context, target scan.Target) ([]string, error) {
	if target.IsIPv4() {
		return []string{target.String()}, nil
	}
	if !p.config.Resolve {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	addrs, err := p.resolver.LookupHost(ctx, target.String())
	if err != nil || len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvable, target)
	}
	return addrs, nil
}
