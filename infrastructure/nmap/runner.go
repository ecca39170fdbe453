// Package nmap runs catalog invocations as subprocesses and checks the
// host's ability to do so.
package nmap

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// RunResult is the raw result of one subprocess.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Runner executes an argv without a shell.
type Runner interface {
	Run(ctx context.Context, argv []string) (RunResult, error)
}

// ExecRunner runs argv with os/exec in its own process group, killing the
// whole group when the context ends.
type ExecRunner struct {
	// OnStderrLine receives each stderr line as it is produced.
	OnStderrLine func(line string)

	// WaitDelay bounds how long Run waits for pipes after the kill.
	WaitDelay time.Duration
}

// NewExecRunner creates a runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{WaitDelay: 5 * time.Second}
}

// Run implements Runner. A non-zero exit is reported through ExitCode, not
// as an error; the error is reserved for failures to start.
func (r *ExecRunner) Run(ctx context.Context, argv []string) (RunResult, error) {
	if len(argv) == 0 {
		return RunResult{}, errors.New("empty argv")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) // #nosec G204 -- argv comes from the action catalog
	configureProcessGroup(cmd)
	cmd.WaitDelay = r.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	var lw *lineWriter
	if r.OnStderrLine != nil {
		lw = &lineWriter{fn: r.OnStderrLine}
		cmd.Stderr = io.MultiWriter(&stderr, lw)
	} else {
		cmd.Stderr = &stderr
	}

	start := time.Now()
	err := cmd.Run()
	res := RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if lw != nil {
		lw.flush()
	}

	if ctx.Err() != nil {
		res.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
		res.ExitCode = -1
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

// lineWriter splits written bytes into lines.
type lineWriter struct {
	mu  sync.Mutex
	buf []byte
	fn  func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(w.buf[:i]), "\r")
		w.buf = w.buf[i+1:]
		if line != "" {
			w.fn(line)
		}
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rest := strings.TrimSpace(string(w.buf)); rest != "" {
		w.fn(rest)
	}
	w.buf = nil
}

// scanLines splits text into non-empty trimmed lines.
func scanLines(text string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out
}
