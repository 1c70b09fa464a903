// Package runner executes redbiom invocations as child processes without a
// shell, with a timeout that tears down the whole process tree.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kris-hansen/redbiomctl/utils/command"
	"github.com/kris-hansen/redbiomctl/utils/config"
	"github.com/kris-hansen/redbiomctl/utils/grammar"
	"github.com/kris-hansen/redbiomctl/utils/logging"
	"github.com/kris-hansen/redbiomctl/utils/validator"
	"github.com/shirou/gopsutil/v3/process"
)

// DefaultTimeout matches the upper bound a fetch of a large study needs
const DefaultTimeout = 5 * time.Minute

var (
	// ErrTimeout is returned when the command exceeds its time budget
	ErrTimeout = errors.New("command timed out")
	// ErrProgramNotFound is returned when the configured program is not on PATH
	ErrProgramNotFound = errors.New("program not found")
	// ErrNotAllowed is returned for commands that do not invoke the wrapped tool
	ErrNotAllowed = errors.New("command not allowed")
	// ErrRejected is returned by RunString when validation finds errors
	ErrRejected = errors.New("command rejected by validator")
)

// ExitError reports a non-zero exit status
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s exited with status %d", grammar.Program, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d: %s", grammar.Program, e.Code, msg)
}

// deniedPrograms can never be configured as the executable
var deniedPrograms = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "fish": true, "dash": true, "ksh": true, "csh": true, "tcsh": true,
	"sudo": true, "su": true, "doas": true, "rm": true, "dd": true,
}

// Config holds runner settings
type Config struct {
	Program    string        // executable invoked in place of the "redbiom" token
	Host       string        // forwarded as REDBIOM_HOST
	Timeout    time.Duration // per command, DefaultTimeout when zero
	WorkingDir string
	Env        []string // extra KEY=VALUE pairs
}

// ConfigFrom builds runner settings from the persisted configuration
func ConfigFrom(c config.RedbiomConfig) Config {
	return Config{
		Program:    c.Program,
		Host:       c.Host,
		Timeout:    c.TimeoutDuration(),
		WorkingDir: c.WorkingDir,
	}
}

// RunOptions adjusts a single execution
type RunOptions struct {
	Stdin      []string      // identifiers written one per line to stdin
	StdoutFile string        // also write stdout to this file
	Timeout    time.Duration // overrides the runner timeout when positive
}

// Result is the outcome of one execution
type Result struct {
	Command  string
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Runner executes commands for one redbiom installation
type Runner struct {
	cfg Config
}

// New creates a runner, filling defaults
func New(cfg Config) *Runner {
	if cfg.Program == "" {
		cfg.Program = grammar.Program
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Runner{cfg: cfg}
}

// Program returns the configured executable
func (r *Runner) Program() string {
	return r.cfg.Program
}

// IsAllowed checks that tokens invoke the wrapped tool and that the configured
// executable is not a shell or otherwise dangerous
func (r *Runner) IsAllowed(tokens []string) (bool, string) {
	if len(tokens) == 0 {
		return false, "empty command"
	}
	if filepath.Base(tokens[0]) != grammar.Program {
		return false, fmt.Sprintf("only %s may be executed, got '%s'", grammar.Program, tokens[0])
	}
	if deniedPrograms[filepath.Base(r.cfg.Program)] {
		logging.Warn("Blocked program", "program", r.cfg.Program)
		return false, fmt.Sprintf("program '%s' is in the denylist and cannot be executed", r.cfg.Program)
	}
	return true, ""
}

// RunString tokenizes and validates raw before running it. Raw text is never
// passed to a shell.
func (r *Runner) RunString(ctx context.Context, raw string, opts RunOptions) (Result, error) {
	report := validator.Validate(raw)
	if !report.Valid {
		return Result{Command: raw}, fmt.Errorf("%w: %s", ErrRejected, report.ErrorSummary())
	}
	return r.Run(ctx, command.BuiltCommand{Tokens: report.Tokens}, opts)
}

// Run executes cmd and waits for it to finish or time out
func (r *Runner) Run(ctx context.Context, cmd command.BuiltCommand, opts RunOptions) (Result, error) {
	res := Result{Command: cmd.String()}

	if ok, reason := r.IsAllowed(cmd.Tokens); !ok {
		return res, fmt.Errorf("%w: %s", ErrNotAllowed, reason)
	}

	bin, err := exec.LookPath(r.cfg.Program)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %v", ErrProgramNotFound, r.cfg.Program, err)
	}

	timeout := r.cfg.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	c := exec.Command(bin, cmd.Args()...)
	c.Dir = r.cfg.WorkingDir
	c.Env = r.env()

	if len(opts.Stdin) > 0 {
		c.Stdin = strings.NewReader(strings.Join(opts.Stdin, "\n") + "\n")
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	c.Stdout = &stdoutBuf
	c.Stderr = &stderrBuf

	var outFile *os.File
	if opts.StdoutFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.StdoutFile), 0755); err != nil {
			return res, fmt.Errorf("error creating output directory: %w", err)
		}
		outFile, err = os.Create(opts.StdoutFile)
		if err != nil {
			return res, fmt.Errorf("error creating output file: %w", err)
		}
		defer outFile.Close()
		c.Stdout = io.MultiWriter(&stdoutBuf, outFile)
	}

	config.DebugLog("[Runner] Executing: %s", res.Command)
	start := time.Now()
	if err := c.Start(); err != nil {
		return res, fmt.Errorf("failed to start %s: %w", r.cfg.Program, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var (
		waitErr   error
		cancelled bool
	)
	select {
	case waitErr = <-done:
	case <-timer.C:
		res.TimedOut = true
		killTree(c.Process.Pid)
		waitErr = <-done
	case <-ctx.Done():
		cancelled = true
		killTree(c.Process.Pid)
		waitErr = <-done
	}

	res.Duration = time.Since(start)
	res.Stdout = stdoutBuf.String()
	res.Stderr = stderrBuf.String()

	logger := logging.With("command", res.Command, "duration", res.Duration)

	switch {
	case res.TimedOut:
		res.ExitCode = -1
		logger.Warn("command timed out", "timeout", timeout)
		return res, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case cancelled:
		res.ExitCode = -1
		return res, ctx.Err()
	}

	res.ExitCode = c.ProcessState.ExitCode()
	if waitErr != nil || res.ExitCode != 0 {
		logger.Info("command failed", "exit_code", res.ExitCode)
		return res, &ExitError{Code: res.ExitCode, Stderr: res.Stderr}
	}

	res.Success = true
	logger.Info("command finished", "exit_code", 0)
	return res, nil
}

func (r *Runner) env() []string {
	env := os.Environ()
	if r.cfg.Host != "" {
		env = append(env, "REDBIOM_HOST="+r.cfg.Host)
	}
	return append(env, r.cfg.Env...)
}

// killTree kills pid and all of its descendants, children first
func killTree(pid int) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	killProcess(p)
}

func killProcess(p *process.Process) {
	children, err := p.Children()
	if err == nil {
		for _, child := range children {
			killProcess(child)
		}
	}
	if err := p.Kill(); err != nil {
		config.DebugLog("[Runner] kill %d: %v", p.Pid, err)
	}
}
