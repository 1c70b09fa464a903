package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kris-hansen/redbiomctl/utils/assistant"
	"github.com/kris-hansen/redbiomctl/utils/cache"
	"github.com/kris-hansen/redbiomctl/utils/command"
	"github.com/kris-hansen/redbiomctl/utils/format"
	"github.com/kris-hansen/redbiomctl/utils/history"
	"github.com/kris-hansen/redbiomctl/utils/logging"
	"github.com/kris-hansen/redbiomctl/utils/models"
	"github.com/kris-hansen/redbiomctl/utils/runner"
	"github.com/kris-hansen/redbiomctl/utils/samples"
	"github.com/kris-hansen/redbiomctl/utils/ui"
	"github.com/kris-hansen/redbiomctl/utils/validator"
)

// Package-level hooks so tests can swap collaborators
var (
	newPrinter = ui.NewPrinter
	confirm    = ui.Confirm
	newRunner  = func() commandRunner { return runner.New(runner.ConfigFrom(envConfig.Redbiom)) }
)

// commandRunner is satisfied by *runner.Runner
type commandRunner interface {
	Run(ctx context.Context, cmd command.BuiltCommand, opts runner.RunOptions) (runner.Result, error)
}

// openHistory returns the configured store, or nil when history is disabled or
// cannot be opened; history never blocks a command
func openHistory(ctx context.Context) history.Store {
	store, err := history.Open(ctx, envConfig)
	if err != nil {
		logging.Warn("History disabled", "err", err)
		return nil
	}
	return store
}

func closeHistory(store history.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		logging.Warn("Could not close history", "err", err)
	}
}

func record(ctx context.Context, store history.Store, e *history.Entry) {
	if store == nil {
		return
	}
	if err := store.Append(ctx, e); err != nil {
		logging.Warn("Could not record history entry", "err", err)
	}
}

// newProvider detects and configures the provider for the configured model,
// wrapped in the response cache
func newProvider(ctx context.Context) (models.Provider, error) {
	provider, err := models.NewFromConfig(envConfig)
	if err != nil {
		return nil, err
	}
	c := cache.Open(ctx, envConfig.Cache)
	return models.WithCache(provider, c, time.Duration(envConfig.Cache.TTL)*time.Second), nil
}

// newAssistant builds an assistant for the configured model. The model flag,
// when set, overrides the configured one.
func newAssistant(ctx context.Context, model string, store history.Store) (*assistant.Assistant, error) {
	if model != "" {
		envConfig.LLM.Model = model
	}
	provider, err := newProvider(ctx)
	if err != nil {
		return nil, err
	}
	a, err := assistant.New(provider, assistant.OptionsFrom(envConfig))
	if err != nil {
		return nil, err
	}
	if store != nil {
		a.SetHistory(store)
	}
	return a, nil
}

// joinArgs turns command-line arguments back into one command string. A single
// argument is taken verbatim so quoted commands keep their quoting.
func joinArgs(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return command.Join(args)
}

// printReport lists validation issues, each with its fix
func printReport(p *ui.Printer, report validator.Report) {
	if report.Valid && len(report.Issues) == 0 {
		p.Success("valid: %s", report.Command)
		return
	}
	for _, issue := range report.Issues {
		switch issue.Severity {
		case validator.SeverityError:
			p.Error("%s", issue.Message)
		default:
			p.Warn("%s", issue.Message)
		}
		if issue.Fix != "" {
			p.Dim("    fix: %s", issue.Fix)
		}
	}
	if report.Valid {
		p.Success("valid with %d warning(s)", len(report.Warnings()))
	}
}

// execOptions controls how executeCommand runs and shows a command
type execOptions struct {
	Run       runner.RunOptions
	Raw       bool // print stdout untouched
	MaxRows   int
	NoConfirm bool
}

// executeCommand confirms, runs and renders one command, recording it in history
func executeCommand(ctx context.Context, p *ui.Printer, store history.Store, cmd command.BuiltCommand, opts execOptions) error {
	p.Command(cmd.String())
	if !opts.NoConfirm {
		ok, err := confirm("Run this command?")
		if err != nil {
			return err
		}
		if !ok {
			p.Dim("skipped")
			return nil
		}
	}

	spinner := ui.NewSpinner()
	if !p.Color {
		spinner.Disable()
	}
	spinner.Start("Running " + cmd.Operation())
	res, err := newRunner().Run(ctx, cmd, opts.Run)
	spinner.Stop()

	record(ctx, store, &history.Entry{
		Kind:     history.KindRun,
		Command:  cmd.String(),
		Success:  err == nil && res.Success,
		ExitCode: res.ExitCode,
		Duration: res.Duration,
		Output:   res.Stdout,
	})

	if err != nil {
		var exitErr *runner.ExitError
		if errors.As(err, &exitErr) && strings.TrimSpace(res.Stdout) != "" {
			renderOutput(p.Out, res.Stdout, p.Color, opts)
		}
		return err
	}

	if opts.Run.StdoutFile != "" {
		p.Success("output written to %s", opts.Run.StdoutFile)
	}
	renderOutput(p.Out, res.Stdout, p.Color, opts)
	p.Dim("finished in %s", res.Duration.Round(time.Millisecond))
	return nil
}

func renderOutput(w io.Writer, stdout string, color bool, opts execOptions) {
	if opts.Raw {
		fmt.Fprint(w, stdout)
		return
	}
	out := format.Parse(stdout)
	if err := format.Render(w, out, format.Options{Color: color, MaxRows: opts.MaxRows, Links: true}); err != nil {
		logging.Warn("Could not render output", "err", err)
		fmt.Fprint(w, stdout)
	}
}

// stdinIDs reads identifiers from a file, or from stdin when path is "-"
func stdinIDs(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		var ids []string
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
				ids = append(ids, line)
			}
		}
		return ids, nil
	}
	return samples.ReadList(path)
}
