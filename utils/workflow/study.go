// Package workflow runs multi-step redbiom recipes such as pulling every
// sample, its metadata and a BIOM table for one Qiita study.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kris-hansen/redbiomctl/utils/command"
	"github.com/kris-hansen/redbiomctl/utils/config"
	"github.com/kris-hansen/redbiomctl/utils/history"
	"github.com/kris-hansen/redbiomctl/utils/logging"
	"github.com/kris-hansen/redbiomctl/utils/runner"
	"github.com/kris-hansen/redbiomctl/utils/samples"
)

var (
	ErrInvalidStudy = errors.New("invalid study workflow")
	ErrNoSamples    = errors.New("no samples found for study")
)

// StepKind distinguishes redbiom invocations from local checks
type StepKind string

const (
	StepCommand StepKind = "command"
	StepVerify  StepKind = "verify"
)

// Step is one planned action
type Step struct {
	Name       string               `json:"name"`
	Kind       StepKind             `json:"kind"`
	Command    command.BuiltCommand `json:"-"`
	StdoutFile string               `json:"stdout_file,omitempty"` // stdout is saved here
	Produces   string               `json:"produces,omitempty"`    // file the step should create
}

// CommandLine renders the step for display
func (s Step) CommandLine() string {
	switch s.Kind {
	case StepCommand:
		line := s.Command.String()
		if s.StdoutFile != "" {
			line += " > " + s.StdoutFile
		}
		return line
	default:
		return "count samples in " + s.Produces
	}
}

// StudyOptions configures the study workflow. File names are relative to Dir.
type StudyOptions struct {
	StudyID            int
	Context            string
	Dir                string
	SamplesFile        string
	MetadataFile       string
	BIOMFile           string
	ResolveAmbiguities string // none, merge or most-reads; omitted when empty
}

func (o *StudyOptions) fill() error {
	if o.StudyID < 1 {
		return fmt.Errorf("%w: study id must be a positive integer, got %d", ErrInvalidStudy, o.StudyID)
	}
	if o.Context == "" {
		o.Context = config.DefaultContext
	}
	if o.Dir == "" {
		o.Dir = "."
	}
	id := strconv.Itoa(o.StudyID)
	if o.SamplesFile == "" {
		o.SamplesFile = "samples_" + id + ".txt"
	}
	if o.MetadataFile == "" {
		o.MetadataFile = "metadata_" + id + ".tsv"
	}
	if o.BIOMFile == "" {
		o.BIOMFile = "study_" + id + ".biom"
	}
	return nil
}

func (o StudyOptions) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.Dir, name)
}

// Plan is an ordered list of steps
type Plan struct {
	Name    string       `json:"name"`
	StudyID int          `json:"study_id"`
	Options StudyOptions `json:"-"`
	Steps   []Step       `json:"steps"`
}

// PlanStudy builds the study workflow without running anything:
// search the metadata for the study's samples, check that some were found,
// then fetch their metadata and their BIOM table.
func PlanStudy(opts StudyOptions) (Plan, error) {
	if err := opts.fill(); err != nil {
		return Plan{}, err
	}
	samplesPath := opts.path(opts.SamplesFile)

	search := command.MustBuild("search", "metadata", command.ParameterSet{
		"query": fmt.Sprintf("where qiita_study_id == %d", opts.StudyID),
	})

	metadata, err := command.Build("fetch", "sample-metadata", command.ParameterSet{
		"from":        samplesPath,
		"context":     opts.Context,
		"output":      opts.path(opts.MetadataFile),
		"all-columns": true,
	})
	if err != nil {
		return Plan{}, err
	}

	fetch := command.ParameterSet{
		"from":    samplesPath,
		"context": opts.Context,
		"output":  opts.path(opts.BIOMFile),
	}
	if opts.ResolveAmbiguities != "" {
		fetch["resolve-ambiguities"] = opts.ResolveAmbiguities
	}
	biom, err := command.Build("fetch", "samples", fetch)
	if err != nil {
		return Plan{}, err
	}

	return Plan{
		Name:    "qiita-study",
		StudyID: opts.StudyID,
		Options: opts,
		Steps: []Step{
			{Name: "search study samples", Kind: StepCommand, Command: search, StdoutFile: samplesPath, Produces: samplesPath},
			{Name: "verify samples", Kind: StepVerify, Produces: samplesPath},
			{Name: "fetch sample metadata", Kind: StepCommand, Command: metadata, Produces: opts.path(opts.MetadataFile)},
			{Name: "fetch biom table", Kind: StepCommand, Command: biom, Produces: opts.path(opts.BIOMFile)},
		},
	}, nil
}

// CommandRunner executes built commands; *runner.Runner is one
type CommandRunner interface {
	Run(ctx context.Context, cmd command.BuiltCommand, opts runner.RunOptions) (runner.Result, error)
}

// StepResult is the outcome of one executed step
type StepResult struct {
	Step     Step          `json:"step"`
	Result   runner.Result `json:"result"`
	Samples  int           `json:"samples,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Report summarizes an execution
type Report struct {
	Plan    Plan         `json:"plan"`
	Results []StepResult `json:"results"`
	Samples int          `json:"samples"`
}

// Completed reports whether every step ran successfully
func (r Report) Completed() bool {
	if len(r.Results) != len(r.Plan.Steps) {
		return false
	}
	for _, res := range r.Results {
		if res.Err != nil {
			return false
		}
	}
	return true
}

// Executor runs plans step by step, stopping at the first failure
type Executor struct {
	Runner  CommandRunner
	History history.Store // optional
	// OnStep is called before and after each step; result is nil before
	OnStep func(i int, step Step, result *StepResult)
}

// Execute runs plan. The report covers the steps attempted so far when an
// error is returned.
func (e *Executor) Execute(ctx context.Context, plan Plan) (Report, error) {
	report := Report{Plan: plan}
	if e.Runner == nil {
		return report, fmt.Errorf("%w: no runner configured", ErrInvalidStudy)
	}
	if dir := plan.Options.Dir; dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return report, err
		}
	}

	log := logging.With("workflow", plan.Name, "study", plan.StudyID)
	for i, step := range plan.Steps {
		if e.OnStep != nil {
			e.OnStep(i, step, nil)
		}
		res := e.run(ctx, step)
		if step.Kind == StepVerify {
			report.Samples = res.Samples
		}
		report.Results = append(report.Results, res)
		if e.OnStep != nil {
			e.OnStep(i, step, &res)
		}
		if res.Err != nil {
			log.Error("workflow step failed", "step", step.Name, "err", res.Err)
			return report, fmt.Errorf("step %d (%s): %w", i+1, step.Name, res.Err)
		}
		log.Info("workflow step done", "step", step.Name, "duration", res.Duration)
	}
	return report, nil
}

func (e *Executor) run(ctx context.Context, step Step) StepResult {
	start := time.Now()
	res := StepResult{Step: step}

	switch step.Kind {
	case StepVerify:
		n, err := samples.Count(step.Produces)
		res.Samples = n
		switch {
		case err != nil:
			res.Err = err
		case n == 0:
			res.Err = ErrNoSamples
		}
	default:
		res.Result, res.Err = e.Runner.Run(ctx, step.Command, runner.RunOptions{StdoutFile: step.StdoutFile})
		e.record(ctx, step, res)
	}
	res.Duration = time.Since(start)
	return res
}

func (e *Executor) record(ctx context.Context, step Step, res StepResult) {
	if e.History == nil {
		return
	}
	out := res.Result.Stdout
	if res.Result.Stderr != "" {
		out += res.Result.Stderr
	}
	entry := &history.Entry{
		Kind:     history.KindWorkflow,
		Question: step.Name,
		Command:  step.Command.String(),
		Success:  res.Err == nil && res.Result.Success,
		ExitCode: res.Result.ExitCode,
		Duration: res.Result.Duration,
		Output:   out,
	}
	if err := e.History.Append(ctx, entry); err != nil {
		logging.Warn("could not record workflow step", "err", err)
	}
}
