package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kris-hansen/redbiomctl/utils/command"
	"github.com/kris-hansen/redbiomctl/utils/history"
	"github.com/kris-hansen/redbiomctl/utils/runner"
	"github.com/kris-hansen/redbiomctl/utils/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner saves stdout to StdoutFile like the real runner
type fakeRunner struct {
	stdout map[string]string // operation -> stdout
	fail   string            // operation that exits non-zero
	ran    []string
}

func (f *fakeRunner) Run(_ context.Context, cmd command.BuiltCommand, opts runner.RunOptions) (runner.Result, error) {
	f.ran = append(f.ran, cmd.String())
	if cmd.Operation() == f.fail {
		return runner.Result{ExitCode: 1, Stderr: "boom"}, &runner.ExitError{Code: 1, Stderr: "boom"}
	}
	out := f.stdout[cmd.Operation()]
	if opts.StdoutFile != "" {
		if err := os.WriteFile(opts.StdoutFile, []byte(out), 0644); err != nil {
			return runner.Result{}, err
		}
	}
	return runner.Result{Success: true, Stdout: out}, nil
}

func TestPlanStudy(t *testing.T) {
	plan, err := PlanStudy(StudyOptions{StudyID: 10317, Context: "ctxA", Dir: "out", ResolveAmbiguities: "merge"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 4)

	assert.Equal(t, "redbiom search metadata 'where qiita_study_id == 10317' > out/samples_10317.txt", plan.Steps[0].CommandLine())
	assert.Equal(t, StepVerify, plan.Steps[1].Kind)
	assert.Equal(t, "count samples in out/samples_10317.txt", plan.Steps[1].CommandLine())
	assert.Equal(t, "redbiom fetch sample-metadata --output out/metadata_10317.tsv --from out/samples_10317.txt --context ctxA --all-columns",
		plan.Steps[2].CommandLine())
	assert.Equal(t, "redbiom fetch samples --context ctxA --output out/study_10317.biom --from out/samples_10317.txt --resolve-ambiguities merge",
		plan.Steps[3].CommandLine())

	for _, s := range plan.Steps {
		if s.Kind == StepCommand {
			assert.True(t, validator.Validate(s.Command.String()).Valid, s.Name)
		}
	}
}

func TestPlanStudyInvalid(t *testing.T) {
	_, err := PlanStudy(StudyOptions{StudyID: 0})
	assert.ErrorIs(t, err, ErrInvalidStudy)

	_, err = PlanStudy(StudyOptions{StudyID: 1, ResolveAmbiguities: "random"})
	assert.ErrorIs(t, err, command.ErrInvalidFlagValue)
}

func TestExecuteStudy(t *testing.T) {
	dir := t.TempDir()
	store, err := history.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	plan, err := PlanStudy(StudyOptions{StudyID: 10317, Dir: dir})
	require.NoError(t, err)

	r := &fakeRunner{stdout: map[string]string{"search metadata": "10317.a\n10317.b\n10317.c\n"}}
	var seen []string
	e := &Executor{Runner: r, History: store, OnStep: func(i int, step Step, res *StepResult) {
		if res != nil {
			seen = append(seen, step.Name)
		}
	}}

	report, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, report.Completed())
	assert.Equal(t, 3, report.Samples)
	assert.Len(t, r.ran, 3)
	assert.Equal(t, []string{"search study samples", "verify samples", "fetch sample metadata", "fetch biom table"}, seen)

	entries, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, history.KindWorkflow, e.Kind)
	}
}

func TestExecuteStopsWhenNoSamples(t *testing.T) {
	plan, err := PlanStudy(StudyOptions{StudyID: 42, Dir: t.TempDir()})
	require.NoError(t, err)

	r := &fakeRunner{stdout: map[string]string{}}
	report, err := (&Executor{Runner: r}).Execute(context.Background(), plan)
	assert.ErrorIs(t, err, ErrNoSamples)
	assert.False(t, report.Completed())
	assert.Len(t, report.Results, 2)
	assert.Len(t, r.ran, 1)
}

func TestExecuteStopsOnCommandFailure(t *testing.T) {
	plan, err := PlanStudy(StudyOptions{StudyID: 42, Dir: t.TempDir()})
	require.NoError(t, err)

	r := &fakeRunner{stdout: map[string]string{"search metadata": "42.x\n"}, fail: "fetch sample-metadata"}
	report, err := (&Executor{Runner: r}).Execute(context.Background(), plan)
	require.Error(t, err)
	var exitErr *runner.ExitError
	assert.True(t, errors.As(err, &exitErr))
	assert.Contains(t, err.Error(), "step 3 (fetch sample metadata)")
	assert.Len(t, report.Results, 3)
}

func TestExecuteNeedsRunner(t *testing.T) {
	plan, err := PlanStudy(StudyOptions{StudyID: 42})
	require.NoError(t, err)
	_, err = (&Executor{}).Execute(context.Background(), plan)
	assert.ErrorIs(t, err, ErrInvalidStudy)
}
