package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kris-hansen/redbiomctl/utils/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func built(args ...string) command.BuiltCommand {
	return command.BuiltCommand{Tokens: append([]string{"redbiom"}, args...)}
}

func TestRunCapturesStdout(t *testing.T) {
	r := New(Config{Program: "echo"})
	res, err := r.Run(context.Background(), built("summarize", "contexts"), RunOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "summarize contexts\n", res.Stdout)
	assert.Equal(t, "redbiom summarize contexts", res.Command)
}

func TestRunPassesArgumentsVerbatim(t *testing.T) {
	r := New(Config{Program: "echo"})
	res, err := r.Run(context.Background(), built("search", "metadata", "where x < 3; ls"), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "search metadata where x < 3; ls\n", res.Stdout)
}

func TestRunWritesStdinAndStdoutFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "samples.txt")
	r := New(Config{Program: "cat"})
	res, err := r.Run(context.Background(), built(), RunOptions{
		Stdin:      []string{"10317.a", "10317.b"},
		StdoutFile: out,
	})
	require.NoError(t, err)
	assert.Equal(t, "10317.a\n10317.b\n", res.Stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, res.Stdout, string(data))
}

func TestRunForwardsHost(t *testing.T) {
	r := New(Config{Program: "printenv", Host: "http://localhost:7330"})
	res, err := r.Run(context.Background(), built("REDBIOM_HOST"), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:7330", strings.TrimSpace(res.Stdout))
}

func TestRunTimeout(t *testing.T) {
	r := New(Config{Program: "sleep"})
	start := time.Now()
	res, err := r.Run(context.Background(), built("10"), RunOptions{Timeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.True(t, res.TimedOut)
	assert.False(t, res.Success)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunContextCancel(t *testing.T) {
	r := New(Config{Program: "sleep"})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := r.Run(ctx, built("10"), RunOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunExitError(t *testing.T) {
	r := New(Config{Program: "false"})
	res, err := r.Run(context.Background(), built(), RunOptions{})
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, 1, exitErr.Code)
	assert.Equal(t, 1, res.ExitCode)
	assert.False(t, res.Success)
}

func TestRunProgramNotFound(t *testing.T) {
	r := New(Config{Program: "redbiom-does-not-exist-anywhere"})
	_, err := r.Run(context.Background(), built("summarize", "contexts"), RunOptions{})
	assert.ErrorIs(t, err, ErrProgramNotFound)
}

func TestRunRefusesOtherPrograms(t *testing.T) {
	r := New(Config{Program: "echo"})
	_, err := r.Run(context.Background(), command.BuiltCommand{Tokens: []string{"rm", "-rf", "/"}}, RunOptions{})
	assert.ErrorIs(t, err, ErrNotAllowed)

	shell := New(Config{Program: "/bin/sh"})
	_, err = shell.Run(context.Background(), built("-c", "id"), RunOptions{})
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestRunStringValidatesFirst(t *testing.T) {
	r := New(Config{Program: "echo"})

	res, err := r.RunString(context.Background(), "redbiom search metadata 'where age_days < 30'", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "search metadata where age_days < 30\n", res.Stdout)

	_, err = r.RunString(context.Background(), "redbiom summarize contexts; rm -rf /", RunOptions{})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "unsafe shell construct")
}

func TestNewDefaults(t *testing.T) {
	r := New(Config{})
	assert.Equal(t, "redbiom", r.Program())
	assert.Equal(t, DefaultTimeout, r.cfg.Timeout)
	assert.Equal(t, "command timed out after 5m0s", (ErrTimeout.Error() + " after " + DefaultTimeout.String()))
}
