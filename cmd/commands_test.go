package cmd

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chzyer/readline"
	"github.com/kris-hansen/redbiomctl/utils/config"
	"github.com/kris-hansen/redbiomctl/utils/grammar"
	"github.com/kris-hansen/redbiomctl/utils/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand(t *testing.T) {
	buf, _, _ := setupCLI(t)
	validateJSON = false

	_, err := execute(t, "validate", "redbiom summarize contexts")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "valid: redbiom summarize contexts")

	buf.Reset()
	_, err = execute(t, "validate", "redbiom summarize contexts | head")
	assert.ErrorIs(t, err, errInvalidCommand)
	assert.Contains(t, buf.String(), "fix:")
}

func TestRunCommand(t *testing.T) {
	buf, fake, _ := setupCLI(t)
	runYes, runForce, runRaw, runFrom, runOutput = true, false, true, "", ""
	fake.result.Stdout = "ctx-a\nctx-b\n"
	t.Cleanup(func() { runYes, runRaw = false, false })

	_, err := execute(t, "run", "-y", "--raw", "redbiom summarize contexts")
	require.NoError(t, err)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, []string{"redbiom", "summarize", "contexts"}, fake.calls[0].Tokens)
	assert.Contains(t, buf.String(), "ctx-a\nctx-b\n")
}

func TestRunCommandNeverForcesUnsafe(t *testing.T) {
	_, fake, _ := setupCLI(t)
	t.Cleanup(func() { runYes, runForce = false, false })

	_, err := execute(t, "run", "-y", "--force", "redbiom summarize contexts; rm -rf /")
	assert.ErrorIs(t, err, errInvalidCommand)
	assert.Empty(t, fake.calls)
}

func TestRunCommandDeclined(t *testing.T) {
	buf, fake, _ := setupCLI(t)
	runYes = false
	confirm = func(string) (bool, error) { return false, nil }

	_, err := execute(t, "run", "redbiom summarize contexts")
	require.NoError(t, err)
	assert.Empty(t, fake.calls)
	assert.Contains(t, buf.String(), "skipped")
}

func TestWorkflowStudyDryRun(t *testing.T) {
	buf, fake, _ := setupCLI(t)
	dir := t.TempDir()
	t.Cleanup(func() { workflowDryRun, workflowDir = false, "." })

	_, err := execute(t, "workflow", "study", "10317", "--dry-run", "--dir", dir)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "where qiita_study_id == 10317")
	assert.Contains(t, out, filepath.Join(dir, "samples_10317.txt"))
	assert.Contains(t, out, "4. fetch biom table")
	assert.Empty(t, fake.calls)
}

func TestWorkflowStudyStopsWithoutSamples(t *testing.T) {
	buf, fake, _ := setupCLI(t)
	t.Cleanup(func() { workflowYes, workflowDir = false, "." })

	_, err := execute(t, "workflow", "study", "10317", "-y", "--dir", t.TempDir())
	require.Error(t, err)
	// the search ran; the fake wrote no samples file, so nothing was fetched
	assert.Len(t, fake.calls, 1)
	assert.Contains(t, buf.String(), "verify samples failed")
}

func TestWorkflowStudyRejectsBadID(t *testing.T) {
	setupCLI(t)
	_, err := execute(t, "workflow", "study", "abc", "--dry-run")
	assert.Error(t, err)
}

func TestGrammarCommand(t *testing.T) {
	buf, _, _ := setupCLI(t)
	grammarUsage = false
	grammarFlags = false

	_, err := execute(t, "grammar", "fetch")
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "fetch samples")
	assert.NotContains(t, out, "search taxon")

	_, err = execute(t, "grammar", "nope")
	assert.Error(t, err)
}

func TestGrammarFlagsCommand(t *testing.T) {
	buf, _, _ := setupCLI(t)
	grammarUsage = false
	grammarFlags = false
	t.Cleanup(func() { grammarFlags = false })

	_, err := execute(t, "grammar", "--flags")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Contains(t, lines, "--context")
	assert.Contains(t, lines, "--resolve-ambiguities")
	assert.NotContains(t, lines, "fetch samples")
}

func TestDescribeOperation(t *testing.T) {
	op, err := grammar.Lookup("fetch", "samples")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, describeOperation(&buf, op, false))
	out := buf.String()
	assert.Contains(t, out, "--output")
	assert.Contains(t, out, "--resolve-ambiguities")
}

func TestHistoryTable(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	out := historyTable([]history.Entry{
		{ID: 2, CreatedAt: at, Kind: history.KindRun, Command: "redbiom summarize contexts", ExitCode: 1},
		{ID: 1, CreatedAt: at, Kind: history.KindAsk, Question: "which contexts?\nplease"},
		{ID: 3, CreatedAt: at, Kind: history.KindBuild, Command: "redbiom fetch tags-contained --context c", Success: true},
	})
	require.Len(t, out.Rows, 3)
	assert.Equal(t, "exit 1", out.Rows[0][4])
	assert.Equal(t, "which contexts? …", out.Rows[1][3])
	assert.Equal(t, "-", out.Rows[2][4])
}

func TestHistoryCommandDisabled(t *testing.T) {
	setupCLI(t)
	_, err := execute(t, "history")
	assert.ErrorContains(t, err, "history is disabled")
}

func TestClassifyReadlineError(t *testing.T) {
	assert.Equal(t, readlineUnhandled, classifyReadlineError("x", nil))
	assert.Equal(t, readlineContinue, classifyReadlineError("", readline.ErrInterrupt))
	assert.Equal(t, readlineExit, classifyReadlineError("", io.EOF))
	assert.Equal(t, readlineContinue, classifyReadlineError("half a line", io.EOF))
	assert.Equal(t, readlineUnhandled, classifyReadlineError("", errors.New("boom")))
}

func TestParseModelSelection(t *testing.T) {
	got, err := parseModelSelection("1, 3-4, 3", 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4}, got)

	got, err = parseModelSelection("4-2", 5)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, got)

	for _, bad := range []string{"0", "6", "a", "1-9", "1-2-3", ""} {
		_, err := parseModelSelection(bad, 5)
		assert.Error(t, err, bad)
	}
}

func TestResolveModelChoice(t *testing.T) {
	available := []string{"gemma3", "qwen3"}

	got, err := resolveModelChoice("2", available)
	require.NoError(t, err)
	assert.Equal(t, "qwen3", got)

	got, err = resolveModelChoice("gpt-4o", available)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", got)

	got, err = resolveModelChoice("  ", available)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = resolveModelChoice("7", available)
	assert.Error(t, err)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "(not set)", maskKey(""))
	assert.Equal(t, "****", maskKey("short"))
	assert.Equal(t, "****cdef", maskKey("sk-0123456789abcdef"))
}

func TestConfigureCORS(t *testing.T) {
	s := config.DefaultServerConfig()
	in := bufio.NewReader(strings.NewReader("y\nhttps://a.org, https://b.org\n\n\n600\n"))
	require.NoError(t, configureCORS(in, io.Discard, s))
	assert.True(t, s.CORS.Enabled)
	assert.Equal(t, []string{"https://a.org", "https://b.org"}, s.CORS.AllowedOrigins)
	assert.Equal(t, []string{"GET", "POST", "OPTIONS"}, s.CORS.AllowedMethods)
	assert.Equal(t, 600, s.CORS.MaxAge)

	in = bufio.NewReader(strings.NewReader("y\n*\n\n\nsoon\n"))
	assert.Error(t, configureCORS(in, io.Discard, s))

	in = bufio.NewReader(strings.NewReader("n\n"))
	require.NoError(t, configureCORS(in, io.Discard, s))
	assert.False(t, s.CORS.Enabled)
}

func TestConfigureHistory(t *testing.T) {
	c := config.DefaultEnvConfig()
	in := bufio.NewReader(strings.NewReader("y\npostgres\npostgres://u@localhost/redbiom\n"))
	require.NoError(t, configureHistory(in, io.Discard, c))
	assert.Equal(t, "postgres", c.History.Driver)
	assert.Equal(t, "postgres://u@localhost/redbiom", c.History.DSN)

	in = bufio.NewReader(strings.NewReader("y\nmysql\n"))
	assert.Error(t, configureHistory(in, io.Discard, c))
}

func TestParseOnOff(t *testing.T) {
	on, err := parseOnOff("ON")
	require.NoError(t, err)
	assert.True(t, on)
	_, err = parseOnOff("maybe")
	assert.Error(t, err)
}

func TestServerSubcommandsEditConfigFile(t *testing.T) {
	_, _, path := setupCLI(t)
	// keys from the environment must not be written back
	t.Setenv("OPENAI_API_KEY", "sk-env-only")

	out, err := execute(t, "server", "port", "9001")
	require.NoError(t, err)
	assert.Contains(t, out, "9001")

	_, err = execute(t, "server", "run-exec", "on")
	require.NoError(t, err)

	_, err = execute(t, "server", "auth", "on")
	require.NoError(t, err)

	saved, err := config.LoadEnvConfigFile(path)
	require.NoError(t, err)
	s := saved.GetServer()
	assert.Equal(t, 9001, s.Port)
	assert.True(t, s.RunEnabled)
	assert.True(t, s.Enabled)
	assert.Len(t, s.BearerToken, 64)
	assert.False(t, saved.History.Enabled)
	_, err = saved.GetProviderConfig("openai")
	assert.Error(t, err)

	_, err = execute(t, "server", "port", "99999")
	assert.Error(t, err)
}

func TestListConfiguration(t *testing.T) {
	c := config.DefaultEnvConfig()
	c.SetProviderAPIKey("openai", "sk-0123456789abcdef")
	var buf bytes.Buffer
	listConfiguration(&buf, c)
	out := buf.String()
	assert.Contains(t, out, "****cdef")
	assert.NotContains(t, out, "sk-0123456789abcdef")
	assert.Contains(t, out, c.Redbiom.Context)
}
