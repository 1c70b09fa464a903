package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	clog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want clog.Level
	}{
		{"debug", clog.DebugLevel},
		{"INFO", clog.InfoLevel},
		{" error ", clog.ErrorLevel},
		{"warn", clog.WarnLevel},
		{"", clog.WarnLevel},
		{"verbose", clog.WarnLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestInitWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redbiomctl.log")
	require.NoError(t, Init(Config{Level: "debug", File: path}))
	t.Cleanup(func() { _ = Shutdown() })

	Info("command finished", "operation", "fetch samples", "exit_code", 0)
	require.NoError(t, Shutdown())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.Contains(t, line, `"msg":"command finished"`)
	assert.Contains(t, line, `"operation":"fetch samples"`)
}

func TestInitBadFileFallsBack(t *testing.T) {
	err := Init(Config{Level: "info", File: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
	assert.NotNil(t, L())
	assert.Equal(t, clog.InfoLevel, L().GetLevel())
}
