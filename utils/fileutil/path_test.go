package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Setenv("REDBIOM_DATA", "/data/redbiom")

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"-", "-"},
		{"~", home},
		{"~/studies/10317/samples.txt", filepath.Join(home, "studies/10317/samples.txt")},
		{"$REDBIOM_DATA/md.tsv", "/data/redbiom/md.tsv"},
		{"/tmp/../tmp/out.biom", "/tmp/out.biom"},
		{"out.biom", filepath.Join(wd, "out.biom")},
		{"~other/x", "~other/x"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ExpandPath(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteLinesAndSafeReadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "samples.txt")
	require.NoError(t, WriteLines(p, []string{"10317.000001", "10317.000002"}))

	data, err := SafeReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "10317.000001\n10317.000002\n", string(data))

	require.NoError(t, WriteLines(p, nil))
	data, err = SafeReadFile(p)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestSafeReadFileRejects(t *testing.T) {
	dir := t.TempDir()

	_, err := SafeReadFile(dir)
	assert.ErrorContains(t, err, "is a directory")

	_, err = SafeReadFile(filepath.Join(dir, "missing"))
	assert.True(t, os.IsNotExist(err))

	big := filepath.Join(dir, "big.tsv")
	f, err := os.Create(big)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(MaxReadSize+1))
	require.NoError(t, f.Close())
	_, err = SafeReadFile(big)
	assert.True(t, strings.Contains(err.Error(), "too large"))
}
