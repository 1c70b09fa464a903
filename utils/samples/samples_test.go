package samples

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metadata = "#SampleID\tsample_type\tph\n" +
	"10317.000000001.1\tstool\t7.1\n" +
	"10317.000000002.1\tstool\t6.9\n" +
	"\n" +
	"550.L1S8\tgut\t7.0\n"

func TestExtractIDs(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "defaults",
			opts: DefaultOptions(),
			want: []string{"10317.000000001.1", "10317.000000002.1", "550.L1S8"},
		},
		{
			name: "shorten",
			opts: Options{Transform: TransformShorten, SkipHeader: true},
			want: []string{"10317.000000001", "10317.000000002", "550.L1S8"},
		},
		{
			name: "prefix",
			opts: Options{Transform: TransformPrefix, SkipHeader: true},
			want: []string{"10317", "10317", "550"},
		},
		{
			name: "unique study prefixes",
			opts: Options{Transform: TransformPrefix, SkipHeader: true, Unique: true},
			want: []string{"10317", "550"},
		},
		{
			name: "second column keeps header",
			opts: Options{Column: 2},
			want: []string{"sample_type", "stool", "stool", "gut"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractIDs(strings.NewReader(metadata), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractIDsSkipsShortLines(t *testing.T) {
	got, err := ExtractIDs(strings.NewReader("a,b,c\nx,y\n1,2,3\n"), Options{Column: 3, Delimiter: ","})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "3"}, got)
}

func TestExtractIDsInvalidOptions(t *testing.T) {
	_, err := ExtractIDs(strings.NewReader(metadata), Options{Column: -1})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = ExtractIDs(strings.NewReader(metadata), Options{Transform: "reverse"})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestParseTransform(t *testing.T) {
	for in, want := range map[string]Transform{"": TransformNone, "NONE": TransformNone, "shorten": TransformShorten, " prefix ": TransformPrefix} {
		got, err := ParseTransform(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseTransform("upper")
	assert.Error(t, err)
}

func TestExtractFileAndReadList(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "metadata.tsv")
	out := filepath.Join(dir, "ids", "samples.txt")
	require.NoError(t, os.WriteFile(in, []byte(metadata), 0644))

	ids, err := ExtractFile(in, out, Options{Transform: TransformShorten, SkipHeader: true})
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	back, err := ReadList(out)
	require.NoError(t, err)
	assert.Equal(t, ids, back)

	n, err := Count(out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestReadListIgnoresCommentsAndBlanks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("# header\n\n a \nb\n\n"), 0644))

	ids, err := ReadList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestCountMissingFile(t *testing.T) {
	_, err := Count(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Unique([]string{"a", "b", "a", "c", "b"}))
	assert.Empty(t, Unique(nil))
}
