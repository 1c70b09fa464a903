package format

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShapes(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		shape Shape
	}{
		{"empty", "", Empty},
		{"whitespace", " \n\t\n", Empty},
		{"scalar", "Woltka-per-genome-WoLr2-3ab352\n", Scalar},
		{"tsv", "#SampleID\tph\n10317.a\t7.1\n10317.b\t6.8\n", Table},
		{"csv", "ContextName,SamplesWithData,FeaturesRepresented\nctxA,100,2000\n", Table},
		{"two column csv is a list", "a,b\nc,d\ne,f\ng,h\n", List},
		{"short list", "a\nb\n", List},
		{"long list", "10317.a\n10317.b\n550.c\n550.d\n", List},
		{"ragged tsv falls back", "a\tb\tc\n1\t2\n3\t4\t5\n", List},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shape, Detect(tt.raw), tt.shape.String())
		})
	}
}

func TestParseTSVFindsStudies(t *testing.T) {
	out := Parse("#SampleID\tsample_type\n10317.000001\tstool\n10317.000002\tstool\n550.L1S8\tgut\n")
	require.Equal(t, Table, out.Shape)
	assert.Equal(t, []string{"#SampleID", "sample_type"}, out.Headers)
	assert.Len(t, out.Rows, 3)
	assert.Equal(t, 0, out.StudyColumn)
	assert.Equal(t, []string{"10317", "550"}, out.StudyIDs)
	assert.Equal(t, "3 rows, 2 columns", out.Summary())
}

func TestParseCSVPadsShortRows(t *testing.T) {
	out := Parse("name,samples,features\nctxA,10,20\nctxB,5\n")
	require.Equal(t, Table, out.Shape)
	assert.Equal(t, []string{"ctxB", "5", ""}, out.Rows[1])
	assert.Equal(t, -1, out.StudyColumn)
	assert.Empty(t, out.StudyIDs)
}

func TestStudyID(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"10317.000001", "10317", true},
		{" 550.L1S8 ", "550", true},
		{"10317", "", false},
		{"7.1", "7", true},
		{"abc.def", "", false},
		{".x", "", false},
		{"12.", "", false},
	}
	for _, tt := range tests {
		got, ok := StudyID(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	out := Parse("#SampleID\tph\n10317.a\t7.1\n10317.b\t6.8\n")
	require.NoError(t, Render(&buf, out, Options{Links: true}))

	s := buf.String()
	assert.Contains(t, s, "#SampleID")
	assert.Contains(t, s, "10317.b")
	assert.Contains(t, s, "Summary: 2 rows, 2 columns")
	assert.Contains(t, s, "https://qiita.ucsd.edu/study/description/10317")
	assert.NotContains(t, s, "\x1b[", "no ANSI without color")
}

func TestRenderListTruncates(t *testing.T) {
	var buf bytes.Buffer
	out := Parse(strings.Join([]string{"a", "b", "c", "d", "e"}, "\n"))
	require.NoError(t, Render(&buf, out, Options{MaxRows: 2}))

	s := buf.String()
	assert.Contains(t, s, "1. a\n2. b\n")
	assert.Contains(t, s, "... and 3 more items")
	assert.Contains(t, s, "Summary: 5 items")
}

func TestRenderScalarAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Parse("only-one"), Options{}))
	assert.Equal(t, "only-one\n", buf.String())

	buf.Reset()
	require.NoError(t, Render(&buf, Parse(""), Options{}))
	assert.Equal(t, "(no output)\n", buf.String())
}
