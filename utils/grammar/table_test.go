package grammar

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupRequiredFlags(t *testing.T) {
	tests := []struct {
		family   string
		action   string
		required []string
		arity    Cardinality
	}{
		{"search", "features", []string{"--context"}, Variadic},
		{"search", "samples", []string{"--context"}, Variadic},
		{"search", "metadata", nil, Single},
		{"search", "taxon", []string{"--context"}, Single},
		{"fetch", "samples-contained", nil, None},
		{"fetch", "features-contained", nil, None},
		{"fetch", "sample-metadata", []string{"--output"}, Variadic},
		{"fetch", "features", []string{"--context", "--output"}, Variadic},
		{"fetch", "samples", []string{"--context", "--output"}, Variadic},
		{"fetch", "qiita-study", []string{"--study-id", "--context", "--output-basename"}, None},
		{"summarize", "contexts", nil, None},
		{"summarize", "metadata-category", []string{"--category"}, None},
		{"summarize", "metadata", nil, Variadic},
		{"summarize", "table", []string{"--category", "--context", "--table"}, None},
		{"summarize", "features", []string{"--category", "--context"}, Variadic},
		{"summarize", "samples", []string{"--category"}, Variadic},
		{"summarize", "taxonomy", []string{"--context"}, Variadic},
		{"select", "samples-from-metadata", []string{"--context"}, Variadic},
		{"select", "features-from-samples", []string{"--context"}, Variadic},
	}

	for _, tt := range tests {
		t.Run(tt.family+" "+tt.action, func(t *testing.T) {
			op, err := Lookup(tt.family, tt.action)
			require.NoError(t, err)

			var names []string
			for _, f := range op.Required {
				names = append(names, f.Name)
			}
			assert.Equal(t, tt.required, names)
			assert.Equal(t, tt.arity, op.Positional)
		})
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("fetch", "everything")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownOperation))

	_, err = Lookup("delete", "samples")
	assert.True(t, errors.Is(err, ErrUnknownOperation))
}

func TestSelectSamplesFromMetadataNeedsQuery(t *testing.T) {
	op, err := Lookup("select", "samples-from-metadata")
	require.NoError(t, err)
	require.Len(t, op.Leading, 1)
	assert.Equal(t, "query", op.Leading[0].Name)
	assert.True(t, op.Leading[0].Required)
}

func TestLookupReturnsCopy(t *testing.T) {
	op, err := Lookup("fetch", "samples")
	require.NoError(t, err)
	op.Required[0].Name = "--mutated"
	resolve, ok := op.Flag("--resolve-ambiguities")
	require.True(t, ok)
	resolve.Choices[0] = "mutated"

	again, err := Lookup("fetch", "samples")
	require.NoError(t, err)
	assert.Equal(t, "--context", again.Required[0].Name)
	f, _ := again.Flag("resolve-ambiguities")
	assert.Equal(t, []string{"none", "merge", "most-reads"}, f.Choices)
}

func TestFamiliesAndActions(t *testing.T) {
	assert.Equal(t, []string{"search", "fetch", "summarize", "select"}, Families())
	assert.True(t, IsFamily("select"))
	assert.False(t, IsFamily("delete"))
	assert.Equal(t, []string{"samples-from-metadata", "features-from-samples"}, Actions("select"))
	assert.Nil(t, Actions("delete"))
}

func TestFlagKinds(t *testing.T) {
	op, err := Lookup("fetch", "qiita-study")
	require.NoError(t, err)

	study, ok := op.Flag("study-id")
	require.True(t, ok)
	assert.Equal(t, KindInt, study.Kind)
	require.NotNil(t, study.Min)
	assert.Equal(t, 1, *study.Min)

	resolve, ok := op.Flag("--resolve-ambiguities")
	require.True(t, ok)
	assert.Equal(t, KindChoice, resolve.Kind)
	assert.True(t, resolve.AllowsChoice("most-reads"))
	assert.False(t, resolve.AllowsChoice("first"))
	assert.False(t, op.IsRequired("--md5"))
	assert.True(t, op.IsRequired("context"))
}

func TestUsage(t *testing.T) {
	op, err := Lookup("fetch", "samples")
	require.NoError(t, err)
	usage := op.Usage()
	assert.Contains(t, usage, "redbiom fetch samples --context <string> --output <path>")
	assert.Contains(t, usage, "[--resolve-ambiguities <none|merge|most-reads>]")
	assert.Contains(t, usage, "[samples...]")
}

func TestFlagNames(t *testing.T) {
	names := FlagNames()
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "--context")
	assert.Contains(t, names, "--force-category")
	assert.Contains(t, names, "--normalize-ranks")
	for _, n := range names {
		assert.True(t, len(n) > 2 && n[:2] == "--", n)
	}
}
