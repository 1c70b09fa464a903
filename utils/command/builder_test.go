package command

import (
	"errors"
	"testing"

	"github.com/kris-hansen/redbiomctl/utils/grammar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalParams returns the required flags and positionals of op with the
// smallest valid values
func minimalParams(op grammar.OperationSpec) ParameterSet {
	params := ParameterSet{}
	for _, f := range op.Required {
		params[f.Name] = minimalValue(f)
	}
	for _, p := range op.Leading {
		if p.Required {
			params[p.Name] = "age_days < 30"
		}
	}
	if op.Positional == grammar.Single {
		params[op.PositionalName] = "g__Bacteroides"
	}
	return params
}

func minimalValue(f grammar.FlagSpec) interface{} {
	switch f.Kind {
	case grammar.KindInt:
		if f.Min != nil {
			return *f.Min
		}
		return 1
	case grammar.KindChoice:
		return f.Choices[0]
	case grammar.KindBool:
		return true
	case grammar.KindPath:
		return "out.biom"
	default:
		return "x"
	}
}

func TestBuildScenarios(t *testing.T) {
	tests := []struct {
		name    string
		family  string
		action  string
		params  ParameterSet
		want    string
		wantErr error
		flag    string
	}{
		{
			name:   "fetch samples",
			family: "fetch", action: "samples",
			params: ParameterSet{"context": "ctxA", "output": "out.biom", "samples": []string{"s1", "s2"}},
			want:   "redbiom fetch samples --context ctxA --output out.biom s1 s2",
		},
		{
			name:   "fetch samples missing context",
			family: "fetch", action: "samples",
			params:  ParameterSet{"output": "out.biom"},
			wantErr: ErrMissingRequiredFlag,
			flag:    "--context",
		},
		{
			name:   "summarize contexts",
			family: "summarize", action: "contexts",
			params: ParameterSet{},
			want:   "redbiom summarize contexts",
		},
		{
			name:   "optional flags in declared order",
			family: "search", action: "features",
			params: ParameterSet{"--min-count": 5, "--exact": true, "--context": "ctxA", "features": []string{"f1"}},
			want:   "redbiom search features --context ctxA --exact --min-count 5 f1",
		},
		{
			name:   "false boolean omitted",
			family: "search", action: "samples",
			params: ParameterSet{"context": "ctxA", "exact": false, "samples": []string{"s1"}},
			want:   "redbiom search samples --context ctxA s1",
		},
		{
			name:   "qiita study",
			family: "fetch", action: "qiita-study",
			params: ParameterSet{"study-id": 10317, "context": "ctxA", "output-basename": "study", "md5": true, "remove-blanks": true},
			want:   "redbiom fetch qiita-study --study-id 10317 --context ctxA --output-basename study --remove-blanks --md5 True",
		},
		{
			name:   "quoted query",
			family: "search", action: "metadata",
			params: ParameterSet{"query": "where antibiotics & infant"},
			want:   "redbiom search metadata 'where antibiotics & infant'",
		},
		{
			name:   "select query precedes samples",
			family: "select", action: "samples-from-metadata",
			params: ParameterSet{"context": "ctxA", "query": "age_days < 30", "samples": []string{"s1", "s2"}},
			want:   "redbiom select samples-from-metadata --context ctxA 'age_days < 30' s1 s2",
		},
		{
			name:   "repeatable flag",
			family: "fetch", action: "sample-metadata",
			params: ParameterSet{"output": "md.tsv", "force-category": []string{"ph", "host_age"}, "samples": []string{"s1"}},
			want:   "redbiom fetch sample-metadata --output md.tsv --force-category ph --force-category host_age s1",
		},
		{
			name:   "unknown operation",
			family: "fetch", action: "everything",
			params:  ParameterSet{},
			wantErr: ErrUnknownOperation,
		},
		{
			name:   "min count below minimum",
			family: "search", action: "features",
			params:  ParameterSet{"context": "ctxA", "min-count": 0},
			wantErr: ErrInvalidFlagValue,
			flag:    "--min-count",
		},
		{
			name:   "study id not a number",
			family: "fetch", action: "qiita-study",
			params:  ParameterSet{"study-id": "abc", "context": "ctxA", "output-basename": "s"},
			wantErr: ErrInvalidFlagValue,
			flag:    "--study-id",
		},
		{
			name:   "bad ambiguity choice",
			family: "fetch", action: "samples",
			params:  ParameterSet{"context": "ctxA", "output": "o.biom", "resolve-ambiguities": "first"},
			wantErr: ErrInvalidFlagValue,
			flag:    "--resolve-ambiguities",
		},
		{
			name:   "flag not declared for operation",
			family: "summarize", action: "contexts",
			params:  ParameterSet{"context": "ctxA"},
			wantErr: ErrInvalidFlagValue,
			flag:    "--context",
		},
		{
			name:   "single positional given twice",
			family: "search", action: "taxon",
			params:  ParameterSet{"context": "ctxA", "query": []string{"a", "b"}},
			wantErr: ErrInvalidFlagValue,
			flag:    "query",
		},
		{
			name:   "select without query",
			family: "select", action: "samples-from-metadata",
			params:  ParameterSet{"context": "ctxA"},
			wantErr: ErrMissingRequiredFlag,
			flag:    "query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Build(tt.family, tt.action, tt.params)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Empty(t, cmd.Tokens, "no partial command on failure")

				var missing *MissingRequiredFlagError
				var bad *InvalidFlagValueError
				switch {
				case errors.As(err, &missing):
					assert.Equal(t, tt.flag, missing.Flag)
				case errors.As(err, &bad):
					assert.Equal(t, tt.flag, bad.Flag)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd.String())
		})
	}
}

func TestBuildEveryOperationWithRequiredOnly(t *testing.T) {
	for _, op := range grammar.All() {
		t.Run(op.Key(), func(t *testing.T) {
			cmd, err := Build(string(op.Family), op.Action, minimalParams(op))
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(cmd.Tokens), 3)
			assert.Equal(t, grammar.Program, cmd.Program())
			assert.Equal(t, string(op.Family), cmd.Tokens[1])
			assert.Equal(t, op.Action, cmd.Tokens[2])
		})
	}
}

func TestBuildMissingEachRequiredFlag(t *testing.T) {
	for _, op := range grammar.All() {
		for _, f := range op.Required {
			t.Run(op.Key()+" "+f.Name, func(t *testing.T) {
				params := minimalParams(op)
				delete(params, f.Name)

				_, err := Build(string(op.Family), op.Action, params)
				var missing *MissingRequiredFlagError
				require.True(t, errors.As(err, &missing), "got %v", err)
				assert.Equal(t, f.Name, missing.Flag)
				assert.False(t, errors.Is(err, ErrInvalidFlagValue))
				assert.False(t, errors.Is(err, ErrUnknownOperation))
			})
		}
	}
}

func TestBuildSinglePositionalIsRequired(t *testing.T) {
	tests := []struct {
		name   string
		family string
		action string
		params ParameterSet
	}{
		{"metadata without query", "search", "metadata", ParameterSet{}},
		{"metadata with blank query", "search", "metadata", ParameterSet{"query": "  "}},
		{"taxon without query", "search", "taxon", ParameterSet{"context": "ctxA"}},
		{"taxon with empty list", "search", "taxon", ParameterSet{"context": "ctxA", "query": []string{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.family, tt.action, tt.params)
			var missing *MissingRequiredFlagError
			require.True(t, errors.As(err, &missing), "got %v", err)
			assert.Equal(t, "query", missing.Flag)
		})
	}
}

func TestBuildRejectsFlagLikeValues(t *testing.T) {
	tests := []struct {
		name   string
		family string
		action string
		params ParameterSet
		flag   string
	}{
		{"string flag", "fetch", "samples", ParameterSet{"context": "--weird", "output": "o.biom", "samples": []string{"s1"}}, "--context"},
		{"path flag", "fetch", "samples", ParameterSet{"context": "ctxA", "output": "--o.biom"}, "--output"},
		{"bare double dash", "fetch", "samples", ParameterSet{"context": "--", "output": "o.biom"}, "--context"},
		{"repeatable flag", "fetch", "sample-metadata", ParameterSet{"output": "o.tsv", "force-category": []string{"ph", "--tagged"}}, "--force-category"},
		{"variadic positional", "fetch", "samples", ParameterSet{"context": "ctxA", "output": "o.biom", "samples": []string{"s1", "--s2"}}, "samples"},
		{"single positional", "search", "taxon", ParameterSet{"context": "ctxA", "query": "--exact"}, "query"},
		{"leading positional", "select", "samples-from-metadata", ParameterSet{"context": "ctxA", "query": "--from x"}, "query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Build(tt.family, tt.action, tt.params)
			var bad *InvalidFlagValueError
			require.True(t, errors.As(err, &bad), "got %v", err)
			assert.Equal(t, tt.flag, bad.Flag)
			assert.Contains(t, bad.Reason, "must not start with --")
			assert.Empty(t, cmd.Tokens)
		})
	}

	// a single dash is an ordinary value
	cmd, err := Build("search", "taxon", ParameterSet{"context": "ctxA", "query": "-unclassified"})
	require.NoError(t, err)
	assert.Equal(t, "redbiom search taxon --context ctxA -unclassified", cmd.String())
}

func TestMustBuild(t *testing.T) {
	cmd := MustBuild("summarize", "contexts", nil)
	assert.Equal(t, "redbiom summarize contexts", cmd.String())

	assert.Panics(t, func() {
		MustBuild("search", "metadata", ParameterSet{})
	})
}

func TestBuildIsDeterministic(t *testing.T) {
	params := ParameterSet{
		"context":             "ctxA",
		"output":              "out file.biom",
		"resolve-ambiguities": "most-reads",
		"fetch-taxonomy":      true,
		"samples":             []string{"10317.a", "10317.b", "550.c"},
	}
	first, err := Build("fetch", "samples", params)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Build("fetch", "samples", params)
		require.NoError(t, err)
		assert.Equal(t, first.String(), again.String())
		assert.Equal(t, first.Tokens, again.Tokens)
	}
}

func TestBuildDuplicateKeys(t *testing.T) {
	_, err := Build("fetch", "samples", ParameterSet{"context": "a", "--context": "b", "output": "o"})
	assert.True(t, errors.Is(err, ErrInvalidFlagValue))
}

func TestBuildAcceptsJSONShapes(t *testing.T) {
	// values decoded from JSON arrive as float64 and []interface{}
	cmd, err := Build("fetch", "qiita-study", ParameterSet{
		"study-id":        float64(10317),
		"context":         "ctxA",
		"output-basename": "s",
	})
	require.NoError(t, err)
	assert.Equal(t, "redbiom fetch qiita-study --study-id 10317 --context ctxA --output-basename s", cmd.String())

	cmd, err = Build("search", "samples", ParameterSet{"context": "ctxA", "samples": []interface{}{"s1", "s2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"search", "samples", "--context", "ctxA", "s1", "s2"}, cmd.Args())
	assert.Equal(t, "search samples", cmd.Operation())
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ctxA", "ctxA"},
		{"Woltka-per-genome-WoLr2-3ab352", "Woltka-per-genome-WoLr2-3ab352"},
		{"10317.000001", "10317.000001"},
		{"", "''"},
		{"a b", "'a b'"},
		{"it's", `'it'\''s'`},
		{"x;rm -rf /", "'x;rm -rf /'"},
		{"$(whoami)", "'$(whoami)'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Quote(tt.in), tt.in)
	}
}
