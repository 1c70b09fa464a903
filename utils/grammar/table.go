package grammar

import (
	"fmt"
	"sort"
)

// Resolution choices accepted by --resolve-ambiguities
var resolveChoices = []string{"none", "merge", "most-reads"}

func intPtr(v int) *int { return &v }

func str(name, help string) FlagSpec {
	return FlagSpec{Name: name, Kind: KindString, Help: help}
}

func path(name, help string) FlagSpec {
	return FlagSpec{Name: name, Kind: KindPath, Help: help}
}

func boolean(name, help string) FlagSpec {
	return FlagSpec{Name: name, Kind: KindBool, Help: help}
}

func integer(name string, min int, def, help string) FlagSpec {
	return FlagSpec{Name: name, Kind: KindInt, Min: intPtr(min), Default: def, Help: help}
}

func choice(name string, choices []string, help string) FlagSpec {
	return FlagSpec{Name: name, Kind: KindChoice, Choices: choices, Help: help}
}

// Shared flag definitions
var (
	flagContext     = str("--context", "The context to search within.")
	flagOutput      = path("--output", "A filepath to write to.")
	flagFrom        = path("--from", "A file or stdin which provides the identifiers.")
	flagExact       = boolean("--exact", "All found items must satisfy every specified identifier.")
	flagMinCount    = integer("--min-count", 1, "1", "Minimum number of times the feature was observed.")
	flagCategory    = str("--category", "The metadata category (column) to summarize over.")
	flagDescending  = boolean("--descending", "Sort in descending order.")
	flagMD5         = choice("--md5", []string{"True", "False"}, "Use MD5 for features and save the original mapping.")
	flagResolve     = choice("--resolve-ambiguities", resolveChoices, "Resolve sample ambiguities.")
	flagTaxonomy    = boolean("--fetch-taxonomy", "Resolve taxonomy on fetch.")
	flagRetainID    = boolean("--retain-artifact-id", "With most-reads, retain the artifact ID of the kept sample.")
	flagStudyID     = integer("--study-id", 1, "", "The Qiita study ID to fetch.")
	flagBasename    = str("--output-basename", "Base filename for outputs (TSV + BIOM).")
	flagRemoveBlank = boolean("--remove-blanks", "Remove samples with 'blank' in their name.")
)

// operations is the authoritative catalog, in declared order. It is only read
// through Lookup/All, which hand out copies.
var operations = []OperationSpec{
	// search
	{
		Family:         FamilySearch,
		Action:         "features",
		Summary:        "Get samples containing the given features.",
		Required:       []FlagSpec{flagContext},
		Optional:       []FlagSpec{flagFrom, flagExact, flagMinCount},
		Positional:     Variadic,
		PositionalName: "features",
		ReadsFromStdin: true,
	},
	{
		Family:         FamilySearch,
		Action:         "samples",
		Summary:        "Get features present in the given samples.",
		Required:       []FlagSpec{flagContext},
		Optional:       []FlagSpec{flagFrom, flagExact, flagMinCount},
		Positional:     Variadic,
		PositionalName: "samples",
		ReadsFromStdin: true,
	},
	{
		Family:         FamilySearch,
		Action:         "metadata",
		Summary:        "Search metadata values or categories with stem and value queries.",
		Optional:       []FlagSpec{boolean("--categories", "Search for metadata categories instead of values.")},
		Positional:     Single,
		PositionalName: "query",
	},
	{
		Family:         FamilySearch,
		Action:         "taxon",
		Summary:        "Find features associated with a taxon.",
		Required:       []FlagSpec{flagContext},
		Positional:     Single,
		PositionalName: "query",
	},

	// fetch
	{
		Family:   FamilyFetch,
		Action:   "tags-contained",
		Summary:  "Get the observed tags within a context.",
		Required: []FlagSpec{flagContext},
	},
	{
		Family:   FamilyFetch,
		Action:   "samples-contained",
		Summary:  "Get all sample identifiers represented in a context.",
		Optional: []FlagSpec{flagContext, boolean("--unambiguous", "Return unambiguous identifiers.")},
	},
	{
		Family:   FamilyFetch,
		Action:   "features-contained",
		Summary:  "Get all features represented in a context.",
		Optional: []FlagSpec{flagContext},
	},
	{
		Family:   FamilyFetch,
		Action:   "sample-metadata",
		Summary:  "Retrieve sample metadata.",
		Required: []FlagSpec{flagOutput},
		Optional: []FlagSpec{
			flagFrom,
			flagContext,
			boolean("--all-columns", "Include all metadata columns, filling missing values with an empty string."),
			boolean("--tagged", "Obtain tag-specific (preparation) metadata."),
			flagResolve,
			{Name: "--force-category", Kind: KindString, Repeatable: true, Help: "Force output to include a metadata variable."},
		},
		Positional:     Variadic,
		PositionalName: "samples",
		ReadsFromStdin: true,
	},
	{
		Family:         FamilyFetch,
		Action:         "features",
		Summary:        "Fetch sample data containing the given features.",
		Required:       []FlagSpec{flagContext, flagOutput},
		Optional:       []FlagSpec{flagFrom, flagExact, flagMD5, flagResolve, flagTaxonomy, flagRetainID},
		Positional:     Variadic,
		PositionalName: "features",
		ReadsFromStdin: true,
	},
	{
		Family:         FamilyFetch,
		Action:         "samples",
		Summary:        "Fetch sample data.",
		Required:       []FlagSpec{flagContext, flagOutput},
		Optional:       []FlagSpec{flagFrom, flagMD5, flagResolve, flagTaxonomy, flagRetainID},
		Positional:     Variadic,
		PositionalName: "samples",
		ReadsFromStdin: true,
	},
	{
		Family:   FamilyFetch,
		Action:   "qiita-study",
		Summary:  "Fetch all data from a Qiita study.",
		Required: []FlagSpec{flagStudyID, flagContext, flagBasename},
		Optional: []FlagSpec{flagResolve, flagTaxonomy, flagRetainID, flagRemoveBlank, flagMD5},
	},

	// summarize
	{
		Family:  FamilySummarize,
		Action:  "contexts",
		Summary: "List the names of available contexts.",
	},
	{
		Family:   FamilySummarize,
		Action:   "metadata-category",
		Summary:  "Summarize the values within a metadata category.",
		Required: []FlagSpec{flagCategory},
		Optional: []FlagSpec{
			boolean("--counter", "Obtain value counts."),
			flagDescending,
			boolean("--dump", "Print the sample information."),
			boolean("--sort-index", "Sort on the index instead of the values."),
		},
	},
	{
		Family:         FamilySummarize,
		Action:         "metadata",
		Summary:        "Get the known metadata categories and associated sample counts.",
		Optional:       []FlagSpec{flagDescending},
		Positional:     Variadic,
		PositionalName: "categories",
	},
	{
		Family:   FamilySummarize,
		Action:   "table",
		Summary:  "Summarize all features in a BIOM table over a metadata category.",
		Required: []FlagSpec{flagCategory, flagContext, path("--table", "Path to the BIOM table.")},
		Optional: []FlagSpec{
			flagOutput,
			integer("--threads", 1, "1", "Number of threads to use."),
			integer("--verbosity", 0, "0", "Joblib verbosity level."),
		},
	},
	{
		Family:         FamilySummarize,
		Action:         "features",
		Summary:        "Summarize features over a metadata category.",
		Required:       []FlagSpec{flagCategory, flagContext},
		Optional:       []FlagSpec{flagFrom, flagExact},
		Positional:     Variadic,
		PositionalName: "features",
		ReadsFromStdin: true,
	},
	{
		Family:         FamilySummarize,
		Action:         "samples",
		Summary:        "Summarize samples over a metadata category.",
		Required:       []FlagSpec{flagCategory},
		Optional:       []FlagSpec{flagFrom},
		Positional:     Variadic,
		PositionalName: "samples",
		ReadsFromStdin: true,
	},
	{
		Family:   FamilySummarize,
		Action:   "taxonomy",
		Summary:  "Summarize taxonomy at all levels for the given features.",
		Required: []FlagSpec{flagContext},
		Optional: []FlagSpec{
			flagFrom,
			{Name: "--normalize-ranks", Kind: KindString, Default: "kpcofgs", Help: "Coerce normalized rank info for unclassifieds."},
		},
		Positional:     Variadic,
		PositionalName: "features",
		ReadsFromStdin: true,
	},

	// select
	{
		Family:         FamilySelect,
		Action:         "samples-from-metadata",
		Summary:        "Given samples, select those matching a metadata query.",
		Required:       []FlagSpec{flagContext},
		Optional:       []FlagSpec{flagFrom},
		Leading:        []PositionalSpec{{Name: "query", Required: true, Help: "Metadata query to filter samples."}},
		Positional:     Variadic,
		PositionalName: "samples",
		ReadsFromStdin: true,
	},
	{
		Family:         FamilySelect,
		Action:         "features-from-samples",
		Summary:        "Given samples, select the features associated with them.",
		Required:       []FlagSpec{flagContext},
		Optional:       []FlagSpec{flagFrom, flagExact},
		Positional:     Variadic,
		PositionalName: "samples",
		ReadsFromStdin: true,
	},
}

// families in declared order
var families = []Family{FamilySearch, FamilyFetch, FamilySummarize, FamilySelect}

// index maps "family action" to a position in operations; built once in init
var index map[string]int

func init() {
	index = make(map[string]int, len(operations))
	for i, op := range operations {
		if _, dup := index[op.Key()]; dup {
			panic(fmt.Sprintf("grammar: duplicate operation %q", op.Key()))
		}
		index[op.Key()] = i
	}
}

// Lookup returns the OperationSpec for a family/action pair
func Lookup(family, action string) (OperationSpec, error) {
	i, ok := index[family+" "+action]
	if !ok {
		return OperationSpec{}, fmt.Errorf("%w: %s %s", ErrUnknownOperation, family, action)
	}
	return copySpec(operations[i]), nil
}

// All returns every operation in declared order
func All() []OperationSpec {
	out := make([]OperationSpec, len(operations))
	for i, op := range operations {
		out[i] = copySpec(op)
	}
	return out
}

// Families returns the known family names in declared order
func Families() []string {
	out := make([]string, len(families))
	for i, f := range families {
		out[i] = string(f)
	}
	return out
}

// IsFamily reports whether name is a known family
func IsFamily(name string) bool {
	for _, f := range families {
		if string(f) == name {
			return true
		}
	}
	return false
}

// Actions returns the actions of a family in declared order, or nil for an unknown family
func Actions(family string) []string {
	var out []string
	for _, op := range operations {
		if string(op.Family) == family {
			out = append(out, op.Action)
		}
	}
	return out
}

// FlagNames returns the sorted set of every flag name used across the grammar
func FlagNames() []string {
	seen := make(map[string]bool)
	for _, op := range operations {
		for _, f := range op.Required {
			seen[f.Name] = true
		}
		for _, f := range op.Optional {
			seen[f.Name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
