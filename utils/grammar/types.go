package grammar

import (
	"errors"
	"fmt"
	"strings"
)

// Program is the name of the wrapped command-line tool
const Program = "redbiom"

// ErrUnknownOperation is returned when a family/action pair is not in the grammar
var ErrUnknownOperation = errors.New("unknown operation")

// Family is the top-level verb group of a redbiom command
type Family string

const (
	FamilySearch    Family = "search"
	FamilyFetch     Family = "fetch"
	FamilySummarize Family = "summarize"
	FamilySelect    Family = "select"
)

// Cardinality describes how many trailing positional arguments an operation takes
type Cardinality int

const (
	// None means the operation takes no trailing positional arguments
	None Cardinality = iota
	// Single means exactly one trailing positional argument
	Single
	// Variadic means zero or more trailing positional arguments
	Variadic
)

func (c Cardinality) String() string {
	switch c {
	case Single:
		return "single"
	case Variadic:
		return "variadic"
	default:
		return "none"
	}
}

// FlagKind is the value type a flag expects
type FlagKind int

const (
	KindString FlagKind = iota
	KindInt
	KindBool
	KindChoice
	KindPath
)

func (k FlagKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindChoice:
		return "choice"
	case KindPath:
		return "path"
	default:
		return "string"
	}
}

// FlagSpec describes a single flag of an operation
type FlagSpec struct {
	Name       string   // Flag token including the leading dashes, e.g. "--context"
	Kind       FlagKind // Value type
	Min        *int     // Minimum for integer flags
	Choices    []string // Allowed values for choice flags
	Default    string   // Documented default, informational only
	Repeatable bool     // Flag may be given more than once (list values)
	Help       string
}

// TakesValue reports whether the flag token is followed by a value token
func (f FlagSpec) TakesValue() bool {
	return f.Kind != KindBool
}

// Key returns the flag name without leading dashes
func (f FlagSpec) Key() string {
	return strings.TrimLeft(f.Name, "-")
}

// AllowsChoice reports whether value is one of the declared choices
func (f FlagSpec) AllowsChoice(value string) bool {
	for _, c := range f.Choices {
		if c == value {
			return true
		}
	}
	return false
}

// PositionalSpec describes a named positional argument that precedes the trailing list
type PositionalSpec struct {
	Name     string
	Required bool
	Help     string
}

// OperationSpec describes one family/action pair of the redbiom command line
type OperationSpec struct {
	Family         Family
	Action         string
	Summary        string
	Required       []FlagSpec
	Optional       []FlagSpec
	Leading        []PositionalSpec // positionals rendered before the trailing list, e.g. a metadata query
	Positional     Cardinality
	PositionalName string // e.g. "samples", "features", "query"
	ReadsFromStdin bool   // trailing list may be supplied on stdin instead of argv
}

// Key returns the canonical "family action" name
func (o OperationSpec) Key() string {
	return fmt.Sprintf("%s %s", o.Family, o.Action)
}

// Flag looks up a required or optional flag by name, with or without leading dashes
func (o OperationSpec) Flag(name string) (FlagSpec, bool) {
	key := strings.TrimLeft(name, "-")
	for _, f := range o.Required {
		if f.Key() == key {
			return f, true
		}
	}
	for _, f := range o.Optional {
		if f.Key() == key {
			return f, true
		}
	}
	return FlagSpec{}, false
}

// IsRequired reports whether the named flag is required
func (o OperationSpec) IsRequired(name string) bool {
	key := strings.TrimLeft(name, "-")
	for _, f := range o.Required {
		if f.Key() == key {
			return true
		}
	}
	return false
}

// Usage renders a one-line synopsis, e.g.
// "redbiom fetch samples --context <string> --output <path> [--md5 <True|False>] [samples...]"
func (o OperationSpec) Usage() string {
	parts := []string{Program, string(o.Family), o.Action}
	for _, f := range o.Required {
		parts = append(parts, flagUsage(f))
	}
	for _, f := range o.Optional {
		parts = append(parts, "["+flagUsage(f)+"]")
	}
	for _, p := range o.Leading {
		if p.Required {
			parts = append(parts, "<"+p.Name+">")
		} else {
			parts = append(parts, "["+p.Name+"]")
		}
	}
	switch o.Positional {
	case Single:
		parts = append(parts, "<"+o.PositionalName+">")
	case Variadic:
		parts = append(parts, "["+o.PositionalName+"...]")
	}
	return strings.Join(parts, " ")
}

func flagUsage(f FlagSpec) string {
	switch f.Kind {
	case KindBool:
		return f.Name
	case KindChoice:
		return fmt.Sprintf("%s <%s>", f.Name, strings.Join(f.Choices, "|"))
	default:
		return fmt.Sprintf("%s <%s>", f.Name, f.Kind)
	}
}

// copySpec returns a deep copy so callers can never mutate the table
func copySpec(o OperationSpec) OperationSpec {
	c := o
	c.Required = copyFlags(o.Required)
	c.Optional = copyFlags(o.Optional)
	c.Leading = append([]PositionalSpec(nil), o.Leading...)
	return c
}

func copyFlags(in []FlagSpec) []FlagSpec {
	if in == nil {
		return nil
	}
	out := make([]FlagSpec, len(in))
	for i, f := range in {
		out[i] = f
		out[i].Choices = append([]string(nil), f.Choices...)
		if f.Min != nil {
			m := *f.Min
			out[i].Min = &m
		}
	}
	return out
}
