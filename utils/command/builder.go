package command

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/kris-hansen/redbiomctl/utils/grammar"
)

// ParameterSet maps flag names (with or without leading dashes) and positional
// names ("samples", "features", "categories", "query") to values. Supported
// value types are string, integers, bool and []string.
type ParameterSet map[string]interface{}

// BuiltCommand is an ordered token sequence for one redbiom invocation
type BuiltCommand struct {
	Tokens []string
}

// String renders the command with every token quoted by Quote
func (c BuiltCommand) String() string {
	return Join(c.Tokens)
}

// Program returns the program token
func (c BuiltCommand) Program() string {
	if len(c.Tokens) == 0 {
		return ""
	}
	return c.Tokens[0]
}

// Args returns every token after the program name
func (c BuiltCommand) Args() []string {
	if len(c.Tokens) < 2 {
		return nil
	}
	return append([]string(nil), c.Tokens[1:]...)
}

// Operation returns the "family action" pair of the command
func (c BuiltCommand) Operation() string {
	if len(c.Tokens) < 3 {
		return ""
	}
	return c.Tokens[1] + " " + c.Tokens[2]
}

// Build renders family/action/params into a BuiltCommand. It fails with
// ErrUnknownOperation, a *MissingRequiredFlagError or an *InvalidFlagValueError
// and never returns a partial command.
func Build(family, action string, params ParameterSet) (BuiltCommand, error) {
	op, err := grammar.Lookup(family, action)
	if err != nil {
		return BuiltCommand{}, err
	}

	values, err := normalize(params)
	if err != nil {
		return BuiltCommand{}, err
	}

	for _, f := range op.Required {
		if isEmpty(values[f.Key()]) {
			return BuiltCommand{}, &MissingRequiredFlagError{Flag: f.Name}
		}
	}
	for _, p := range op.Leading {
		if p.Required && isEmpty(values[p.Name]) {
			return BuiltCommand{}, &MissingRequiredFlagError{Flag: p.Name}
		}
	}
	if op.Positional == grammar.Single && isEmpty(values[op.PositionalName]) {
		return BuiltCommand{}, &MissingRequiredFlagError{Flag: op.PositionalName}
	}
	if err := checkAccepted(op, values); err != nil {
		return BuiltCommand{}, err
	}

	tokens := []string{grammar.Program, string(op.Family), op.Action}

	for _, f := range op.Required {
		rendered, err := renderFlag(f, values[f.Key()])
		if err != nil {
			return BuiltCommand{}, err
		}
		tokens = append(tokens, rendered...)
	}
	for _, f := range op.Optional {
		v, ok := values[f.Key()]
		if !ok || v == nil {
			continue
		}
		rendered, err := renderFlag(f, v)
		if err != nil {
			return BuiltCommand{}, err
		}
		tokens = append(tokens, rendered...)
	}

	for _, p := range op.Leading {
		v, ok := values[p.Name]
		if !ok || v == nil {
			continue
		}
		s, err := asString(p.Name, v)
		if err != nil {
			return BuiltCommand{}, err
		}
		if err := checkValue(p.Name, s); err != nil {
			return BuiltCommand{}, err
		}
		tokens = append(tokens, s)
	}

	if op.Positional != grammar.None {
		if v, ok := values[op.PositionalName]; ok && v != nil {
			items, err := asList(op.PositionalName, v)
			if err != nil {
				return BuiltCommand{}, err
			}
			if op.Positional == grammar.Single && len(items) > 1 {
				return BuiltCommand{}, invalid(op.PositionalName, "accepts a single value, got %d", len(items))
			}
			for _, item := range items {
				if err := checkValue(op.PositionalName, item); err != nil {
					return BuiltCommand{}, err
				}
			}
			tokens = append(tokens, items...)
		}
	}

	return BuiltCommand{Tokens: tokens}, nil
}

// MustBuild is Build for static commands known to be valid; it panics on error
func MustBuild(family, action string, params ParameterSet) BuiltCommand {
	cmd, err := Build(family, action, params)
	if err != nil {
		panic(err)
	}
	return cmd
}

// normalize strips leading dashes from every key and rejects duplicates such as
// "context" and "--context" given together
func normalize(params ParameterSet) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(params))
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key := strings.TrimLeft(strings.TrimSpace(k), "-")
		if _, dup := out[key]; dup {
			return nil, invalid("--"+key, "given more than once")
		}
		out[key] = params[k]
	}
	return out, nil
}

func checkAccepted(op grammar.OperationSpec, values map[string]interface{}) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, ok := op.Flag(k); ok {
			continue
		}
		if op.Positional != grammar.None && k == op.PositionalName {
			continue
		}
		leading := false
		for _, p := range op.Leading {
			if p.Name == k {
				leading = true
				break
			}
		}
		if leading {
			continue
		}
		return invalid("--"+k, "not accepted by %s", op.Key())
	}
	return nil
}

func renderFlag(f grammar.FlagSpec, v interface{}) ([]string, error) {
	switch f.Kind {
	case grammar.KindBool:
		b, err := asBool(f.Name, v)
		if err != nil || !b {
			return nil, err
		}
		return []string{f.Name}, nil

	case grammar.KindInt:
		n, err := asInt(f.Name, v)
		if err != nil {
			return nil, err
		}
		if f.Min != nil && n < *f.Min {
			return nil, invalid(f.Name, "must be >= %d, got %d", *f.Min, n)
		}
		return []string{f.Name, strconv.Itoa(n)}, nil

	case grammar.KindChoice:
		var s string
		if b, ok := v.(bool); ok && f.AllowsChoice("True") {
			s = "False"
			if b {
				s = "True"
			}
		} else {
			var err error
			if s, err = asString(f.Name, v); err != nil {
				return nil, err
			}
		}
		if !f.AllowsChoice(s) {
			return nil, invalid(f.Name, "must be one of %s, got %q", strings.Join(f.Choices, "|"), s)
		}
		return []string{f.Name, s}, nil

	default:
		if f.Repeatable {
			items, err := asList(f.Name, v)
			if err != nil {
				return nil, err
			}
			var out []string
			for _, item := range items {
				if err := checkValue(f.Name, item); err != nil {
					return nil, err
				}
				out = append(out, f.Name, item)
			}
			return out, nil
		}
		s, err := asString(f.Name, v)
		if err != nil {
			return nil, err
		}
		if err := checkValue(f.Name, s); err != nil {
			return nil, err
		}
		return []string{f.Name, s}, nil
	}
}

// checkValue rejects values that would be read back as a flag
func checkValue(name, s string) error {
	if s == "" {
		return invalid(name, "must not be empty")
	}
	if strings.HasPrefix(s, "--") {
		return invalid(name, "must not start with --, got %q", s)
	}
	return nil
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case []interface{}:
		return len(t) == 0
	}
	return false
}

func asString(name string, v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case fmt.Stringer:
		return t.String(), nil
	}
	return "", invalid(name, "expected a string, got %T", v)
}

func asInt(name string, v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int32:
		return int(t), nil
	case int64:
		return int(t), nil
	case float64:
		// JSON numbers decode as float64
		if t != math.Trunc(t) {
			return 0, invalid(name, "expected an integer, got %v", t)
		}
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, invalid(name, "expected an integer, got %q", t)
		}
		return n, nil
	}
	return 0, invalid(name, "expected an integer, got %T", v)
}

func asBool(name string, v interface{}) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, invalid(name, "expected true or false, got %q", t)
		}
		return b, nil
	}
	return false, invalid(name, "expected a boolean, got %T", v)
}

func asList(name string, v interface{}) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), nil
	case string:
		return []string{t}, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, err := asString(name, item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, invalid(name, "expected a list of strings, got %T", v)
}
