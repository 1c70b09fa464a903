package validator

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kris-hansen/redbiomctl/utils/command"
	"github.com/kris-hansen/redbiomctl/utils/grammar"
)

// Severity of an issue; only errors make a report invalid
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Category groups issues by the rule family that produced them
type Category string

const (
	CategoryTokenization Category = "tokenization"
	CategoryProgram      Category = "program"
	CategoryFamily       Category = "family"
	CategoryAction       Category = "action"
	CategoryRequiredFlag Category = "required flag"
	CategoryPositional   Category = "positional"
	CategoryUnknownFlag  Category = "unknown flag"
	CategoryValue        Category = "value"
	CategoryUnsafe       Category = "unsafe shell construct"
)

// Issue is a single finding with a best-effort suggested fix
type Issue struct {
	Rule     string
	Category Category
	Severity Severity
	Message  string
	Fix      string
}

func (i Issue) String() string {
	if i.Fix == "" {
		return fmt.Sprintf("[%s] %s", i.Severity, i.Message)
	}
	return fmt.Sprintf("[%s] %s. %s", i.Severity, i.Message, i.Fix)
}

// Report is the outcome of validating one command string
type Report struct {
	Command   string
	Tokens    []string
	Valid     bool
	Issues    []Issue
	Fixes     []string
	Operation *grammar.OperationSpec
}

// Errors returns the error-severity issues
func (r Report) Errors() []Issue {
	return r.filter(SeverityError)
}

// Warnings returns the warning-severity issues
func (r Report) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

// HasCategory reports whether any issue belongs to c
func (r Report) HasCategory(c Category) bool {
	for _, i := range r.Issues {
		if i.Category == c {
			return true
		}
	}
	return false
}

func (r Report) filter(s Severity) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == s {
			out = append(out, i)
		}
	}
	return out
}

// ErrorSummary returns a numbered list of every issue, suitable as correction
// feedback for a language model
func (r Report) ErrorSummary() string {
	if len(r.Issues) == 0 {
		return ""
	}
	lines := []string{fmt.Sprintf("Command %q has problems:", r.Command)}
	for i, issue := range r.Issues {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, issue.String()))
	}
	return strings.Join(lines, "\n")
}

func (r *Report) add(issue Issue) {
	r.Issues = append(r.Issues, issue)
	r.Fixes = append(r.Fixes, issue.Fix)
}

func (r *Report) finish() Report {
	r.Valid = len(r.Errors()) == 0
	return *r
}

// Validate checks a command string against the redbiom grammar. It never
// panics and always returns a completed report; unsafe shell constructs are
// reported regardless of the outcome of every other check.
func Validate(cmdline string) Report {
	r := &Report{Command: cmdline}

	tokens, err := Tokenize(cmdline)
	if err != nil {
		msg := "malformed quoting"
		fix := "balance every single and double quote"
		if errors.Is(err, ErrEmptyCommand) {
			msg = "empty command"
			fix = "provide a redbiom command, e.g. 'redbiom summarize contexts'"
		}
		r.add(Issue{Rule: "tokenize", Category: CategoryTokenization, Severity: SeverityError, Message: msg, Fix: fix})
	} else {
		r.Tokens = tokens
		checkTokens(r, tokens)
	}

	for _, c := range findUnsafe(cmdline) {
		r.add(Issue{
			Rule:     "unsafe",
			Category: CategoryUnsafe,
			Severity: SeverityError,
			Message:  fmt.Sprintf("unsafe shell construct %q", c),
			Fix:      "run a single redbiom command; use --from or --output instead of pipes, redirection or chaining",
		})
	}
	return r.finish()
}

// ValidateTokens checks an already tokenized command such as a BuiltCommand's
// tokens; the unsafe scan runs on their quoted rendering
func ValidateTokens(tokens []string) Report {
	return Validate(command.Join(tokens))
}

func checkTokens(r *Report, tokens []string) {
	// program
	offset := 1
	if filepath.Base(tokens[0]) != grammar.Program {
		fix := fmt.Sprintf("start the command with '%s'", grammar.Program)
		if grammar.IsFamily(tokens[0]) {
			// program name omitted; keep checking the rest in place
			offset = 0
			fix = fmt.Sprintf("prepend '%s' to the command", grammar.Program)
		}
		r.add(Issue{
			Rule: "program", Category: CategoryProgram, Severity: SeverityError,
			Message: fmt.Sprintf("does not invoke the expected program %q (got %q)", grammar.Program, tokens[0]),
			Fix:     fix,
		})
	}
	rest := tokens[offset:]

	// family
	validFamilies := strings.Join(grammar.Families(), ", ")
	if len(rest) == 0 {
		r.add(Issue{
			Rule: "family", Category: CategoryFamily, Severity: SeverityError,
			Message: "missing command family",
			Fix:     "use one of: " + validFamilies,
		})
		return
	}
	family := rest[0]
	if !grammar.IsFamily(family) {
		r.add(Issue{
			Rule: "family", Category: CategoryFamily, Severity: SeverityError,
			Message: fmt.Sprintf("unknown family %q", family),
			Fix:     "use one of: " + validFamilies,
		})
		return
	}

	// action
	validActions := strings.Join(grammar.Actions(family), ", ")
	if len(rest) < 2 {
		r.add(Issue{
			Rule: "action", Category: CategoryAction, Severity: SeverityError,
			Message: fmt.Sprintf("missing action for family %s", family),
			Fix:     "use one of: " + validActions,
		})
		return
	}
	op, err := grammar.Lookup(family, rest[1])
	if err != nil {
		r.add(Issue{
			Rule: "action", Category: CategoryAction, Severity: SeverityError,
			Message: fmt.Sprintf("unknown action %q for family %s", rest[1], family),
			Fix:     "use one of: " + validActions,
		})
		return
	}
	r.Operation = &op

	checkArguments(r, op, rest[2:])
}

// flagUse records one occurrence of a known flag
type flagUse struct {
	spec     grammar.FlagSpec
	value    string
	hasValue bool
}

func checkArguments(r *Report, op grammar.OperationSpec, args []string) {
	var positionals []string
	uses := make(map[string][]flagUse)

	for i := 0; i < len(args); i++ {
		t := args[i]
		if !strings.HasPrefix(t, "--") || len(t) == 2 {
			positionals = append(positionals, t)
			continue
		}

		name, inline, hasInline := strings.Cut(t, "=")
		spec, ok := op.Flag(name)
		if !ok {
			r.add(Issue{
				Rule: "unknown-flag", Category: CategoryUnknownFlag, Severity: SeverityError,
				Message: fmt.Sprintf("flag %s is not accepted by %s", name, op.Key()),
				Fix:     fmt.Sprintf("remove %s; see: %s", name, op.Usage()),
			})
			continue
		}

		use := flagUse{spec: spec}
		switch {
		case !spec.TakesValue():
			if hasInline {
				r.add(Issue{
					Rule: "value", Category: CategoryValue, Severity: SeverityWarning,
					Message: fmt.Sprintf("flag %s does not take a value", name),
					Fix:     fmt.Sprintf("write %s without =%s", name, inline),
				})
			}
		case hasInline:
			use.value, use.hasValue = inline, true
		case i+1 < len(args) && !strings.HasPrefix(args[i+1], "--"):
			i++
			use.value, use.hasValue = args[i], true
		}
		uses[spec.Key()] = append(uses[spec.Key()], use)
	}

	// required flags
	for _, f := range op.Required {
		found := uses[f.Key()]
		if len(found) == 0 {
			r.add(Issue{
				Rule: "required-flag", Category: CategoryRequiredFlag, Severity: SeverityError,
				Message: fmt.Sprintf("missing required flag %s", f.Name),
				Fix:     fmt.Sprintf("add flag %s with an appropriate value", f.Name),
			})
			continue
		}
		if f.TakesValue() && !found[0].hasValue {
			r.add(Issue{
				Rule: "required-flag", Category: CategoryRequiredFlag, Severity: SeverityError,
				Message: fmt.Sprintf("required flag %s has no value", f.Name),
				Fix:     fmt.Sprintf("follow %s with a %s value", f.Name, f.Kind),
			})
		}
	}
	for _, f := range op.Optional {
		for _, u := range uses[f.Key()] {
			if f.TakesValue() && !u.hasValue {
				r.add(Issue{
					Rule: "value", Category: CategoryValue, Severity: SeverityError,
					Message: fmt.Sprintf("flag %s has no value", f.Name),
					Fix:     fmt.Sprintf("follow %s with a %s value or remove it", f.Name, f.Kind),
				})
			}
		}
	}

	checkPositionals(r, op, positionals)
	checkValues(r, op, uses)
}

func checkPositionals(r *Report, op grammar.OperationSpec, positionals []string) {
	for i, p := range op.Leading {
		if p.Required && len(positionals) <= i {
			r.add(Issue{
				Rule: "positional", Category: CategoryPositional, Severity: SeverityError,
				Message: fmt.Sprintf("missing required argument %s", p.Name),
				Fix:     fmt.Sprintf("add the %s argument, quoted if it contains spaces", p.Name),
			})
		}
	}

	trailing := len(positionals) - len(op.Leading)
	if trailing < 0 {
		trailing = 0
	}
	switch op.Positional {
	case grammar.None:
		if trailing > 0 {
			r.add(Issue{
				Rule: "positional", Category: CategoryPositional, Severity: SeverityError,
				Message: fmt.Sprintf("%s takes no positional arguments, got %d", op.Key(), trailing),
				Fix:     "remove the extra arguments; see: " + op.Usage(),
			})
		}
	case grammar.Single:
		if trailing == 0 {
			r.add(Issue{
				Rule: "positional", Category: CategoryPositional, Severity: SeverityError,
				Message: fmt.Sprintf("missing required argument %s", op.PositionalName),
				Fix:     fmt.Sprintf("add the %s argument, quoted if it contains spaces", op.PositionalName),
			})
		}
		if trailing > 1 {
			r.add(Issue{
				Rule: "positional", Category: CategoryPositional, Severity: SeverityError,
				Message: fmt.Sprintf("%s takes a single %s argument, got %d", op.Key(), op.PositionalName, trailing),
				Fix:     fmt.Sprintf("wrap the %s in quotes so it is passed as one argument", op.PositionalName),
			})
		}
	}
}

// checkValues runs best-effort value sanity checks; findings are warnings
func checkValues(r *Report, op grammar.OperationSpec, uses map[string][]flagUse) {
	check := func(f grammar.FlagSpec) {
		found := uses[f.Key()]
		if len(found) > 1 && !f.Repeatable {
			r.add(Issue{
				Rule: "value", Category: CategoryValue, Severity: SeverityWarning,
				Message: fmt.Sprintf("flag %s given %d times", f.Name, len(found)),
				Fix:     fmt.Sprintf("keep a single %s", f.Name),
			})
		}
		for _, u := range found {
			if !u.hasValue {
				continue
			}
			switch f.Kind {
			case grammar.KindInt:
				if !isDigits(u.value) {
					r.add(Issue{
						Rule: "value", Category: CategoryValue, Severity: SeverityWarning,
						Message: fmt.Sprintf("flag %s expects a number, got %q", f.Name, u.value),
						Fix:     fmt.Sprintf("use digits only for %s", f.Name),
					})
				} else if f.Min != nil && atoi(u.value) < *f.Min {
					r.add(Issue{
						Rule: "value", Category: CategoryValue, Severity: SeverityWarning,
						Message: fmt.Sprintf("flag %s must be at least %d, got %s", f.Name, *f.Min, u.value),
						Fix:     fmt.Sprintf("use %s %d or higher", f.Name, *f.Min),
					})
				}
			case grammar.KindChoice:
				if !f.AllowsChoice(u.value) {
					r.add(Issue{
						Rule: "value", Category: CategoryValue, Severity: SeverityWarning,
						Message: fmt.Sprintf("flag %s expects one of %s, got %q", f.Name, strings.Join(f.Choices, "|"), u.value),
						Fix:     fmt.Sprintf("use %s %s", f.Name, f.Choices[0]),
					})
				}
			}
		}
	}
	for _, f := range op.Required {
		check(f)
	}
	for _, f := range op.Optional {
		check(f)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// atoi parses a digit-only string, saturating instead of overflowing
func atoi(s string) int {
	n := 0
	for _, r := range s {
		if n > (1<<31)/10 {
			return 1 << 31
		}
		n = n*10 + int(r-'0')
	}
	return n
}
