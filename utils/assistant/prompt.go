package assistant

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/kris-hansen/redbiomctl/utils/grammar"
	"github.com/kris-hansen/redbiomctl/utils/qiita"
)

//go:embed prompt.tmpl
var promptTemplate string

var systemTemplate = template.Must(template.New("system").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(promptTemplate))

type promptFlag struct {
	Name  string
	Notes string
	Help  string
}

type promptOperation struct {
	Action     string
	Summary    string
	Usage      string
	Flags      []promptFlag
	Positional string
}

type promptFamily struct {
	Name       string
	Operations []promptOperation
}

type promptData struct {
	Families  []promptFamily
	Context   string
	QiitaBase string
}

// SystemPrompt renders the instructions sent ahead of every conversation,
// listing each operation of the grammar with its flags.
func SystemPrompt(redbiomContext string) (string, error) {
	data := promptData{Context: redbiomContext, QiitaBase: qiita.BaseURL}

	byFamily := map[string][]promptOperation{}
	for _, op := range grammar.All() {
		byFamily[string(op.Family)] = append(byFamily[string(op.Family)], describe(op))
	}
	for _, fam := range grammar.Families() {
		data.Families = append(data.Families, promptFamily{Name: fam, Operations: byFamily[fam]})
	}

	var b strings.Builder
	if err := systemTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering system prompt: %w", err)
	}
	return b.String(), nil
}

func describe(op grammar.OperationSpec) promptOperation {
	p := promptOperation{Action: op.Action, Summary: op.Summary, Usage: op.Usage()}
	for _, f := range op.Required {
		p.Flags = append(p.Flags, promptFlag{Name: f.Name, Notes: "required" + kindNote(f), Help: f.Help})
	}
	for _, f := range op.Optional {
		p.Flags = append(p.Flags, promptFlag{Name: f.Name, Notes: "optional" + kindNote(f), Help: f.Help})
	}
	for _, lp := range op.Leading {
		req := "optional"
		if lp.Required {
			req = "required"
		}
		p.Flags = append(p.Flags, promptFlag{Name: lp.Name, Notes: req + " argument", Help: lp.Help})
	}
	switch op.Positional {
	case grammar.Variadic:
		p.Positional = fmt.Sprintf("`%s...` *(variadic argument)*", op.PositionalName)
	case grammar.Single:
		p.Positional = fmt.Sprintf("`%s` *(single argument)*", op.PositionalName)
	}
	return p
}

func kindNote(f grammar.FlagSpec) string {
	switch f.Kind {
	case grammar.KindBool:
		return ", flag"
	case grammar.KindInt:
		note := ", int"
		if f.Min != nil {
			note += fmt.Sprintf(" ≥%d", *f.Min)
		}
		if f.Default != "" {
			note += ", default=" + f.Default
		}
		return note
	case grammar.KindChoice:
		return ", one of " + strings.Join(f.Choices, "|")
	case grammar.KindPath:
		return ", path"
	default:
		return ""
	}
}
