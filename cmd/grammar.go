package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/kris-hansen/redbiomctl/utils/format"
	"github.com/kris-hansen/redbiomctl/utils/grammar"
	"github.com/spf13/cobra"
)

var (
	grammarUsage bool
	grammarFlags bool
)

var grammarCmd = &cobra.Command{
	Use:   "grammar [family] [action]",
	Short: "List the redbiom operations and their flags",
	Long: `List every redbiom operation known to redbiomctl with its required flags
and positionals. Give a family to narrow the list, or a family and an action
to see every flag of one operation.`,
	Example: `  redbiomctl grammar
  redbiomctl grammar fetch
  redbiomctl grammar fetch samples
  redbiomctl grammar --usage
  redbiomctl grammar --flags`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter()

		if grammarFlags {
			for _, name := range grammar.FlagNames() {
				fmt.Fprintln(p.Out, name)
			}
			return nil
		}

		if len(args) == 2 {
			op, err := grammar.Lookup(args[0], args[1])
			if err != nil {
				return err
			}
			return describeOperation(p.Out, op, p.Color)
		}

		ops := grammar.All()
		if len(args) == 1 {
			if !grammar.IsFamily(args[0]) {
				return fmt.Errorf("unknown family %q (expected one of %s)", args[0], strings.Join(grammar.Families(), ", "))
			}
			var filtered []grammar.OperationSpec
			for _, op := range ops {
				if string(op.Family) == args[0] {
					filtered = append(filtered, op)
				}
			}
			ops = filtered
		}

		if grammarUsage {
			for _, op := range ops {
				fmt.Fprintln(p.Out, op.Usage())
			}
			return nil
		}

		out := format.Output{Shape: format.Table, Headers: []string{"Operation", "Required", "Positional", "Summary"}, StudyColumn: -1}
		for _, op := range ops {
			out.Rows = append(out.Rows, []string{op.Key(), requiredList(op), positional(op), op.Summary})
		}
		return format.Render(p.Out, out, format.Options{Color: p.Color})
	},
}

func requiredList(op grammar.OperationSpec) string {
	var names []string
	for _, f := range op.Required {
		names = append(names, f.Name)
	}
	for _, l := range op.Leading {
		if l.Required {
			names = append(names, "<"+l.Name+">")
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, " ")
}

func positional(op grammar.OperationSpec) string {
	switch op.Positional {
	case grammar.Single:
		return op.PositionalName
	case grammar.Variadic:
		return op.PositionalName + "..."
	}
	return "-"
}

func describeOperation(w io.Writer, op grammar.OperationSpec, color bool) error {
	fmt.Fprintf(w, "%s\n\n%s\n\n", op.Summary, op.Usage())

	out := format.Output{Shape: format.Table, Headers: []string{"Flag", "Type", "Required", "Default", "Help"}, StudyColumn: -1}
	add := func(f grammar.FlagSpec, required bool) {
		kind := f.Kind.String()
		if f.Kind == grammar.KindChoice {
			kind = strings.Join(f.Choices, "|")
		}
		if f.Kind == grammar.KindInt && f.Min != nil {
			kind = fmt.Sprintf("int >= %d", *f.Min)
		}
		if f.Repeatable {
			kind += " (repeatable)"
		}
		req := "no"
		if required {
			req = "yes"
		}
		out.Rows = append(out.Rows, []string{f.Name, kind, req, f.Default, f.Help})
	}
	for _, f := range op.Required {
		add(f, true)
	}
	for _, f := range op.Optional {
		add(f, false)
	}
	if len(out.Rows) == 0 {
		fmt.Fprintln(w, "No flags.")
	} else if err := format.Render(w, out, format.Options{Color: color}); err != nil {
		return err
	}

	if op.ReadsFromStdin {
		fmt.Fprintf(w, "\n%s may also be given on stdin or with --from.\n", op.PositionalName)
	}
	return nil
}

func init() {
	grammarCmd.Flags().BoolVar(&grammarUsage, "usage", false, "print one usage line per operation")
	grammarCmd.Flags().BoolVar(&grammarFlags, "flags", false, "print every flag name used by any operation")
	rootCmd.AddCommand(grammarCmd)
}
