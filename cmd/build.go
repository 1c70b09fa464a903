package cmd

import (
	"fmt"
	"strings"

	"github.com/kris-hansen/redbiomctl/utils/command"
	"github.com/kris-hansen/redbiomctl/utils/grammar"
	"github.com/kris-hansen/redbiomctl/utils/history"
	"github.com/kris-hansen/redbiomctl/utils/runner"
	"github.com/spf13/cobra"
)

var (
	buildParams    []string
	buildRun       bool
	buildYes       bool
	buildNoContext bool
	buildFrom      string
)

var buildCmd = &cobra.Command{
	Use:   "build <family> <action> [values...]",
	Short: "Build a redbiom command from structured parameters",
	Long: `Build a redbiom command from a family, an action and flag values.

Flags of the redbiom command are given with --param name=value; repeat --param
for repeatable flags. Remaining arguments fill the operation's positionals in
order: a leading query first (select samples-from-metadata), then the trailing
sample or feature list. The default context is filled in when the operation
needs --context and none is given.`,
	Example: `  # Samples of a Qiita study
  redbiomctl build search metadata "where qiita_study_id == 10317"

  # Fetch a BIOM table for two samples
  redbiomctl build fetch samples -p output=out.biom 10317.000001 10317.000002

  # Build and run
  redbiomctl build summarize contexts --run`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := grammar.Lookup(args[0], args[1])
		if err != nil {
			return fmt.Errorf("%w (see 'redbiomctl grammar')", err)
		}
		params, err := parseParams(op, args[2:], buildParams)
		if err != nil {
			return err
		}
		if !buildNoContext {
			fillContext(op, params, envConfig.Redbiom.Context)
		}

		built, err := command.Build(args[0], args[1], params)
		if err != nil {
			return err
		}

		ctx := cmdContext(cmd)
		store := openHistory(ctx)
		defer closeHistory(store)
		record(ctx, store, &history.Entry{Kind: history.KindBuild, Command: built.String(), Success: true})

		p := newPrinter()
		if !buildRun {
			fmt.Fprintln(p.Out, built.String())
			return nil
		}

		ids, err := stdinIDs(buildFrom)
		if err != nil {
			return err
		}
		return executeCommand(ctx, p, store, built, execOptions{
			Run:       runner.RunOptions{Stdin: ids},
			NoConfirm: buildYes,
		})
	},
}

// parseParams maps --param values and positional arguments onto the
// operation's flag and positional names
func parseParams(op grammar.OperationSpec, args, raw []string) (command.ParameterSet, error) {
	params := command.ParameterSet{}
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimLeft(strings.TrimSpace(name), "-")
		if name == "" {
			return nil, fmt.Errorf("invalid --param %q: expected name=value", kv)
		}
		f, known := op.Flag(name)
		if !ok {
			// a bare name switches a boolean flag on
			if !known || f.Kind != grammar.KindBool {
				return nil, fmt.Errorf("invalid --param %q: expected name=value", kv)
			}
			value = "true"
		}
		if known && f.Repeatable {
			list, _ := params[name].([]string)
			params[name] = append(list, value)
			continue
		}
		if _, dup := params[name]; dup {
			return nil, fmt.Errorf("--param %s given more than once", name)
		}
		params[name] = value
	}

	for _, p := range op.Leading {
		if len(args) == 0 {
			break
		}
		params[p.Name] = args[0]
		args = args[1:]
	}
	if len(args) > 0 {
		if op.Positional == grammar.None {
			return nil, fmt.Errorf("%s takes no positional arguments, got %d", op.Key(), len(args))
		}
		params[op.PositionalName] = append([]string(nil), args...)
	}
	return params, nil
}

// fillContext sets --context to the default when the operation requires it
// and the caller left it out
func fillContext(op grammar.OperationSpec, params command.ParameterSet, def string) {
	if def == "" || !op.IsRequired("context") {
		return
	}
	if _, ok := params["context"]; ok {
		return
	}
	params["context"] = def
}

func init() {
	buildCmd.Flags().StringArrayVarP(&buildParams, "param", "p", nil, "flag value as name=value (repeatable)")
	buildCmd.Flags().BoolVar(&buildRun, "run", false, "run the command after building it")
	buildCmd.Flags().BoolVarP(&buildYes, "yes", "y", false, "run without asking for confirmation")
	buildCmd.Flags().BoolVar(&buildNoContext, "no-default-context", false, "do not fill in the configured context")
	buildCmd.Flags().StringVar(&buildFrom, "from", "", "file of identifiers to pass on stdin ('-' for stdin)")
	rootCmd.AddCommand(buildCmd)
}
