package cmd

import (
	"fmt"
	"time"

	"github.com/kris-hansen/redbiomctl/utils/command"
	"github.com/kris-hansen/redbiomctl/utils/runner"
	"github.com/kris-hansen/redbiomctl/utils/validator"
	"github.com/spf13/cobra"
)

var (
	runYes     bool
	runForce   bool
	runRaw     bool
	runFrom    string
	runOutput  string
	runTimeout time.Duration
	runMaxRows int
)

var runCmd = &cobra.Command{
	Use:   "run <command>",
	Short: "Validate and run a redbiom command",
	Long: `Validate a redbiom command, ask for confirmation and run it. The command
is split into arguments and executed directly, never through a shell.
Tabular output is rendered as a table with links to Qiita studies.`,
	Example: `  redbiomctl run "redbiom summarize contexts"
  redbiomctl run "redbiom fetch sample-metadata --output md.tsv --context ctx" --from samples.txt
  redbiomctl run -y --raw "redbiom search metadata 'soil & europe'"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter()
		report := validator.Validate(joinArgs(args))
		if !report.Valid || len(report.Issues) > 0 {
			printReport(p, report)
		}
		if !report.Valid {
			// unsafe shell constructs and untokenizable input can never be forced
			if !runForce || len(report.Tokens) == 0 || report.HasCategory(validator.CategoryUnsafe) {
				return errInvalidCommand
			}
			p.Warn("running despite validation errors")
		}

		ids, err := stdinIDs(runFrom)
		if err != nil {
			return fmt.Errorf("error reading identifiers: %w", err)
		}

		ctx := cmdContext(cmd)
		store := openHistory(ctx)
		defer closeHistory(store)

		return executeCommand(ctx, p, store, command.BuiltCommand{Tokens: report.Tokens}, execOptions{
			Run:       runner.RunOptions{Stdin: ids, StdoutFile: runOutput, Timeout: runTimeout},
			Raw:       runRaw,
			MaxRows:   runMaxRows,
			NoConfirm: runYes,
		})
	},
}

func init() {
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "run without asking for confirmation")
	runCmd.Flags().BoolVar(&runForce, "force", false, "run even when validation reports errors")
	runCmd.Flags().BoolVar(&runRaw, "raw", false, "print output without formatting")
	runCmd.Flags().StringVar(&runFrom, "from", "", "file of identifiers to pass on stdin ('-' for stdin)")
	runCmd.Flags().StringVarP(&runOutput, "save", "s", "", "also write stdout to this file")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "override the configured timeout, e.g. 10m")
	runCmd.Flags().IntVar(&runMaxRows, "max-rows", 50, "rows shown before truncating tables")
	rootCmd.AddCommand(runCmd)
}
