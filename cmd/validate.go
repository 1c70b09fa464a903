package cmd

import (
	"encoding/json"
	"errors"

	"github.com/kris-hansen/redbiomctl/utils/validator"
	"github.com/spf13/cobra"
)

// errInvalidCommand makes the process exit non-zero without repeating the report
var errInvalidCommand = errors.New("command is invalid")

var validateJSON bool

var validateCmd = &cobra.Command{
	Use:   "validate <command>",
	Short: "Check a redbiom command against the grammar",
	Long: `Validate a redbiom command without running it. Every problem is listed
with a suggested fix: unknown families, actions and flags, missing required
flags, bad values, positional counts and shell constructs such as pipes or
redirection.`,
	Example: `  redbiomctl validate "redbiom fetch samples --output out.biom 10317.000001"
  redbiomctl validate redbiom search taxon --context ctx g__Bacteroides`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report := validator.Validate(joinArgs(args))

		p := newPrinter()
		if validateJSON {
			enc := json.NewEncoder(p.Out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			printReport(p, report)
		}
		if !report.Valid {
			return errInvalidCommand
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(validateCmd)
}
