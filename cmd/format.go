package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kris-hansen/redbiomctl/utils/fileutil"
	"github.com/kris-hansen/redbiomctl/utils/format"
	"github.com/spf13/cobra"
)

var (
	formatMaxRows int
	formatNoLinks bool
	formatShape   bool
	formatJSON    bool
)

var formatCmd = &cobra.Command{
	Use:   "format [file]",
	Short: "Render redbiom output as a table or list",
	Long: `Read redbiom output from a file or stdin, detect whether it is a table
(TSV or CSV), a list or a single value, and render it. Sample identifiers of
the form <study>.<sample> are collected and linked to their Qiita studies.`,
	Example: `  redbiom summarize contexts | redbiomctl format
  redbiomctl format metadata.tsv --max-rows 20`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if len(args) == 0 || args[0] == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = fileutil.SafeReadFile(args[0])
		}
		if err != nil {
			return err
		}

		p := newPrinter()
		out := format.Parse(string(data))
		switch {
		case formatShape:
			fmt.Fprintf(p.Out, "%s (%s)\n", out.Shape, out.Summary())
			return nil
		case formatJSON:
			enc := json.NewEncoder(p.Out)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		return format.Render(p.Out, out, format.Options{Color: p.Color, MaxRows: formatMaxRows, Links: !formatNoLinks})
	},
}

func init() {
	formatCmd.Flags().IntVar(&formatMaxRows, "max-rows", 50, "rows or items shown, 0 for all")
	formatCmd.Flags().BoolVar(&formatNoLinks, "no-links", false, "do not list Qiita study links")
	formatCmd.Flags().BoolVar(&formatShape, "shape", false, "only print the detected shape")
	formatCmd.Flags().BoolVar(&formatJSON, "json", false, "print the parsed output as JSON")
	rootCmd.AddCommand(formatCmd)
}
