package cmd

import (
	"fmt"

	"github.com/kris-hansen/redbiomctl/utils/samples"
	"github.com/spf13/cobra"
)

var (
	samplesColumn     int
	samplesDelimiter  string
	samplesTransform  string
	samplesSkipHeader bool
	samplesUnique     bool
)

var samplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "Work with sample identifier lists",
}

var samplesExtractCmd = &cobra.Command{
	Use:   "extract <input> <output>",
	Short: "Extract sample identifiers from one column of a delimited file",
	Long: `Read a delimited file (tab-separated by default), take one column and write
one identifier per line, ready for --from. A transform can rewrite each
identifier:

  none     keep identifiers as they are
  shorten  drop everything after the sample (10317.000000001.1 -> 10317.000000001)
  prefix   keep only the study (10317.000000001 -> 10317)`,
	Example: `  redbiomctl samples extract metadata.tsv samples.txt --skip-header
  redbiomctl samples extract hits.csv ids.txt --delimiter , --column 2`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		transform, err := samples.ParseTransform(samplesTransform)
		if err != nil {
			return err
		}
		opts := samples.Options{
			Column:     samplesColumn,
			Delimiter:  samplesDelimiter,
			Transform:  transform,
			SkipHeader: samplesSkipHeader,
			Unique:     samplesUnique,
		}
		ids, err := samples.ExtractFile(args[0], args[1], opts)
		if err != nil {
			return err
		}
		newPrinter().Success("wrote %d identifiers to %s", len(ids), args[1])
		return nil
	},
}

var samplesCountCmd = &cobra.Command{
	Use:   "count <file>",
	Short: "Count the identifiers in a list file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := samples.Count(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(newPrinter().Out, n)
		return nil
	},
}

func init() {
	samplesExtractCmd.Flags().IntVarP(&samplesColumn, "column", "c", 1, "1-based column holding the identifiers")
	samplesExtractCmd.Flags().StringVarP(&samplesDelimiter, "delimiter", "d", "\t", "field delimiter")
	samplesExtractCmd.Flags().StringVarP(&samplesTransform, "transform", "t", "none", "none, shorten or prefix")
	samplesExtractCmd.Flags().BoolVar(&samplesSkipHeader, "skip-header", false, "skip the first line")
	samplesExtractCmd.Flags().BoolVarP(&samplesUnique, "unique", "u", false, "drop repeated identifiers")
	samplesCmd.AddCommand(samplesExtractCmd, samplesCountCmd)
	rootCmd.AddCommand(samplesCmd)
}
