package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kris-hansen/redbiomctl/utils/format"
	"github.com/kris-hansen/redbiomctl/utils/history"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyFind  string
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded questions, built commands and runs",
	Long: `Show the most recent history entries. With --find, show every earlier use
of a command; spacing and quoting differences do not matter.`,
	Example: `  redbiomctl history -n 20
  redbiomctl history --find "redbiom summarize contexts"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext(cmd)
		store := openHistory(ctx)
		if store == nil {
			return fmt.Errorf("history is disabled; set history.enabled in %s", "config.yaml")
		}
		defer closeHistory(store)

		var entries []history.Entry
		var err error
		if historyFind != "" {
			entries, err = store.FindByFingerprint(ctx, history.Fingerprint(historyFind))
		} else {
			entries, err = store.Recent(ctx, historyLimit)
		}
		if err != nil {
			return err
		}

		p := newPrinter()
		if historyJSON {
			enc := json.NewEncoder(p.Out)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		if len(entries) == 0 {
			p.Dim("no history entries")
			return nil
		}
		return format.Render(p.Out, historyTable(entries), format.Options{Color: p.Color})
	},
}

func historyTable(entries []history.Entry) format.Output {
	out := format.Output{
		Shape:       format.Table,
		Headers:     []string{"ID", "When", "Kind", "Command", "Status"},
		StudyColumn: -1,
	}
	for _, e := range entries {
		status := "ok"
		switch {
		case e.Kind == history.KindBuild:
			status = "-"
		case !e.Success:
			status = fmt.Sprintf("exit %d", e.ExitCode)
		}
		what := e.Command
		if what == "" {
			what = e.Question
		}
		if i := strings.IndexByte(what, '\n'); i >= 0 {
			what = what[:i] + " …"
		}
		out.Rows = append(out.Rows, []string{
			fmt.Sprint(e.ID),
			e.CreatedAt.Local().Format(time.DateTime),
			e.Kind,
			what,
			status,
		})
	}
	return out
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")
	historyCmd.Flags().StringVar(&historyFind, "find", "", "show entries for this command")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print entries as JSON")
	rootCmd.AddCommand(historyCmd)
}
