package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kris-hansen/redbiomctl/utils/qiita"
	"github.com/kris-hansen/redbiomctl/utils/workflow"
	"github.com/spf13/cobra"
)

var (
	workflowDir     string
	workflowContext string
	workflowResolve string
	workflowDryRun  bool
	workflowYes     bool
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Run multi-step redbiom recipes",
}

var workflowStudyCmd = &cobra.Command{
	Use:   "study <study-id>",
	Short: "Fetch the samples, metadata and BIOM table of a Qiita study",
	Long: `Fetch everything redbiom holds for one Qiita study:

  1. search the metadata for "where qiita_study_id == <id>" and save the samples
  2. check that samples were found
  3. fetch the sample metadata for those samples
  4. fetch the BIOM table for those samples

Files are written to --dir as samples_<id>.txt, metadata_<id>.tsv and
study_<id>.biom. Use --dry-run to print the commands without running them.`,
	Example: `  redbiomctl workflow study 10317 --dry-run
  redbiomctl workflow study 10317 --dir data/10317 --resolve-ambiguities merge -y`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: study id must be a number, got %q", workflow.ErrInvalidStudy, args[0])
		}
		ctxName := workflowContext
		if ctxName == "" {
			ctxName = envConfig.Redbiom.Context
		}
		plan, err := workflow.PlanStudy(workflow.StudyOptions{
			StudyID:            id,
			Context:            ctxName,
			Dir:                workflowDir,
			ResolveAmbiguities: workflowResolve,
		})
		if err != nil {
			return err
		}

		p := newPrinter()
		p.Heading(fmt.Sprintf("qiita study %d", id))
		p.Dim("%s", qiita.StudyURL(args[0]))
		for i, step := range plan.Steps {
			fmt.Fprintf(p.Out, "%d. %s\n", i+1, step.Name)
			p.Command(step.CommandLine())
		}
		if workflowDryRun {
			return nil
		}
		if !workflowYes {
			ok, err := confirm(fmt.Sprintf("Run these %d steps?", len(plan.Steps)))
			if err != nil {
				return err
			}
			if !ok {
				p.Dim("cancelled")
				return nil
			}
		}

		ctx := cmdContext(cmd)
		store := openHistory(ctx)
		defer closeHistory(store)

		exec := &workflow.Executor{
			Runner:  newRunner(),
			History: store,
			OnStep: func(i int, step workflow.Step, res *workflow.StepResult) {
				switch {
				case res == nil:
					p.Dim("step %d/%d: %s", i+1, len(plan.Steps), step.Name)
				case res.Err != nil:
					p.Error("%s failed", step.Name)
				case step.Kind == workflow.StepVerify:
					p.Success("%d samples found", res.Samples)
				default:
					p.Success("%s (%s)", step.Name, res.Duration.Round(time.Millisecond))
				}
			},
		}
		report, err := exec.Execute(ctx, plan)
		if err != nil {
			return err
		}
		if report.Completed() {
			p.Success("study %d: %d samples written to %s", id, report.Samples, plan.Options.Dir)
		}
		return nil
	},
}

func init() {
	workflowStudyCmd.Flags().StringVar(&workflowDir, "dir", ".", "directory for the output files")
	workflowStudyCmd.Flags().StringVar(&workflowContext, "context", "", "redbiom context (default: configured context)")
	workflowStudyCmd.Flags().StringVar(&workflowResolve, "resolve-ambiguities", "", "none, merge or most-reads")
	workflowStudyCmd.Flags().BoolVar(&workflowDryRun, "dry-run", false, "print the plan without running it")
	workflowStudyCmd.Flags().BoolVarP(&workflowYes, "yes", "y", false, "run without asking for confirmation")
	workflowCmd.AddCommand(workflowStudyCmd)
	rootCmd.AddCommand(workflowCmd)
}
