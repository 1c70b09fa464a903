package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kris-hansen/redbiomctl/utils/agent"
	"github.com/kris-hansen/redbiomctl/utils/assistant"
	"github.com/kris-hansen/redbiomctl/utils/command"
	"github.com/kris-hansen/redbiomctl/utils/history"
	"github.com/kris-hansen/redbiomctl/utils/models"
	"github.com/kris-hansen/redbiomctl/utils/runner"
	"github.com/kris-hansen/redbiomctl/utils/ui"
	"github.com/kris-hansen/redbiomctl/utils/validator"
	"github.com/spf13/cobra"
)

var (
	askModel   string
	askRun     bool
	askYes     bool
	askAgent   bool
	askExecute bool
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Turn a question into validated redbiom commands",
	Long: `Ask a question in plain English. The configured language model proposes
redbiom commands, each of which is validated against the grammar; when a
proposal is invalid the model is asked once more with the problems listed.

With --run, every valid command is shown and run after confirmation.
With --agent, the model builds commands through a tool call instead of
writing them (OpenAI-compatible endpoints only); --execute lets it run them
and read their output before answering.`,
	Example: `  redbiomctl ask "which contexts are available?"
  redbiomctl ask --run "get the samples of Qiita study 10317"
  redbiomctl ask --agent --execute "how many samples mention soil?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		ctx := cmdContext(cmd)
		store := openHistory(ctx)
		defer closeHistory(store)
		p := newPrinter()

		if askAgent {
			return runAgent(ctx, p, store, question)
		}

		a, err := newAssistant(ctx, askModel, store)
		if err != nil {
			return err
		}

		spinner := ui.NewSpinner()
		if !p.Color || askJSON {
			spinner.Disable()
		}
		spinner.Start("Asking " + a.Model())
		answer, err := a.Ask(ctx, question)
		spinner.Stop()
		if err != nil {
			return err
		}

		if askJSON {
			enc := json.NewEncoder(p.Out)
			enc.SetIndent("", "  ")
			return enc.Encode(answer)
		}
		printAnswer(p, answer)

		if !askRun {
			return nil
		}
		return runProposals(ctx, p, store, answer)
	},
}

// printAnswer shows the model's text and the verdict on each proposal
func printAnswer(p *ui.Printer, answer assistant.Answer) {
	fmt.Fprintln(p.Out, strings.TrimSpace(answer.Text))
	if len(answer.Commands) == 0 {
		return
	}
	fmt.Fprintln(p.Out)
	p.Heading("proposed commands")
	for _, prop := range answer.Commands {
		p.Command(prop.Raw)
		if prop.Valid() {
			p.Success("valid")
			continue
		}
		for _, issue := range prop.Report.Errors() {
			p.Error("%s", issue.Message)
			if issue.Fix != "" {
				p.Dim("    fix: %s", issue.Fix)
			}
		}
	}
	if answer.Attempts > 1 {
		p.Dim("answered after %d attempts in %s", answer.Attempts, answer.Duration.Round(time.Millisecond))
	}
}

// runProposals runs each valid proposal in order, stopping at the first failure
func runProposals(ctx context.Context, p *ui.Printer, store history.Store, answer assistant.Answer) error {
	valid := 0
	for _, prop := range answer.Commands {
		if !prop.Valid() {
			p.Warn("skipping invalid command: %s", prop.Raw)
			continue
		}
		valid++
		cmd := command.BuiltCommand{Tokens: prop.Report.Tokens}
		if err := executeCommand(ctx, p, store, cmd, execOptions{NoConfirm: askYes, MaxRows: 50}); err != nil {
			return err
		}
	}
	if valid == 0 {
		p.Warn("no valid command to run")
	}
	return nil
}

// runAgent answers through the tool-calling loop
func runAgent(ctx context.Context, p *ui.Printer, store history.Store, question string) error {
	if askModel != "" {
		envConfig.LLM.Model = askModel
	}
	provider, err := models.NewFromConfig(envConfig)
	if err != nil {
		return err
	}
	client, ok := provider.(*models.OpenAIProvider)
	if !ok {
		return fmt.Errorf("--agent needs an OpenAI-compatible model, %s is served by %s", envConfig.LLM.Model, provider.Name())
	}

	opts := agent.Options{Model: envConfig.LLM.Model, Context: envConfig.Redbiom.Context}
	if askExecute {
		opts.Runner = &validatingRunner{next: newRunner()}
	}
	ag, err := agent.New(client, opts)
	if err != nil {
		return err
	}

	spinner := ui.NewSpinner()
	if !p.Color || askJSON {
		spinner.Disable()
	}
	spinner.Start("Working on it")
	result, err := ag.Run(ctx, question)
	spinner.Stop()
	if err != nil {
		return err
	}

	for _, step := range result.Steps {
		if step.Command == "" {
			continue
		}
		record(ctx, store, &history.Entry{
			Kind:     history.KindBuild,
			Question: question,
			Command:  step.Command,
			Success:  step.Error == "",
			Output:   step.Output,
		})
	}

	if askJSON {
		enc := json.NewEncoder(p.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintln(p.Out, strings.TrimSpace(result.Answer))
	if cmds := result.Commands(); len(cmds) > 0 {
		fmt.Fprintln(p.Out)
		p.Heading("commands built")
		for _, c := range cmds {
			p.Command(c)
		}
	}
	return nil
}

// validatingRunner re-checks built commands before the agent may execute them
type validatingRunner struct {
	next commandRunner
}

func (v *validatingRunner) Run(ctx context.Context, cmd command.BuiltCommand, opts runner.RunOptions) (runner.Result, error) {
	if report := validator.ValidateTokens(cmd.Tokens); !report.Valid {
		return runner.Result{Command: cmd.String()}, fmt.Errorf("%w: %s", runner.ErrRejected, report.ErrorSummary())
	}
	return v.next.Run(ctx, cmd, opts)
}

func init() {
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "model to ask (overrides the configured model)")
	askCmd.Flags().BoolVar(&askRun, "run", false, "run the valid commands after confirmation")
	askCmd.Flags().BoolVarP(&askYes, "yes", "y", false, "run without asking for confirmation")
	askCmd.Flags().BoolVar(&askAgent, "agent", false, "let the model build commands through tool calls")
	askCmd.Flags().BoolVar(&askExecute, "execute", false, "with --agent, allow the model to run what it builds")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the answer as JSON")
	rootCmd.AddCommand(askCmd)
}
