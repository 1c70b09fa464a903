package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/kris-hansen/redbiomctl/utils/assistant"
	"github.com/kris-hansen/redbiomctl/utils/command"
	"github.com/kris-hansen/redbiomctl/utils/config"
	"github.com/kris-hansen/redbiomctl/utils/history"
	"github.com/kris-hansen/redbiomctl/utils/logging"
	"github.com/kris-hansen/redbiomctl/utils/ui"
	"github.com/spf13/cobra"
)

var chatModel string

type chatCommand struct {
	Name string
	Help string
}

var chatCommands = []chatCommand{
	{"help", "show this help"},
	{"run", "run the valid commands of the last answer, or only number N: /run [N]"},
	{"reset", "forget the conversation"},
	{"history", "show recently run commands"},
	{"quit", "leave the chat"},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive question and answer session",
	Long: `Start an interactive session with the assistant. Follow-up questions see
the earlier turns. Every proposed command is validated; use /run to execute
the commands of the last answer.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext(cmd)
		store := openHistory(ctx)
		defer closeHistory(store)

		a, err := newAssistant(ctx, chatModel, store)
		if err != nil {
			return err
		}

		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "redbiom❯ ",
			HistoryFile:     filepath.Join(config.ConfigDir(), "chat_history"),
			AutoComplete:    chatCompleter(),
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("failed to initialize readline: %w", err)
		}
		defer rl.Close()

		p := newPrinter()
		p.Out = rl.Stdout()
		s := &chatSession{assistant: a, printer: p, store: store}

		fmt.Fprintf(p.Out, "Model in use: %s\nContext: %s\n", a.Model(), envConfig.Redbiom.Context)
		p.Dim("Type /help for commands, Ctrl+D or /quit to exit")
		fmt.Fprintln(p.Out)

		for {
			line, err := rl.Readline()
			switch classifyReadlineError(line, err) {
			case readlineExit:
				return nil
			case readlineContinue:
				continue
			}
			if err != nil {
				return err
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				if s.handleCommand(ctx, line) {
					return nil
				}
				continue
			}
			s.ask(ctx, line)
			if ctx.Err() != nil {
				return nil
			}
		}
	},
}

type readlineAction int

const (
	readlineContinue readlineAction = iota
	readlineExit
	readlineUnhandled
)

func classifyReadlineError(line string, err error) readlineAction {
	switch {
	case err == nil:
		return readlineUnhandled
	case errors.Is(err, readline.ErrInterrupt):
		return readlineContinue
	case errors.Is(err, io.EOF):
		if strings.TrimSpace(line) == "" {
			return readlineExit
		}
		return readlineContinue
	default:
		return readlineUnhandled
	}
}

func chatCompleter() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, len(chatCommands))
	for i, c := range chatCommands {
		items[i] = readline.PcItem("/" + c.Name)
	}
	return readline.NewPrefixCompleter(items...)
}

type chatSession struct {
	assistant *assistant.Assistant
	printer   *ui.Printer
	store     history.Store
	last      *assistant.Answer
}

func (s *chatSession) ask(ctx context.Context, question string) {
	answer, err := s.assistant.Ask(ctx, question)
	if err != nil {
		s.printer.Error("%v", err)
		return
	}
	s.last = &answer
	printAnswer(s.printer, answer)
	fmt.Fprintln(s.printer.Out)
}

// handleCommand runs a slash command and reports whether the session should end
func (s *chatSession) handleCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return false
	}
	p := s.printer
	switch fields[0] {
	case "quit", "exit":
		return true
	case "help":
		for _, c := range chatCommands {
			fmt.Fprintf(p.Out, "  /%-8s %s\n", c.Name, c.Help)
		}
	case "reset":
		s.assistant.Reset()
		s.last = nil
		p.Success("conversation cleared")
	case "history":
		if s.store == nil {
			p.Warn("history is disabled")
			return false
		}
		entries, err := s.store.Recent(ctx, 10)
		if err != nil {
			p.Error("%v", err)
			return false
		}
		for _, e := range entries {
			p.Dim("%s  %-8s %s", e.CreatedAt.Local().Format("15:04:05"), e.Kind, e.Command)
		}
	case "run":
		s.run(ctx, fields[1:])
	default:
		p.Warn("unknown command /%s, try /help", fields[0])
	}
	return false
}

func (s *chatSession) run(ctx context.Context, args []string) {
	p := s.printer
	if s.last == nil || len(s.last.Commands) == 0 {
		p.Warn("the last answer has no commands")
		return
	}
	answer := *s.last
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > len(answer.Commands) {
			p.Warn("expected a command number between 1 and %d", len(answer.Commands))
			return
		}
		prop := answer.Commands[n-1]
		if !prop.Valid() {
			p.Warn("command %d is invalid: %s", n, prop.Report.ErrorSummary())
			return
		}
		if err := executeCommand(ctx, p, s.store, command.BuiltCommand{Tokens: prop.Report.Tokens}, execOptions{MaxRows: 50}); err != nil {
			p.Error("%v", err)
		}
		return
	}
	if err := runProposals(ctx, p, s.store, answer); err != nil {
		logging.Debug("chat run failed", "err", err)
		p.Error("%v", err)
	}
}

func init() {
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "model to ask (overrides the configured model)")
	rootCmd.AddCommand(chatCmd)
}
