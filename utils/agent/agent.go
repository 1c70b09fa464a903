// Package agent answers questions by letting the model call the command
// builder as a tool, optionally executing what it builds.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kris-hansen/redbiomctl/utils/command"
	"github.com/kris-hansen/redbiomctl/utils/config"
	"github.com/kris-hansen/redbiomctl/utils/logging"
	"github.com/kris-hansen/redbiomctl/utils/models"
	"github.com/kris-hansen/redbiomctl/utils/runner"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultMaxIterations bounds model round trips per question
const DefaultMaxIterations = 5

// maxToolOutput bounds the command output returned to the model
const maxToolOutput = 8 << 10

var ErrMaxIterations = errors.New("agent did not finish within the iteration limit")

// ChatClient sends chat completion requests; *models.OpenAIProvider is one
type ChatClient interface {
	NewRequest(modelName string, conv models.Conversation) openai.ChatCompletionRequest
	ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// CommandRunner executes built commands; *runner.Runner is one
type CommandRunner interface {
	Run(ctx context.Context, cmd command.BuiltCommand, opts runner.RunOptions) (runner.Result, error)
}

// Options configures an Agent
type Options struct {
	Model         string
	Context       string
	MaxIterations int
	// Runner executes commands the model asks to run; nil means build only
	Runner CommandRunner
}

// Step is one tool call made by the model
type Step struct {
	Args     BuildArgs `json:"args"`
	Command  string    `json:"command,omitempty"`
	Executed bool      `json:"executed"`
	Output   string    `json:"output,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Result is the outcome of Run
type Result struct {
	Answer     string `json:"answer"`
	Steps      []Step `json:"steps"`
	Iterations int    `json:"iterations"`
}

// Commands returns every successfully built command
func (r Result) Commands() []string {
	var out []string
	for _, s := range r.Steps {
		if s.Command != "" {
			out = append(out, s.Command)
		}
	}
	return out
}

type Agent struct {
	client ChatClient
	opts   Options
	tool   openai.Tool
}

func New(client ChatClient, opts Options) (*Agent, error) {
	if client == nil {
		return nil, fmt.Errorf("agent needs a chat client")
	}
	if opts.Model == "" {
		opts.Model = config.DefaultModel
	}
	if opts.Context == "" {
		opts.Context = config.DefaultContext
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	tool, err := Tool()
	if err != nil {
		return nil, err
	}
	return &Agent{client: client, opts: opts, tool: tool}, nil
}

func (a *Agent) systemPrompt() string {
	s := "You are a redbiom assistant. Use the " + ToolName + " tool to build every redbiom command; " +
		"never write commands by hand. Use the context " + a.opts.Context + " wherever --context is required."
	if a.opts.Runner != nil {
		s += " Set execute to true when the user needs the command's output."
	}
	return s + " When you have what you need, answer in plain text and list the commands you built."
}

// Run drives the tool loop until the model answers in text
func (a *Agent) Run(ctx context.Context, question string) (Result, error) {
	var res Result
	question = strings.TrimSpace(question)
	if question == "" {
		return res, fmt.Errorf("question is empty")
	}

	conv := models.Conversation{System: a.systemPrompt()}
	conv.Append(models.RoleUser, question)
	req := a.client.NewRequest(a.opts.Model, conv)
	req.Tools = []openai.Tool{a.tool}

	for res.Iterations < a.opts.MaxIterations {
		res.Iterations++
		resp, err := a.client.ChatCompletion(ctx, req)
		if err != nil {
			return res, err
		}
		if len(resp.Choices) == 0 {
			return res, fmt.Errorf("no response choices returned from %s", a.opts.Model)
		}
		msg := resp.Choices[0].Message
		req.Messages = append(req.Messages, msg)

		if len(msg.ToolCalls) == 0 {
			res.Answer = models.CleanResponse(msg.Content)
			return res, nil
		}
		for _, call := range msg.ToolCalls {
			step := a.handle(ctx, call)
			res.Steps = append(res.Steps, step)
			req.Messages = append(req.Messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    step.reply(),
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})
		}
	}
	return res, ErrMaxIterations
}

func (a *Agent) handle(ctx context.Context, call openai.ToolCall) Step {
	var step Step
	if call.Function.Name != ToolName {
		step.Error = fmt.Sprintf("unknown tool %q", call.Function.Name)
		return step
	}
	args, err := parseArgs(call.Function.Arguments)
	step.Args = args
	if err != nil {
		step.Error = err.Error()
		return step
	}
	cmd, err := args.build()
	if err != nil {
		step.Error = err.Error()
		logging.Debug("tool call rejected", "family", args.Family, "action", args.Action, "err", err)
		return step
	}
	step.Command = cmd.String()

	if !args.Execute {
		return step
	}
	if a.opts.Runner == nil {
		step.Error = "execution is disabled; only the command was built"
		return step
	}
	step.Executed = true
	result, err := a.opts.Runner.Run(ctx, cmd, runner.RunOptions{})
	step.Output = result.Stdout
	if err != nil {
		step.Error = err.Error()
	}
	return step
}

// reply is the tool message content sent back to the model
func (s Step) reply() string {
	var b strings.Builder
	if s.Command != "" {
		fmt.Fprintf(&b, "command: %s\n", s.Command)
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", s.Error)
	}
	if s.Executed {
		out := s.Output
		if len(out) > maxToolOutput {
			out = out[:maxToolOutput] + "\n[output truncated]"
		}
		fmt.Fprintf(&b, "output:\n%s\n", out)
	}
	return strings.TrimRight(b.String(), "\n")
}
