package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kris-hansen/redbiomctl/utils/assistant"
	"github.com/kris-hansen/redbiomctl/utils/command"
	"github.com/kris-hansen/redbiomctl/utils/grammar"
	"github.com/kris-hansen/redbiomctl/utils/history"
	"github.com/kris-hansen/redbiomctl/utils/runner"
	"github.com/kris-hansen/redbiomctl/utils/validator"
)

// maxRunTimeout caps the per-request timeout a client may ask for
const maxRunTimeout = 30 * time.Minute

type flagJSON struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Choices    []string `json:"choices,omitempty"`
	Min        *int     `json:"min,omitempty"`
	Default    string   `json:"default,omitempty"`
	Repeatable bool     `json:"repeatable,omitempty"`
	Help       string   `json:"help,omitempty"`
}

type operationJSON struct {
	Key        string     `json:"key"`
	Family     string     `json:"family"`
	Action     string     `json:"action"`
	Summary    string     `json:"summary"`
	Usage      string     `json:"usage"`
	Required   []flagJSON `json:"required"`
	Optional   []flagJSON `json:"optional"`
	Leading    []string   `json:"leading,omitempty"`
	Positional string     `json:"positional"`
	Name       string     `json:"positional_name,omitempty"`
}

func toFlags(in []grammar.FlagSpec) []flagJSON {
	out := make([]flagJSON, 0, len(in))
	for _, f := range in {
		out = append(out, flagJSON{
			Name: f.Name, Kind: f.Kind.String(), Choices: f.Choices, Min: f.Min,
			Default: f.Default, Repeatable: f.Repeatable, Help: f.Help,
		})
	}
	return out
}

func toOperation(op grammar.OperationSpec) operationJSON {
	o := operationJSON{
		Key: op.Key(), Family: string(op.Family), Action: op.Action, Summary: op.Summary, Usage: op.Usage(),
		Required: toFlags(op.Required), Optional: toFlags(op.Optional),
		Positional: op.Positional.String(), Name: op.PositionalName,
	}
	for _, p := range op.Leading {
		o.Leading = append(o.Leading, p.Name)
	}
	return o
}

type issueJSON struct {
	Rule     string `json:"rule"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

type reportJSON struct {
	Command   string      `json:"command"`
	Valid     bool        `json:"valid"`
	Operation string      `json:"operation,omitempty"`
	Tokens    []string    `json:"tokens,omitempty"`
	Issues    []issueJSON `json:"issues"`
	Fixes     []string    `json:"fixes,omitempty"`
}

func toReport(r validator.Report) reportJSON {
	out := reportJSON{Command: r.Command, Valid: r.Valid, Tokens: r.Tokens, Fixes: r.Fixes, Issues: []issueJSON{}}
	if r.Operation != nil {
		out.Operation = r.Operation.Key()
	}
	for _, i := range r.Issues {
		out.Issues = append(out.Issues, issueJSON{
			Rule: i.Rule, Category: string(i.Category), Severity: string(i.Severity), Message: i.Message, Fix: i.Fix,
		})
	}
	return out
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"version":     s.opts.Version,
		"program":     s.envConfig.Redbiom.Program,
		"context":     s.envConfig.Redbiom.Context,
		"run_enabled": s.config.RunEnabled,
		"assistant":   s.opts.Assistant != nil,
	})
}

func (s *Server) handleGrammar(c *gin.Context) {
	ops := grammar.All()
	out := make([]operationJSON, 0, len(ops))
	for _, op := range ops {
		out = append(out, toOperation(op))
	}
	c.JSON(http.StatusOK, gin.H{"program": grammar.Program, "operations": out})
}

// BuildRequest is the body of POST /v1/build
type BuildRequest struct {
	Family string                 `json:"family" binding:"required"`
	Action string                 `json:"action" binding:"required"`
	Params map[string]interface{} `json:"params"`
}

func (s *Server) handleBuild(c *gin.Context) {
	var req BuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	cmd, err := command.Build(req.Family, req.Action, command.ParameterSet(req.Params))
	if err != nil {
		body := gin.H{"error": err.Error()}
		var missing *command.MissingRequiredFlagError
		var bad *command.InvalidFlagValueError
		switch {
		case errors.Is(err, command.ErrUnknownOperation):
			c.JSON(http.StatusNotFound, body)
		case errors.As(err, &missing):
			body["flag"] = missing.Flag
			c.JSON(http.StatusUnprocessableEntity, body)
		case errors.As(err, &bad):
			body["flag"] = bad.Flag
			c.JSON(http.StatusUnprocessableEntity, body)
		default:
			c.JSON(http.StatusBadRequest, body)
		}
		return
	}

	s.record(c.Request.Context(), &history.Entry{Kind: history.KindBuild, Command: cmd.String(), Success: true})
	c.JSON(http.StatusOK, gin.H{"command": cmd.String(), "tokens": cmd.Tokens, "operation": cmd.Operation()})
}

// ValidateRequest is the body of POST /v1/validate
type ValidateRequest struct {
	Command string `json:"command" binding:"required"`
}

func (s *Server) handleValidate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, toReport(validator.Validate(req.Command)))
}

// RunRequest is the body of POST /v1/run
type RunRequest struct {
	Command        string   `json:"command" binding:"required"`
	Stdin          []string `json:"stdin"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

func (s *Server) handleRun(c *gin.Context) {
	if s.opts.Runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no runner configured"})
		return
	}
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	report := validator.Validate(req.Command)
	if !report.Valid {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "command failed validation", "report": toReport(report)})
		return
	}

	opts := runner.RunOptions{Stdin: req.Stdin}
	if req.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
		if opts.Timeout > maxRunTimeout {
			opts.Timeout = maxRunTimeout
		}
	}

	cmd := command.BuiltCommand{Tokens: report.Tokens}
	res, err := s.opts.Runner.Run(c.Request.Context(), cmd, opts)
	s.record(c.Request.Context(), &history.Entry{
		Kind: history.KindRun, Command: cmd.String(), Success: err == nil && res.Success,
		ExitCode: res.ExitCode, Duration: res.Duration, Output: res.Stdout,
	})

	body := gin.H{
		"command":   cmd.String(),
		"success":   res.Success,
		"stdout":    res.Stdout,
		"stderr":    res.Stderr,
		"exit_code": res.ExitCode,
		"duration":  res.Duration.String(),
		"timed_out": res.TimedOut,
	}
	var exitErr *runner.ExitError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, body)
	case errors.As(err, &exitErr):
		// the command ran; its failure is reported in the body
		c.JSON(http.StatusOK, body)
	case errors.Is(err, runner.ErrTimeout):
		body["error"] = err.Error()
		c.JSON(http.StatusGatewayTimeout, body)
	case errors.Is(err, runner.ErrProgramNotFound):
		body["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, body)
	default:
		body["error"] = err.Error()
		c.JSON(http.StatusInternalServerError, body)
	}
}

// AskRequest is the body of POST /v1/ask
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

type proposalJSON struct {
	Command string     `json:"command"`
	Valid   bool       `json:"valid"`
	Report  reportJSON `json:"report"`
}

func toAnswer(a assistant.Answer) gin.H {
	proposals := make([]proposalJSON, 0, len(a.Commands))
	for _, p := range a.Commands {
		proposals = append(proposals, proposalJSON{Command: p.Raw, Valid: p.Valid(), Report: toReport(p.Report)})
	}
	return gin.H{
		"question": a.Question,
		"answer":   a.Text,
		"commands": proposals,
		"valid":    a.Valid(),
		"attempts": a.Attempts,
		"duration": a.Duration.String(),
	}
}

func (s *Server) handleAsk(c *gin.Context) {
	if s.opts.Assistant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "assistant is not configured"})
		return
	}
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}
	a, err := s.opts.Assistant()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	answer, err := a.Ask(c.Request.Context(), req.Question)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toAnswer(answer))
}
