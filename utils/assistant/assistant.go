// Package assistant turns natural-language questions into validated redbiom
// commands through a language model.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kris-hansen/redbiomctl/utils/config"
	"github.com/kris-hansen/redbiomctl/utils/history"
	"github.com/kris-hansen/redbiomctl/utils/logging"
	"github.com/kris-hansen/redbiomctl/utils/models"
	"github.com/kris-hansen/redbiomctl/utils/validator"
)

// ErrEmptyQuestion is returned by Ask for blank input
var ErrEmptyQuestion = errors.New("question is empty")

// Options configures an Assistant
type Options struct {
	Model       string
	Context     string // redbiom context named in the system prompt
	MaxHistory  int    // question/answer pairs kept for follow-ups
	MaxAttempts int    // generations per question, including corrections
}

// OptionsFrom derives Options from the loaded configuration
func OptionsFrom(cfg *config.EnvConfig) Options {
	return Options{
		Model:       cfg.LLM.Model,
		Context:     cfg.Redbiom.Context,
		MaxHistory:  cfg.LLM.MaxHistory,
		MaxAttempts: cfg.LLM.MaxAttempts,
	}
}

// Proposal is one command extracted from a model answer together with its
// validation report
type Proposal struct {
	Raw    string           `json:"command"`
	Report validator.Report `json:"report"`
}

func (p Proposal) Valid() bool { return p.Report.Valid }

// Answer is the final reply to a question
type Answer struct {
	Question string        `json:"question"`
	Text     string        `json:"text"`
	Commands []Proposal    `json:"commands"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// Valid reports whether every proposed command passed validation
func (a Answer) Valid() bool {
	for _, p := range a.Commands {
		if !p.Valid() {
			return false
		}
	}
	return true
}

// ValidCommands returns the commands that passed validation, in order
func (a Answer) ValidCommands() []string {
	var out []string
	for _, p := range a.Commands {
		if p.Valid() {
			out = append(out, p.Raw)
		}
	}
	return out
}

// Assistant keeps a bounded conversation with the model. It is safe for
// concurrent use; questions are answered one at a time.
type Assistant struct {
	provider models.Provider
	opts     Options
	system   string
	store    history.Store

	mu    sync.Mutex
	turns []models.Message
}

// New renders the system prompt and returns an Assistant
func New(provider models.Provider, opts Options) (*Assistant, error) {
	if provider == nil {
		return nil, fmt.Errorf("assistant needs a model provider")
	}
	if opts.Model == "" {
		opts.Model = config.DefaultModel
	}
	if opts.Context == "" {
		opts.Context = config.DefaultContext
	}
	if opts.MaxHistory < 0 {
		opts.MaxHistory = 0
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = config.DefaultMaxAttempts
	}
	system, err := SystemPrompt(opts.Context)
	if err != nil {
		return nil, err
	}
	return &Assistant{provider: provider, opts: opts, system: system}, nil
}

// SetHistory records every answered question in store
func (a *Assistant) SetHistory(store history.Store) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store = store
}

// Model is the model questions are sent to
func (a *Assistant) Model() string { return a.opts.Model }

// Reset forgets the conversation
func (a *Assistant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turns = nil
}

// Restore replaces the conversation with earlier user/assistant messages,
// keeping the most recent MaxHistory pairs. Other roles are ignored.
func (a *Assistant) Restore(messages []models.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turns = nil
	for i := 0; i+1 < len(messages); i++ {
		if messages[i].Role == models.RoleUser && messages[i+1].Role == models.RoleAssistant {
			a.remember(messages[i].Content, messages[i+1].Content)
			i++
		}
	}
}

// Turns returns the number of remembered question/answer pairs
func (a *Assistant) Turns() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.turns) / 2
}

// Ask answers a question. When the answer contains commands that fail
// validation, the model is asked again with the validation errors, up to
// MaxAttempts generations. The last answer is returned either way; callers
// decide what to do with invalid proposals.
func (a *Assistant) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	conv := models.Conversation{System: a.system}
	conv.Messages = append(conv.Messages, a.turns...)
	conv.Append(models.RoleUser, question)

	answer := Answer{Question: question}
	for attempt := 1; attempt <= a.opts.MaxAttempts; attempt++ {
		raw, err := a.provider.Complete(ctx, a.opts.Model, conv)
		if err != nil {
			return Answer{}, fmt.Errorf("asking %s: %w", a.opts.Model, err)
		}
		answer.Attempts = attempt
		answer.Text = models.CleanResponse(raw)
		answer.Commands = propose(answer.Text)

		if answer.Valid() {
			break
		}
		logging.Warn("model proposed invalid commands", "model", a.opts.Model, "attempt", attempt)
		if attempt < a.opts.MaxAttempts {
			conv.Append(models.RoleAssistant, answer.Text)
			conv.Append(models.RoleUser, correction(answer.Commands))
		}
	}
	answer.Duration = time.Since(start)

	a.remember(question, answer.Text)
	a.record(ctx, answer)
	return answer, nil
}

func propose(text string) []Proposal {
	var out []Proposal
	for _, cmd := range models.ExtractCommands(text) {
		out = append(out, Proposal{Raw: cmd, Report: validator.Validate(cmd)})
	}
	return out
}

// correction is the follow-up prompt listing what was wrong
func correction(proposals []Proposal) string {
	var b strings.Builder
	b.WriteString("Some of the commands you proposed are not valid redbiom commands:\n")
	for _, p := range proposals {
		if p.Valid() {
			continue
		}
		fmt.Fprintf(&b, "\nCommand: %s\n%s\n", p.Raw, p.Report.ErrorSummary())
	}
	b.WriteString("\nPlease answer again in the same format, using only valid commands.")
	return b.String()
}

// remember appends the pair and drops the oldest beyond MaxHistory
func (a *Assistant) remember(question, text string) {
	if a.opts.MaxHistory == 0 {
		return
	}
	a.turns = append(a.turns,
		models.Message{Role: models.RoleUser, Content: question},
		models.Message{Role: models.RoleAssistant, Content: text})
	if max := 2 * a.opts.MaxHistory; len(a.turns) > max {
		a.turns = append([]models.Message(nil), a.turns[len(a.turns)-max:]...)
	}
}

func (a *Assistant) record(ctx context.Context, answer Answer) {
	if a.store == nil {
		return
	}
	entry := &history.Entry{
		Kind:     history.KindAsk,
		Question: answer.Question,
		Command:  strings.Join(answer.ValidCommands(), "\n"),
		Success:  answer.Valid(),
		Duration: answer.Duration,
		Output:   answer.Text,
	}
	if err := a.store.Append(ctx, entry); err != nil {
		logging.Warn("could not record question in history", "err", err)
	}
}
