// Package history records questions, generated commands and executions.
package history

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/kris-hansen/redbiomctl/utils/command"
	"github.com/kris-hansen/redbiomctl/utils/validator"
)

// Entry kinds
const (
	KindAsk      = "ask"
	KindBuild    = "build"
	KindRun      = "run"
	KindWorkflow = "workflow"
)

// MaxOutputBytes bounds the command output kept per entry
const MaxOutputBytes = 16 << 10

// ErrNotFound is returned when no entry matches
var ErrNotFound = errors.New("history entry not found")

// Entry is one recorded interaction
type Entry struct {
	ID          int64         `json:"id"`
	CreatedAt   time.Time     `json:"created_at"`
	Kind        string        `json:"kind"`
	Question    string        `json:"question,omitempty"`
	Command     string        `json:"command,omitempty"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Success     bool          `json:"success"`
	ExitCode    int           `json:"exit_code"`
	Duration    time.Duration `json:"duration"`
	Output      string        `json:"output,omitempty"`
}

// Store persists entries
type Store interface {
	Append(ctx context.Context, e *Entry) error
	Recent(ctx context.Context, n int) ([]Entry, error)
	FindByFingerprint(ctx context.Context, fingerprint string) ([]Entry, error)
	Close() error
}

// Canonical returns the command re-rendered from its tokens, so spacing and
// quoting differences do not change its identity. Untokenizable input is
// returned trimmed.
func Canonical(cmdline string) string {
	tokens, err := validator.Tokenize(cmdline)
	if err != nil {
		return strings.TrimSpace(cmdline)
	}
	return command.Join(tokens)
}

// Fingerprint hashes the canonical form of a command
func Fingerprint(cmdline string) string {
	return strconv.FormatUint(xxhash.Sum64String(Canonical(cmdline)), 16)
}

func (e *Entry) prepare() {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Command != "" && e.Fingerprint == "" {
		e.Fingerprint = Fingerprint(e.Command)
	}
	if len(e.Output) > MaxOutputBytes {
		e.Output = e.Output[:MaxOutputBytes]
	}
}
