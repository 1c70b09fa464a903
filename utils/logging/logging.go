// Package logging wraps charmbracelet/log with the process-wide logger used by
// every redbiomctl package.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	clog "github.com/charmbracelet/log"
)

// Config controls the process-wide logger
type Config struct {
	Level string // debug, info, warn, error
	File  string // optional log file; JSON lines when set
}

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stderr, clog.WarnLevel)
	file   *os.File
)

func newLogger(w io.Writer, level clog.Level) *clog.Logger {
	return clog.NewWithOptions(w, clog.Options{
		Level:           level,
		ReportTimestamp: false,
		Prefix:          "redbiomctl",
	})
}

// Init configures the process-wide logger. When a file is configured, entries
// go to that file as JSON with timestamps instead of stderr.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	level := ParseLevel(cfg.Level)
	if cfg.File == "" {
		logger = newLogger(os.Stderr, level)
		return nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		logger = newLogger(os.Stderr, level)
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if file != nil {
		file.Close()
	}
	file = f
	logger = clog.NewWithOptions(f, clog.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339Nano,
	})
	logger.SetFormatter(clog.JSONFormatter)
	logger = logger.With("pid", os.Getpid())
	return nil
}

// Shutdown closes the log file, if any
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	logger = newLogger(os.Stderr, logger.GetLevel())
	return err
}

// ParseLevel converts a level name to a clog.Level, defaulting to warn
func ParseLevel(level string) clog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return clog.DebugLevel
	case "info":
		return clog.InfoLevel
	case "error":
		return clog.ErrorLevel
	default:
		return clog.WarnLevel
	}
}

// SetLevel changes the level of the current logger
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetLevel(ParseLevel(level))
}

// L returns the process-wide logger
func L() *clog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// With returns a child logger carrying the given key-value pairs
func With(keyvals ...interface{}) *clog.Logger {
	return L().With(keyvals...)
}

func Debug(msg interface{}, keyvals ...interface{}) { L().Debug(msg, keyvals...) }
func Info(msg interface{}, keyvals ...interface{})  { L().Info(msg, keyvals...) }
func Warn(msg interface{}, keyvals ...interface{})  { L().Warn(msg, keyvals...) }
func Error(msg interface{}, keyvals ...interface{}) { L().Error(msg, keyvals...) }
