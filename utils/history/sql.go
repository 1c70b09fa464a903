package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kris-hansen/redbiomctl/utils/config"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at  TEXT    NOT NULL,
	kind        TEXT    NOT NULL,
	question    TEXT    NOT NULL DEFAULT '',
	command     TEXT    NOT NULL DEFAULT '',
	fingerprint TEXT    NOT NULL DEFAULT '',
	success     INTEGER NOT NULL DEFAULT 0,
	exit_code   INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	output      TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_history_fingerprint ON history(fingerprint);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS history (
	id          BIGSERIAL PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL,
	kind        TEXT    NOT NULL,
	question    TEXT    NOT NULL DEFAULT '',
	command     TEXT    NOT NULL DEFAULT '',
	fingerprint TEXT    NOT NULL DEFAULT '',
	success     BOOLEAN NOT NULL DEFAULT FALSE,
	exit_code   INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT  NOT NULL DEFAULT 0,
	output      TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_history_fingerprint ON history(fingerprint);
`

const columns = "id, created_at, kind, question, command, fingerprint, success, exit_code, duration_ms, output"

// SQLStore implements Store on SQLite or PostgreSQL
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

// OpenSQLite opens (creating if needed) a SQLite history database at path
func OpenSQLite(path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite history: db path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite history: create db directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite history: open db: %w", err)
	}
	// one writer avoids SQLITE_BUSY between goroutines of the API server
	db.SetMaxOpenConns(1)

	s := &SQLStore{db: db}
	if err := s.init("PRAGMA busy_timeout = 5000", sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects to PostgreSQL with dsn and creates the table if needed
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres history: open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres history: connect: %w", err)
	}
	s := &SQLStore{db: db, postgres: true}
	if err := s.init(postgresSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Open returns the store selected by cfg, or nil when history is disabled
func Open(ctx context.Context, cfg *config.EnvConfig) (Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	if cfg.History.Driver == "postgres" {
		s, err := OpenPostgres(ctx, cfg.History.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := OpenSQLite(cfg.HistoryPath())
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init(statements ...string) error {
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("history: create schema: %w", err)
		}
	}
	return nil
}

// rebind converts ? placeholders to $n for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) timeArg(t time.Time) interface{} {
	if s.postgres {
		return t
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Append stores e and sets its ID
func (s *SQLStore) Append(ctx context.Context, e *Entry) error {
	e.prepare()
	args := []interface{}{
		s.timeArg(e.CreatedAt), e.Kind, e.Question, e.Command, e.Fingerprint,
		e.Success, e.ExitCode, e.Duration.Milliseconds(), e.Output,
	}
	query := s.rebind(`INSERT INTO history (created_at, kind, question, command, fingerprint, success, exit_code, duration_ms, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	if s.postgres {
		if err := s.db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&e.ID); err != nil {
			return fmt.Errorf("history: append: %w", err)
		}
		return nil
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

// Recent returns up to n entries, newest first
func (s *SQLStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	return s.query(ctx, s.rebind("SELECT "+columns+" FROM history ORDER BY id DESC LIMIT ?"), n)
}

// FindByFingerprint returns every entry for the same canonical command, newest first
func (s *SQLStore) FindByFingerprint(ctx context.Context, fingerprint string) ([]Entry, error) {
	entries, err := s.query(ctx, s.rebind("SELECT "+columns+" FROM history WHERE fingerprint = ? ORDER BY id DESC"), fingerprint)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries, nil
}

func (s *SQLStore) query(ctx context.Context, query string, args ...interface{}) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			durationMS int64
			created    interface{}
		)
		if err := rows.Scan(&e.ID, &created, &e.Kind, &e.Question, &e.Command, &e.Fingerprint,
			&e.Success, &e.ExitCode, &durationMS, &e.Output); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.CreatedAt = parseTime(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func parseTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, _ := time.Parse(time.RFC3339Nano, t)
		return parsed
	case []byte:
		parsed, _ := time.Parse(time.RFC3339Nano, string(t))
		return parsed
	}
	return time.Time{}
}

// Close closes the database
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
