// Package journal persists session event logs to SQLite so finished orders
// can be reviewed with the history command.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kingrea/reflex-coffee/internal/display"
)

//go:embed schema.sql
var schema string

// Record is one persisted event log entry.
type Record struct {
	SessionID string
	Seq       int
	Type      string
	Message   string
	Time      time.Time
}

// Session summarizes one recorded session.
type Session struct {
	ID      string
	Started time.Time
	Ended   time.Time
	Events  int
}

// Store reads and writes the journal tables.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and its directory) if needed and applies
// the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("journal: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	// One writer keeps appends ordered without busy retries.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: set WAL mode: %w", err)
	}
	store, err := NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an open database and ensures the schema exists.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: database is required")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores entry under sessionID. Re-appending the same entry id is a
// no-op.
func (s *Store) Append(ctx context.Context, sessionID string, entry display.EventLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (session_id, seq, type, message, time) VALUES (?, ?, ?, ?, ?)`,
		sessionID,
		entry.ID,
		entry.Type,
		entry.Message,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	return nil
}

// List returns every entry of a session in append order.
func (s *Store) List(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, seq, type, message, time FROM events WHERE session_id = ? ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Tail returns the last n entries of a session, oldest first.
func (s *Store) Tail(ctx context.Context, sessionID string, n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, seq, type, message, time FROM (
		   SELECT * FROM events WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq ASC`,
		sessionID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: tail: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Sessions lists recorded sessions, most recent first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, MIN(time), MAX(time), COUNT(*) FROM events
		 GROUP BY session_id ORDER BY MIN(time) DESC, session_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("journal: sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			sess         Session
			started, end string
		)
		if err := rows.Scan(&sess.ID, &started, &end, &sess.Events); err != nil {
			return nil, fmt.Errorf("journal: scan session: %w", err)
		}
		if sess.Started, err = parseTime(started); err != nil {
			return nil, err
		}
		if sess.Ended, err = parseTime(end); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			rec Record
			ts  string
		)
		if err := rows.Scan(&rec.SessionID, &rec.Seq, &rec.Type, &rec.Message, &ts); err != nil {
			return nil, fmt.Errorf("journal: scan event: %w", err)
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, err
		}
		rec.Time = t
		records = append(records, rec)
	}
	return records, rows.Err()
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("journal: parse time %q: %w", value, err)
	}
	return t, nil
}
