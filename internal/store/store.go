// Package store persists an append-only audit log of generation activity
// in SQLite. A nil *Store is a valid no-op sink so the service can run
// without a database configured.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so lexicographic order matches chronological
// order in SQL.
const timeLayout = "2006-01-02 15:04:05.000000000"

// Event is one row of generation history.
type Event struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Kind         string    `json:"kind"`   // "sync" or "document"
	Source       string    `json:"source"` // endpoint name or uploaded filename
	PassageChars int       `json:"passage_chars"`
	NumBeams     int       `json:"num_beams"`
	PairCount    int       `json:"pair_count"`
	LatencyMS    int64     `json:"latency_ms"`
	OK           bool      `json:"ok"`
	Error        string    `json:"error,omitempty"`
}

// Totals aggregates the full event history.
type Totals struct {
	Events   int64 `json:"events"`
	Pairs    int64 `json:"pairs"`
	Failures int64 `json:"failures"`
}

// Store is the SQLite-backed event log.
type Store struct {
	db *sql.DB
}

// Open connects to the SQLite database at path, applies pragmas, and
// creates the schema if absent.
func Open(path string) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Append writes one event row. A missing ID or CreatedAt is filled in.
func (s *Store) Append(ctx context.Context, ev Event) error {
	if s == nil {
		return nil
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO generation_events
		(id, created_at, kind, source, passage_chars, num_beams, pair_count, latency_ms, ok, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.CreatedAt.UTC().Format(timeLayout), ev.Kind, ev.Source,
		ev.PassageChars, ev.NumBeams, ev.PairCount, ev.LatencyMS, ev.OK, ev.Error)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at, kind, source,
		passage_chars, num_beams, pair_count, latency_ms, ok, error
		FROM generation_events ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var created string
		if err := rows.Scan(&ev.ID, &created, &ev.Kind, &ev.Source,
			&ev.PassageChars, &ev.NumBeams, &ev.PairCount, &ev.LatencyMS, &ev.OK, &ev.Error); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("parse event time: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Totals aggregates counts over the whole history.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	if s == nil {
		return Totals{}, nil
	}

	var t Totals
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(SUM(pair_count), 0),
		COALESCE(SUM(CASE WHEN ok THEN 0 ELSE 1 END), 0)
		FROM generation_events`).Scan(&t.Events, &t.Pairs, &t.Failures)
	if err != nil {
		return Totals{}, fmt.Errorf("aggregate events: %w", err)
	}
	return t, nil
}

// applyPragmas configures SQLite for a small single-writer service.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS generation_events (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		kind TEXT NOT NULL,
		source TEXT NOT NULL,
		passage_chars INTEGER NOT NULL,
		num_beams INTEGER NOT NULL,
		pair_count INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		ok INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_generation_events_created
		ON generation_events (created_at)`)
	return err
}

// ensureDir creates the parent directory of path if it doesn't exist.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}
