// Package history keeps a local record of probe results in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultLimit is the number of probes List returns when limit <= 0.
const DefaultLimit = 20

// Probe is one recorded query outcome.
type Probe struct {
	ID        string    `json:"id" yaml:"id"`
	Method    string    `json:"method" yaml:"method"`
	URL       string    `json:"url" yaml:"url"`
	HTTPCode  int       `json:"http_code" yaml:"http_code"`
	TotalTime float64   `json:"total_time" yaml:"total_time"`
	Err       string    `json:"err,omitempty" yaml:"err,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Store is a SQLite-backed probe history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path. Use
// ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS probes (
			id          TEXT PRIMARY KEY,
			method      TEXT NOT NULL,
			url         TEXT NOT NULL,
			http_code   INTEGER NOT NULL DEFAULT 0,
			total_time  REAL NOT NULL DEFAULT 0,
			err         TEXT NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL -- unix nanoseconds, sorts in time order
		);
		CREATE INDEX IF NOT EXISTS idx_probes_url ON probes(url, created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Save inserts p, assigning an ID and creation time when missing.
func (s *Store) Save(ctx context.Context, p *Probe) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO probes (id, method, url, http_code, total_time, err, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Method, p.URL, p.HTTPCode, p.TotalTime, p.Err,
		p.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("history: save probe: %w", err)
	}
	return nil
}

// List returns the newest probes first. An empty url lists every URL.
func (s *Store) List(ctx context.Context, url string, limit int) ([]Probe, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `SELECT id, method, url, http_code, total_time, err, created_at FROM probes`
	args := []any{}
	if url != "" {
		query += ` WHERE url = ?`
		args = append(args, url)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list probes: %w", err)
	}
	defer rows.Close()

	var probes []Probe
	for rows.Next() {
		var (
			p         Probe
			createdAt int64
		)
		if err := rows.Scan(&p.ID, &p.Method, &p.URL, &p.HTTPCode, &p.TotalTime, &p.Err, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scan probe: %w", err)
		}
		p.CreatedAt = time.Unix(0, createdAt).UTC()
		probes = append(probes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate probes: %w", err)
	}

	return probes, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
