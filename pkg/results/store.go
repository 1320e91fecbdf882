// Package results records playback outcomes in a local SQLite database.
package results

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	dataset    TEXT NOT NULL,
	mode       TEXT NOT NULL,
	backend    TEXT NOT NULL,
	started_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS episode_results (
	run_id         INTEGER NOT NULL REFERENCES runs(id),
	episode        TEXT NOT NULL,
	steps          INTEGER NOT NULL,
	divergences    INTEGER NOT NULL,
	max_divergence REAL NOT NULL,
	frames         INTEGER NOT NULL,
	PRIMARY KEY (run_id, episode)
);`

// Run describes one playback invocation.
type Run struct {
	ID        int64
	Dataset   string
	Mode      string
	Backend   string
	StartedAt time.Time
}

// Episode is the outcome of playing back one episode.
type Episode struct {
	Episode       string
	Steps         int
	Divergences   int
	MaxDivergence float64
	Frames        int
}

// Store is an open results database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// BeginRun inserts r and returns it with its ID set.
func (s *Store) BeginRun(ctx context.Context, r Run) (Run, error) {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (dataset, mode, backend, started_at) VALUES (?, ?, ?, ?)`,
		r.Dataset, r.Mode, r.Backend, r.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return Run{}, fmt.Errorf("run id: %w", err)
	}
	return r, nil
}

// RecordEpisode stores or replaces the result of one episode.
func (s *Store) RecordEpisode(ctx context.Context, runID int64, e Episode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO episode_results (run_id, episode, steps, divergences, max_divergence, frames)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, e.Episode, e.Steps, e.Divergences, e.MaxDivergence, e.Frames)
	if err != nil {
		return fmt.Errorf("insert episode %s: %w", e.Episode, err)
	}
	return nil
}

// Episodes returns the results of a run in insertion order.
func (s *Store) Episodes(ctx context.Context, runID int64) ([]Episode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT episode, steps, divergences, max_divergence, frames
		 FROM episode_results WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("select episodes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Episode
	for rows.Next() {
		var e Episode
		if err := rows.Scan(&e.Episode, &e.Steps, &e.Divergences, &e.MaxDivergence, &e.Frames); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
