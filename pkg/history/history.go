// Package history records how the objective of each planning run improves
// over time.
//
// Points are stored in a local SQLite database (modernc.org/sqlite, no cgo)
// shared by all runs. The CLI's history command reads them back as a
// score-over-time table.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/matzehuels/factorygrid/pkg/decode"
)

// FileName is the database file name inside the data directory.
const FileName = "history.sqlite"

// Point is one improving solution of a run.
type Point struct {
	Index     int
	Objective int64
	Elapsed   time.Duration
	At        time.Time
}

// RunInfo summarizes the points of one run.
type RunInfo struct {
	ID      string
	Name    string
	Started time.Time
	Points  int
	Best    int64
}

// DB is the history database.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS points (
			run_id TEXT NOT NULL REFERENCES runs(id),
			idx INTEGER NOT NULL,
			objective INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (run_id, idx)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (h *DB) Close() error { return h.db.Close() }

// StartRun registers a run so its points can be listed by name.
func (h *DB) StartRun(ctx context.Context, id, name string, started time.Time) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, name, started_at) VALUES (?, ?, ?)`,
		id, name, started.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Record stores one point of a run.
func (h *DB) Record(ctx context.Context, runID string, p Point) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO points (run_id, idx, objective, elapsed_ms, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		runID, p.Index, p.Objective, p.Elapsed.Milliseconds(), p.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert point: %w", err)
	}
	return nil
}

// Sink returns a decode.Sink that records every snapshot under runID.
func (h *DB) Sink(runID string) decode.Sink {
	return decode.SinkFunc(func(s *decode.Snapshot) error {
		return h.Record(context.Background(), runID, Point{
			Index:     s.Index,
			Objective: s.Objective,
			Elapsed:   s.Elapsed,
			At:        s.Time,
		})
	})
}

// Points returns the points of a run in solution order.
func (h *DB) Points(ctx context.Context, runID string) ([]Point, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT idx, objective, elapsed_ms, recorded_at FROM points WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var (
			p       Point
			elapsed int64
			at      string
		)
		if err := rows.Scan(&p.Index, &p.Objective, &elapsed, &at); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		p.Elapsed = time.Duration(elapsed) * time.Millisecond
		p.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Runs lists recorded runs, newest first, limited to limit rows when
// limit is positive.
func (h *DB) Runs(ctx context.Context, limit int) ([]RunInfo, error) {
	q := `SELECT r.id, r.name, r.started_at, COUNT(p.idx), COALESCE(MIN(p.objective), 0)
		FROM runs r LEFT JOIN points p ON p.run_id = r.id
		GROUP BY r.id ORDER BY r.started_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var (
			r       RunInfo
			started string
		)
		if err := rows.Scan(&r.ID, &r.Name, &started, &r.Points, &r.Best); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Started, _ = time.Parse(time.RFC3339Nano, started)
		out = append(out, r)
	}
	return out, rows.Err()
}
