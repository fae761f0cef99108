// Package history persists archive run records in SQLite.
//
// Each completed (or failed) archive run becomes one row in archive_runs,
// with per-asset outcomes in archive_run_assets. The store applies its
// own schema on construction; open the database with dbopen and a
// blank-imported driver:
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("history.db")
//	store, err := history.New(db)
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/webarc/collector"
	"github.com/hazyhaar/webarc/dbopen"
	"github.com/hazyhaar/webarc/idgen"
)

// Run is a single recorded archive run.
type Run struct {
	ID          string
	RootURL     string
	Destination string
	Assets      int
	Failures    int
	Duration    time.Duration
	Success     bool
	Error       string
	CreatedAt   int64 // unix seconds
}

// Asset is a per-asset outcome within a run.
type Asset struct {
	RunID    string
	Location string
	Outcome  string
	Size     int
}

// Store reads and writes archive run history.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
}

const schema = `
CREATE TABLE IF NOT EXISTS archive_runs (
    id          TEXT PRIMARY KEY,
    root_url    TEXT NOT NULL,
    destination TEXT NOT NULL DEFAULT '',
    assets      INTEGER NOT NULL DEFAULT 0,
    failures    INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    success     INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archive_runs_created ON archive_runs(created_at DESC);
CREATE TABLE IF NOT EXISTS archive_run_assets (
    run_id   TEXT NOT NULL REFERENCES archive_runs(id) ON DELETE CASCADE,
    location TEXT NOT NULL,
    outcome  TEXT NOT NULL,
    size     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_archive_run_assets_run ON archive_run_assets(run_id);
`

// New creates a Store and applies the schema.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("history: db is required")
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("history: schema: %w", err)
		}
	}
	return &Store{db: db, newID: idgen.Prefixed("run_", idgen.UUIDv7())}, nil
}

// RecordRun inserts a run and its per-asset outcomes in one transaction
// and returns the generated run ID.
func (s *Store) RecordRun(ctx context.Context, run Run, assets []collector.AssetResult) (string, error) {
	id := s.newID()
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().Unix()
	}

	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO archive_runs
				(id, root_url, destination, assets, failures, duration_ms, success, error, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, run.RootURL, run.Destination, run.Assets, run.Failures,
			run.Duration.Milliseconds(), boolInt(run.Success), run.Error, run.CreatedAt)
		if err != nil {
			return fmt.Errorf("history: insert run: %w", err)
		}
		for _, a := range assets {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO archive_run_assets (run_id, location, outcome, size)
				VALUES (?, ?, ?, ?)`,
				id, a.Location, a.Outcome.String(), a.Size)
			if err != nil {
				return fmt.Errorf("history: insert asset: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, root_url, destination, assets, failures, duration_ms, success, error, created_at
		FROM archive_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var durMS int64
		var success int
		if err := rows.Scan(&r.ID, &r.RootURL, &r.Destination, &r.Assets, &r.Failures,
			&durMS, &success, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.Duration = time.Duration(durMS) * time.Millisecond
		r.Success = success != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Assets returns the per-asset outcomes recorded for a run.
func (s *Store) Assets(ctx context.Context, runID string) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, location, outcome, size
		FROM archive_run_assets
		WHERE run_id = ?
		ORDER BY location`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: query assets: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.RunID, &a.Location, &a.Outcome, &a.Size); err != nil {
			return nil, fmt.Errorf("history: scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
