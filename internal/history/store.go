// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history persists sequence run results to a local SQLite
// database, so regressions can be compared across runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tombee/roundtrip/pkg/stateful"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	created_at  TIMESTAMP NOT NULL,
	test_name   TEXT NOT NULL,
	passed      INTEGER NOT NULL,
	total_steps INTEGER NOT NULL,
	seed        INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	result      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_runs_test_name ON runs(test_name);
`

// Run is one persisted sequence result summary.
type Run struct {
	ID         string
	CreatedAt  time.Time
	TestName   string
	Passed     bool
	TotalSteps int
	Seed       int64
	DurationMS int64
}

// Store wraps the history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveResult persists one sequence result, returning the run id. The
// full result, transitions included, is stored as JSON alongside the
// indexed summary columns.
func (s *Store) SaveResult(ctx context.Context, result *stateful.Result) (string, error) {
	encoded, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, test_name, passed, total_steps, seed, duration_ms, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC(), result.TestName, boolInt(result.Passed),
		result.TotalSteps, result.Seed, result.DurationMS, string(encoded))
	if err != nil {
		return "", fmt.Errorf("saving run: %w", err)
	}
	return id, nil
}

// ListRuns returns run summaries, newest first, up to limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, test_name, passed, total_steps, seed, duration_ms
		 FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var passed int
		if err := rows.Scan(&run.ID, &run.CreatedAt, &run.TestName, &passed,
			&run.TotalSteps, &run.Seed, &run.DurationMS); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.Passed = passed != 0
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun loads the full stored result for one run id.
func (s *Store) GetRun(ctx context.Context, id string) (*stateful.Result, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM runs WHERE id = ?`, id).Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}

	var result stateful.Result
	if err := json.Unmarshal([]byte(encoded), &result); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", id, err)
	}
	return &result, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
