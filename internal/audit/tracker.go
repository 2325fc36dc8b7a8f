// Package audit records per-run metadata so every result table can be
// traced back to the exact parameters and convergence outcome that
// produced it.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tracker writes run records into the store database.
type Tracker struct {
	db *sql.DB
}

// NewTracker creates a tracker over the given store handle.
func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// Run is one pipeline execution's audit record.
type Run struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Params       interface{} // serialized as JSON
	RecordsA     int
	RecordsB     int
	ExactMatches int
	Candidates   int
	EMIterations int
	EMConverged  bool
	Duration     time.Duration
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// RecordRun saves a completed run to the audit trail.
func (t *Tracker) RecordRun(run Run) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to serialize run parameters: %w", err)
	}

	converged := 0
	if run.EMConverged {
		converged = 1
	}

	_, err = t.db.Exec(`
		INSERT OR REPLACE INTO run (
			run_id, started_at, finished_at, params, records_a, records_b,
			exact_matches, candidates, em_iterations, em_converged, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(params),
		run.RecordsA, run.RecordsB,
		run.ExactMatches, run.Candidates,
		run.EMIterations, converged,
		run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}

	return nil
}

// ListRuns returns recorded runs, most recent first.
func (t *Tracker) ListRuns(limit int) ([]Run, error) {
	rows, err := t.db.Query(`
		SELECT run_id, started_at, finished_at, records_a, records_b,
		       exact_matches, candidates, em_iterations, em_converged, duration_ms
		FROM run
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		var converged, durationMS int64
		if err := rows.Scan(&r.RunID, &started, &finished, &r.RecordsA, &r.RecordsB,
			&r.ExactMatches, &r.Candidates, &r.EMIterations, &converged, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		r.EMConverged = converged != 0
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}

	return runs, rows.Err()
}
