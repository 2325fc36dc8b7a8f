// Package store persists datasets and linkage results in an embedded
// SQLite database, giving each run a durable, queryable home without a
// database server.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/reclink/internal/analyze"
	"github.com/reclink/internal/compare"
	"github.com/reclink/internal/record"
)

// Store wraps the SQLite connection. The handle is exported so packages
// that only read or append (audit trail, results API) can share it.
type Store struct {
	DB *sql.DB
}

// Open opens or creates the store at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}

	// SQLite handles one writer at a time; the pipeline is sequential
	// anyway, so a single connection avoids lock contention entirely.
	db.SetMaxOpenConns(1)

	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) ensureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS run (
			run_id        TEXT PRIMARY KEY,
			started_at    TEXT NOT NULL,
			finished_at   TEXT,
			params        TEXT NOT NULL,
			records_a     INTEGER,
			records_b     INTEGER,
			exact_matches INTEGER,
			candidates    INTEGER,
			em_iterations INTEGER,
			em_converged  INTEGER,
			duration_ms   INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS dataset_record (
			run_id    TEXT NOT NULL,
			dataset   TEXT NOT NULL,
			id        INTEGER NOT NULL,
			firstname TEXT NOT NULL,
			lastname  TEXT NOT NULL,
			birthyear INTEGER NOT NULL,
			zipcode   INTEGER NOT NULL,
			PRIMARY KEY (run_id, dataset, id)
		)`,
		`CREATE TABLE IF NOT EXISTS pair_feature (
			run_id        TEXT NOT NULL,
			id_a          INTEGER NOT NULL,
			id_b          INTEGER NOT NULL,
			firstname_sim REAL NOT NULL,
			lastname_sim  REAL NOT NULL,
			birthyear_sim REAL NOT NULL,
			zipcode_exact REAL NOT NULL,
			PRIMARY KEY (run_id, id_a, id_b)
		)`,
		`CREATE TABLE IF NOT EXISTS pair_posterior (
			run_id    TEXT NOT NULL,
			id_a      INTEGER NOT NULL,
			id_b      INTEGER NOT NULL,
			posterior REAL NOT NULL,
			PRIMARY KEY (run_id, id_a, id_b)
		)`,
		`CREATE TABLE IF NOT EXISTS threshold_count (
			run_id    TEXT NOT NULL,
			threshold REAL NOT NULL,
			matches   INTEGER NOT NULL,
			PRIMARY KEY (run_id, threshold)
		)`,
		`CREATE TABLE IF NOT EXISTS posterior_bin (
			run_id                  TEXT NOT NULL,
			bin                     TEXT NOT NULL,
			pairs                   INTEGER NOT NULL,
			mean_firstname_distance REAL,
			mean_lastname_distance  REAL,
			mean_birthyear_distance REAL,
			PRIMARY KEY (run_id, bin)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.DB.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create store schema: %w", err)
		}
	}
	return nil
}

// SaveDataset persists a dataset under a run.
func (s *Store) SaveDataset(runID string, ds *record.Dataset) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO dataset_record (run_id, dataset, id, firstname, lastname, birthyear, zipcode)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare dataset insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range ds.Records {
		if _, err := stmt.Exec(runID, ds.Name, r.ID, r.FirstName, r.LastName, r.BirthYear, r.ZipCode); err != nil {
			return fmt.Errorf("failed to insert record %d of %s: %w", r.ID, ds.Name, err)
		}
	}

	return tx.Commit()
}

// SaveFeatures persists the comparison vectors for a run.
func (s *Store) SaveFeatures(runID string, vectors []compare.Vector) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO pair_feature (run_id, id_a, id_b, firstname_sim, lastname_sim, birthyear_sim, zipcode_exact)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare feature insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range vectors {
		_, err := stmt.Exec(runID, v.Pair.IDA, v.Pair.IDB,
			v.Features[compare.FeatureFirstName],
			v.Features[compare.FeatureLastName],
			v.Features[compare.FeatureBirthYear],
			v.Features[compare.FeatureZipCode])
		if err != nil {
			return fmt.Errorf("failed to insert feature row (%d,%d): %w", v.Pair.IDA, v.Pair.IDB, err)
		}
	}

	return tx.Commit()
}

// SavePosteriors persists the scored pairs for a run.
func (s *Store) SavePosteriors(runID string, scored []analyze.ScoredPair) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO pair_posterior (run_id, id_a, id_b, posterior)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare posterior insert: %w", err)
	}
	defer stmt.Close()

	for _, sp := range scored {
		if _, err := stmt.Exec(runID, sp.Pair.IDA, sp.Pair.IDB, sp.Posterior); err != nil {
			return fmt.Errorf("failed to insert posterior row (%d,%d): %w", sp.Pair.IDA, sp.Pair.IDB, err)
		}
	}

	return tx.Commit()
}

// SaveThresholdCounts persists the threshold sweep for a run.
func (s *Store) SaveThresholdCounts(runID string, counts []analyze.ThresholdCount) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO threshold_count (run_id, threshold, matches)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare threshold insert: %w", err)
	}
	defer stmt.Close()

	for _, tc := range counts {
		if _, err := stmt.Exec(runID, tc.Threshold, tc.Matches); err != nil {
			return fmt.Errorf("failed to insert threshold row %.4f: %w", tc.Threshold, err)
		}
	}

	return tx.Commit()
}

// SavePosteriorBins persists the bin diagnostics for a run. NaN means are
// stored as NULL.
func (s *Store) SavePosteriorBins(runID string, bins []analyze.BinDiagnostic) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO posterior_bin (run_id, bin, pairs, mean_firstname_distance, mean_lastname_distance, mean_birthyear_distance)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare bin insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bins {
		_, err := stmt.Exec(runID, b.Label, b.Pairs,
			nullableFloat(b.MeanFirstNameDist),
			nullableFloat(b.MeanLastNameDist),
			nullableFloat(b.MeanBirthYearDist))
		if err != nil {
			return fmt.Errorf("failed to insert bin row %s: %w", b.Label, err)
		}
	}

	return tx.Commit()
}

// nullableFloat maps NaN to SQL NULL.
func nullableFloat(v float64) interface{} {
	if v != v {
		return nil
	}
	return v
}
