package export

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"github.com/reclink/internal/analyze"
	"github.com/reclink/internal/compare"
	"github.com/reclink/internal/record"
)

// PostgresExporter bulk-loads result tables into a Postgres database so
// they can be joined and inspected with plain SQL.
type PostgresExporter struct {
	db *sql.DB
}

// NewPostgresExporter connects using the PG* environment variables, the
// same surface the standard Postgres client tools read.
func NewPostgresExporter() (*PostgresExporter, error) {
	host := getEnvOrDefault("PGHOST", "localhost")
	port := getEnvOrDefault("PGPORT", "5432")
	user := getEnvOrDefault("PGUSER", "postgres")
	password := getEnvOrDefault("PGPASSWORD", "")
	dbname := getEnvOrDefault("PGDATABASE", "linkage")

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresExporter{db: db}, nil
}

// Close closes the database connection.
func (e *PostgresExporter) Close() error {
	return e.db.Close()
}

// ExportRun loads both datasets and every result table for a run. Existing
// rows are replaced wholesale: result tables are derived artifacts, so a
// re-export is a full refresh, never a merge.
func (e *PostgresExporter) ExportRun(a, b *record.Dataset, vectors []compare.Vector, scored []analyze.ScoredPair) error {
	if err := e.ensureSchema(); err != nil {
		return err
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"pair_posterior", "pair_feature", "dataset_record"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	recStmt, err := tx.Prepare(`
		INSERT INTO dataset_record (dataset, id, firstname, lastname, birthyear, zipcode)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer recStmt.Close()

	for _, ds := range []*record.Dataset{a, b} {
		for _, r := range ds.Records {
			if _, err := recStmt.Exec(ds.Name, r.ID, r.FirstName, r.LastName, r.BirthYear, r.ZipCode); err != nil {
				return fmt.Errorf("failed to insert record %d of %s: %w", r.ID, ds.Name, err)
			}
		}
	}

	featStmt, err := tx.Prepare(`
		INSERT INTO pair_feature (id_a, id_b, firstname_sim, lastname_sim, birthyear_sim, zipcode_exact)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare feature insert: %w", err)
	}
	defer featStmt.Close()

	for _, v := range vectors {
		_, err := featStmt.Exec(v.Pair.IDA, v.Pair.IDB,
			v.Features[compare.FeatureFirstName],
			v.Features[compare.FeatureLastName],
			v.Features[compare.FeatureBirthYear],
			v.Features[compare.FeatureZipCode])
		if err != nil {
			return fmt.Errorf("failed to insert feature row (%d,%d): %w", v.Pair.IDA, v.Pair.IDB, err)
		}
	}

	postStmt, err := tx.Prepare(`
		INSERT INTO pair_posterior (id_a, id_b, posterior)
		VALUES ($1, $2, $3)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare posterior insert: %w", err)
	}
	defer postStmt.Close()

	for _, sp := range scored {
		if _, err := postStmt.Exec(sp.Pair.IDA, sp.Pair.IDB, sp.Posterior); err != nil {
			return fmt.Errorf("failed to insert posterior row (%d,%d): %w", sp.Pair.IDA, sp.Pair.IDB, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit export: %w", err)
	}

	return nil
}

// ensureSchema creates the result tables if they do not exist.
func (e *PostgresExporter) ensureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS dataset_record (
			dataset    TEXT NOT NULL,
			id         BIGINT NOT NULL,
			firstname  TEXT NOT NULL,
			lastname   TEXT NOT NULL,
			birthyear  INTEGER NOT NULL,
			zipcode    INTEGER NOT NULL,
			PRIMARY KEY (dataset, id)
		)`,
		`CREATE TABLE IF NOT EXISTS pair_feature (
			id_a          BIGINT NOT NULL,
			id_b          BIGINT NOT NULL,
			firstname_sim DOUBLE PRECISION NOT NULL,
			lastname_sim  DOUBLE PRECISION NOT NULL,
			birthyear_sim DOUBLE PRECISION NOT NULL,
			zipcode_exact DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (id_a, id_b)
		)`,
		`CREATE TABLE IF NOT EXISTS pair_posterior (
			id_a      BIGINT NOT NULL,
			id_b      BIGINT NOT NULL,
			posterior DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (id_a, id_b)
		)`,
	}

	for _, stmt := range statements {
		if _, err := e.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// getEnvOrDefault returns environment variable or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
