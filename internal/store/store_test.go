package store

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/reclink/internal/analyze"
	"github.com/reclink/internal/audit"
	"github.com/reclink/internal/block"
	"github.com/reclink/internal/compare"
	"github.com/reclink/internal/record"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "linkage.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndQueryResults(t *testing.T) {
	s := openTestStore(t)
	runID := audit.NewRunID()

	ds := &record.Dataset{Name: "a", Records: []record.Record{
		{ID: 1, FirstName: "John", LastName: "Smith", BirthYear: 1985, ZipCode: 12345},
		{ID: 2, FirstName: "Jane", LastName: "Jones", BirthYear: 1990, ZipCode: 12345},
	}}
	if err := s.SaveDataset(runID, ds); err != nil {
		t.Fatalf("SaveDataset failed: %v", err)
	}

	v := compare.Vector{Pair: block.Pair{IDA: 1, IDB: 1}}
	v.Features = [compare.FeatureCount]float64{1, 1, 1, 1}
	if err := s.SaveFeatures(runID, []compare.Vector{v}); err != nil {
		t.Fatalf("SaveFeatures failed: %v", err)
	}

	scored := []analyze.ScoredPair{{Pair: block.Pair{IDA: 1, IDB: 1}, Posterior: 0.99}}
	if err := s.SavePosteriors(runID, scored); err != nil {
		t.Fatalf("SavePosteriors failed: %v", err)
	}

	var count int
	if err := s.DB.QueryRow(`SELECT COUNT(*) FROM dataset_record WHERE run_id = ?`, runID).Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 2 {
		t.Errorf("dataset_record rows = %d, want 2", count)
	}

	var posterior float64
	err := s.DB.QueryRow(`SELECT posterior FROM pair_posterior WHERE run_id = ? AND id_a = 1 AND id_b = 1`, runID).Scan(&posterior)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if posterior != 0.99 {
		t.Errorf("posterior = %v, want 0.99", posterior)
	}
}

func TestSavePosteriorBinsNullMeans(t *testing.T) {
	s := openTestStore(t)
	runID := audit.NewRunID()

	bins := []analyze.BinDiagnostic{
		{Label: "0.0-0.1", Pairs: 0, MeanFirstNameDist: math.NaN(), MeanLastNameDist: math.NaN(), MeanBirthYearDist: math.NaN()},
		{Label: "0.9-1.0", Pairs: 2, MeanFirstNameDist: 0.5, MeanLastNameDist: 0.0, MeanBirthYearDist: 1.0},
	}
	if err := s.SavePosteriorBins(runID, bins); err != nil {
		t.Fatalf("SavePosteriorBins failed: %v", err)
	}

	var mean *float64
	err := s.DB.QueryRow(`SELECT mean_firstname_distance FROM posterior_bin WHERE run_id = ? AND bin = '0.0-0.1'`, runID).Scan(&mean)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if mean != nil {
		t.Errorf("empty bin mean stored as %v, want NULL", *mean)
	}
}

func TestAuditRoundTrip(t *testing.T) {
	s := openTestStore(t)
	tracker := audit.NewTracker(s.DB)

	run := audit.Run{
		RunID:        audit.NewRunID(),
		StartedAt:    time.Now().Add(-time.Minute),
		FinishedAt:   time.Now(),
		Params:       map[string]int{"size": 1000},
		RecordsA:     1000,
		RecordsB:     1000,
		ExactMatches: 420,
		Candidates:   1100,
		EMIterations: 17,
		EMConverged:  true,
		Duration:     3 * time.Second,
	}
	if err := tracker.RecordRun(run); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	runs, err := tracker.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}

	got := runs[0]
	if got.RunID != run.RunID {
		t.Errorf("run id = %q, want %q", got.RunID, run.RunID)
	}
	if got.ExactMatches != 420 || got.Candidates != 1100 {
		t.Errorf("counts = %d/%d, want 420/1100", got.ExactMatches, got.Candidates)
	}
	if !got.EMConverged {
		t.Error("convergence flag lost")
	}
	if got.Duration != 3*time.Second {
		t.Errorf("duration = %v, want 3s", got.Duration)
	}
}

func TestSaveThresholdCounts(t *testing.T) {
	s := openTestStore(t)
	runID := audit.NewRunID()

	counts := []analyze.ThresholdCount{
		{Threshold: 0.0, Matches: 5},
		{Threshold: 0.5, Matches: 2},
	}
	if err := s.SaveThresholdCounts(runID, counts); err != nil {
		t.Fatalf("SaveThresholdCounts failed: %v", err)
	}

	var matches int
	err := s.DB.QueryRow(`SELECT matches FROM threshold_count WHERE run_id = ? AND threshold = 0.5`, runID).Scan(&matches)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if matches != 2 {
		t.Errorf("matches = %d, want 2", matches)
	}
}
