package export

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reclink/internal/analyze"
	"github.com/reclink/internal/block"
	"github.com/reclink/internal/compare"
	"github.com/reclink/internal/record"
)

func TestPosteriorsRoundTrip(t *testing.T) {
	dir := t.TempDir()

	scored := []analyze.ScoredPair{
		{Pair: block.Pair{IDA: 1, IDB: 1}, Posterior: 0.987654},
		{Pair: block.Pair{IDA: 2, IDB: 5}, Posterior: 0.000123},
	}

	if err := WritePosteriors(dir, scored); err != nil {
		t.Fatalf("WritePosteriors failed: %v", err)
	}

	loaded, err := ReadPosteriors(filepath.Join(dir, PosteriorsFile))
	if err != nil {
		t.Fatalf("ReadPosteriors failed: %v", err)
	}

	if len(loaded) != len(scored) {
		t.Fatalf("got %d pairs, want %d", len(loaded), len(scored))
	}
	for i := range scored {
		if loaded[i].Pair != scored[i].Pair {
			t.Errorf("pair %d = %+v, want %+v", i, loaded[i].Pair, scored[i].Pair)
		}
		if math.Abs(loaded[i].Posterior-scored[i].Posterior) > 1e-6 {
			t.Errorf("posterior %d = %v, want %v", i, loaded[i].Posterior, scored[i].Posterior)
		}
	}
}

func TestFeaturesRoundTrip(t *testing.T) {
	dir := t.TempDir()

	v := compare.Vector{Pair: block.Pair{IDA: 3, IDB: 9}}
	v.Features = [compare.FeatureCount]float64{0.5, 0.25, 1.0, 0.0}

	if err := WriteFeatures(dir, []compare.Vector{v}); err != nil {
		t.Fatalf("WriteFeatures failed: %v", err)
	}

	loaded, err := ReadFeatures(filepath.Join(dir, FeaturesFile))
	if err != nil {
		t.Fatalf("ReadFeatures failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("got %d vectors, want 1", len(loaded))
	}
	if loaded[0].Pair != v.Pair {
		t.Errorf("pair = %+v, want %+v", loaded[0].Pair, v.Pair)
	}
	for i := range v.Features {
		if math.Abs(loaded[0].Features[i]-v.Features[i]) > 1e-6 {
			t.Errorf("feature %d = %v, want %v", i, loaded[0].Features[i], v.Features[i])
		}
	}
}

func TestWritePosteriorBinsNASentinel(t *testing.T) {
	dir := t.TempDir()

	bins := []analyze.BinDiagnostic{
		{Label: "0.0-0.1", Pairs: 0, MeanFirstNameDist: math.NaN(), MeanLastNameDist: math.NaN(), MeanBirthYearDist: math.NaN()},
		{Label: "0.9-1.0", Pairs: 3, MeanFirstNameDist: 0.5, MeanLastNameDist: 0.25, MeanBirthYearDist: 0.1},
	}

	if err := WritePosteriorBins(dir, bins); err != nil {
		t.Fatalf("WritePosteriorBins failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, PosteriorBinsFile))
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	if !strings.Contains(content, "0.0-0.1,0,NA,NA,NA") {
		t.Errorf("empty bin not rendered with NA sentinel:\n%s", content)
	}
	if strings.Contains(content, "NaN") {
		t.Errorf("NaN leaked into output:\n%s", content)
	}
}

func TestWriteExactMatches(t *testing.T) {
	dir := t.TempDir()

	a := &record.Dataset{Name: "a", Records: []record.Record{
		{ID: 1, FirstName: "John", LastName: "Smith", BirthYear: 1985, ZipCode: 12345},
	}}
	pairs := []block.Pair{{IDA: 1, IDB: 1}}

	if err := WriteExactMatches(dir, pairs, a); err != nil {
		t.Fatalf("WriteExactMatches failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ExactMatchesFile))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header plus one row", len(lines))
	}
	if lines[0] != "id_a,id_b,firstname,lastname,birthyear,zipcode" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "1,1,John,Smith,1985,12345" {
		t.Errorf("unexpected row %q", lines[1])
	}
}

func TestWriteThresholdCounts(t *testing.T) {
	dir := t.TempDir()

	counts := []analyze.ThresholdCount{
		{Threshold: 0.0, Matches: 10},
		{Threshold: 0.5, Matches: 4},
		{Threshold: 1.0, Matches: 1},
	}
	if err := WriteThresholdCounts(dir, counts); err != nil {
		t.Fatalf("WriteThresholdCounts failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ThresholdsFile))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "threshold,matches" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "0.0000,10" || lines[3] != "1.0000,1" {
		t.Errorf("unexpected rows: %v", lines[1:])
	}
}

func TestReadPosteriorsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.csv")
	_, err := ReadPosteriors(path)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("error %q does not name the missing path", err)
	}
}
