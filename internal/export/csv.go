// Package export writes the pipeline's result tables to delimited files
// and, optionally, bulk-loads them into Postgres. Column names and order
// are fixed so outputs from the same seed are byte-identical across runs.
package export

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/reclink/internal/analyze"
	"github.com/reclink/internal/block"
	"github.com/reclink/internal/compare"
	"github.com/reclink/internal/record"
)

// Standard output filenames inside the output directory.
const (
	DatasetAFile      = "dataset_a.csv"
	DatasetBFile      = "dataset_b.csv"
	ExactMatchesFile  = "exact_matches.csv"
	FeaturesFile      = "features.csv"
	PosteriorsFile    = "posteriors.csv"
	ThresholdsFile    = "thresholds.csv"
	PosteriorBinsFile = "posterior_bins.csv"
)

// naSentinel is written where a mean over an empty bin is undefined.
const naSentinel = "NA"

// WriteExactMatches writes the deterministic match result set. The field
// values come from the A side; by construction both sides agree on every
// joined field.
func WriteExactMatches(dir string, pairs []block.Pair, a *record.Dataset) error {
	byID := a.ByID()

	return writeCSV(filepath.Join(dir, ExactMatchesFile),
		[]string{"id_a", "id_b", "firstname", "lastname", "birthyear", "zipcode"},
		len(pairs),
		func(i int) ([]string, error) {
			r, ok := byID[pairs[i].IDA]
			if !ok {
				return nil, fmt.Errorf("exact match references unknown record %d", pairs[i].IDA)
			}
			return []string{
				strconv.FormatInt(pairs[i].IDA, 10),
				strconv.FormatInt(pairs[i].IDB, 10),
				r.FirstName,
				r.LastName,
				strconv.Itoa(r.BirthYear),
				strconv.Itoa(r.ZipCode),
			}, nil
		})
}

// WriteFeatures writes the candidate-pair comparison vectors.
func WriteFeatures(dir string, vectors []compare.Vector) error {
	header := append([]string{"id_a", "id_b"}, compare.FeatureNames()...)

	return writeCSV(filepath.Join(dir, FeaturesFile), header, len(vectors),
		func(i int) ([]string, error) {
			v := vectors[i]
			row := make([]string, 0, len(header))
			row = append(row,
				strconv.FormatInt(v.Pair.IDA, 10),
				strconv.FormatInt(v.Pair.IDB, 10),
			)
			for _, f := range v.Features {
				row = append(row, formatScore(f))
			}
			return row, nil
		})
}

// WritePosteriors writes the posterior-probability table keyed by
// (id_a, id_b).
func WritePosteriors(dir string, pairs []analyze.ScoredPair) error {
	return writeCSV(filepath.Join(dir, PosteriorsFile),
		[]string{"id_a", "id_b", "posterior"},
		len(pairs),
		func(i int) ([]string, error) {
			return []string{
				strconv.FormatInt(pairs[i].Pair.IDA, 10),
				strconv.FormatInt(pairs[i].Pair.IDB, 10),
				formatScore(pairs[i].Posterior),
			}, nil
		})
}

// WriteThresholdCounts writes the threshold-count table.
func WriteThresholdCounts(dir string, counts []analyze.ThresholdCount) error {
	return writeCSV(filepath.Join(dir, ThresholdsFile),
		[]string{"threshold", "matches"},
		len(counts),
		func(i int) ([]string, error) {
			return []string{
				strconv.FormatFloat(counts[i].Threshold, 'f', 4, 64),
				strconv.Itoa(counts[i].Matches),
			}, nil
		})
}

// WritePosteriorBins writes the posterior-bin diagnostic table. Undefined
// means over empty bins render as the NA sentinel rather than NaN.
func WritePosteriorBins(dir string, bins []analyze.BinDiagnostic) error {
	return writeCSV(filepath.Join(dir, PosteriorBinsFile),
		[]string{"bin", "pairs", "mean_firstname_distance", "mean_lastname_distance", "mean_birthyear_distance"},
		len(bins),
		func(i int) ([]string, error) {
			b := bins[i]
			return []string{
				b.Label,
				strconv.Itoa(b.Pairs),
				formatMean(b.MeanFirstNameDist),
				formatMean(b.MeanLastNameDist),
				formatMean(b.MeanBirthYearDist),
			}, nil
		})
}

// formatScore renders similarities and posteriors with fixed precision.
func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// formatMean renders a bin mean, substituting the NA sentinel for NaN.
func formatMean(v float64) string {
	if math.IsNaN(v) {
		return naSentinel
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// writeCSV writes header plus n rows produced by rowFunc.
func writeCSV(path string, header []string, n int, rowFunc func(int) ([]string, error)) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", path, err)
	}

	for i := 0; i < n; i++ {
		row, err := rowFunc(i)
		if err != nil {
			return err
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i, path, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
