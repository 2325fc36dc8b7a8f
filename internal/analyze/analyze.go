// Package analyze produces the descriptive summaries that close the
// linkage pipeline: how many pairs clear each posterior threshold, and
// whether high-posterior pairs really do disagree less at the field level.
// Nothing here uses ground truth; the diagnostics validate internal
// consistency, not accuracy.
package analyze

import (
	"fmt"
	"math"
	"sort"

	"github.com/reclink/internal/block"
	"github.com/reclink/internal/compare"
	"github.com/reclink/internal/record"
)

// ScoredPair is a candidate pair with its fitted match posterior.
type ScoredPair struct {
	Pair      block.Pair
	Posterior float64
}

// ThresholdCount reports how many pairs would be classified as matches at
// one posterior cutoff.
type ThresholdCount struct {
	Threshold float64
	Matches   int
}

// ThresholdSweep counts, for a grid of thresholds over [0,1] with the given
// step, the pairs whose posterior meets or exceeds each cutoff. The count
// is non-increasing in the threshold. An empty input yields all-zero
// counts, which is a valid degenerate result.
func ThresholdSweep(pairs []ScoredPair, step float64) ([]ThresholdCount, error) {
	if step <= 0 || step > 1 {
		return nil, fmt.Errorf("threshold step must be in (0,1], got %g", step)
	}

	// Sort posteriors once, then binary-search each cutoff.
	posteriors := make([]float64, len(pairs))
	for i, p := range pairs {
		posteriors[i] = p.Posterior
	}
	sort.Float64s(posteriors)

	steps := int(math.Round(1.0/step)) + 1
	counts := make([]ThresholdCount, 0, steps)
	for i := 0; i < steps; i++ {
		th := float64(i) * step
		if th > 1 {
			th = 1
		}
		firstAt := sort.SearchFloat64s(posteriors, th)
		counts = append(counts, ThresholdCount{
			Threshold: th,
			Matches:   len(posteriors) - firstAt,
		})
	}

	return counts, nil
}

// BinDiagnostic summarizes realized matches within one posterior bin:
// the mean edit distance for each name field and the mean absolute
// birth-year difference. Means over an empty bin are undefined and carry
// NaN, which renders as an "NA" sentinel downstream; this is diagnostic
// output, not a correctness-critical computation.
type BinDiagnostic struct {
	Label             string
	Low, High         float64
	Pairs             int
	MeanFirstNameDist float64
	MeanLastNameDist  float64
	MeanBirthYearDist float64
}

// BinConfig controls the diagnostic binning.
type BinConfig struct {
	// Bins is the number of equal-width posterior bins over (0,1].
	Bins int

	// MinPosterior drops pairs at or below this posterior before binning,
	// so the lowest bin is not dominated by the near-zero mass.
	MinPosterior float64
}

// DefaultBinConfig returns the standard ten-bin configuration.
func DefaultBinConfig() BinConfig {
	return BinConfig{Bins: 10, MinPosterior: 1e-6}
}

// BinByPosterior bins scored pairs by posterior range and computes the mean
// intra-bin field distances against the two source datasets. Bins are
// half-open (low, high] like the classic histogram cut.
func BinByPosterior(pairs []ScoredPair, a, b *record.Dataset, cfg BinConfig) ([]BinDiagnostic, error) {
	if cfg.Bins <= 0 {
		return nil, fmt.Errorf("bin count must be positive, got %d", cfg.Bins)
	}

	byIDA := a.ByID()
	byIDB := b.ByID()

	width := 1.0 / float64(cfg.Bins)
	bins := make([]BinDiagnostic, cfg.Bins)
	sums := make([][3]float64, cfg.Bins)
	for i := range bins {
		low := float64(i) * width
		high := float64(i+1) * width
		bins[i] = BinDiagnostic{
			Label: fmt.Sprintf("%.1f-%.1f", low, high),
			Low:   low,
			High:  high,
		}
	}

	for _, sp := range pairs {
		if sp.Posterior <= cfg.MinPosterior {
			continue
		}

		ra, ok := byIDA[sp.Pair.IDA]
		if !ok {
			return nil, fmt.Errorf("scored pair references unknown record %d in dataset %s", sp.Pair.IDA, a.Name)
		}
		rb, ok := byIDB[sp.Pair.IDB]
		if !ok {
			return nil, fmt.Errorf("scored pair references unknown record %d in dataset %s", sp.Pair.IDB, b.Name)
		}

		idx := binIndex(sp.Posterior, width, cfg.Bins)
		bins[idx].Pairs++
		sums[idx][0] += float64(compare.LevenshteinDistance(ra.FirstName, rb.FirstName))
		sums[idx][1] += float64(compare.LevenshteinDistance(ra.LastName, rb.LastName))
		sums[idx][2] += math.Abs(float64(ra.BirthYear - rb.BirthYear))
	}

	for i := range bins {
		if bins[i].Pairs == 0 {
			bins[i].MeanFirstNameDist = math.NaN()
			bins[i].MeanLastNameDist = math.NaN()
			bins[i].MeanBirthYearDist = math.NaN()
			continue
		}
		n := float64(bins[i].Pairs)
		bins[i].MeanFirstNameDist = sums[i][0] / n
		bins[i].MeanLastNameDist = sums[i][1] / n
		bins[i].MeanBirthYearDist = sums[i][2] / n
	}

	return bins, nil
}

// binIndex places a posterior into a half-open (low, high] bin.
func binIndex(posterior, width float64, bins int) int {
	idx := int(math.Ceil(posterior/width)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= bins {
		idx = bins - 1
	}
	return idx
}
