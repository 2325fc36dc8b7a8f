// Package pipeline runs the linkage stages in their single linear order:
// generate or load records, exact-match, block, compare, fit, analyze.
// Each stage fully consumes the previous stage's output before the next
// starts; there is no retry or partial-failure handling beyond treating EM
// non-convergence as a flagged, non-fatal outcome.
package pipeline

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/reclink/internal/analyze"
	"github.com/reclink/internal/block"
	"github.com/reclink/internal/compare"
	"github.com/reclink/internal/config"
	"github.com/reclink/internal/debug"
	"github.com/reclink/internal/em"
	"github.com/reclink/internal/record"
	"github.com/reclink/internal/synth"
)

// Pipeline executes linkage runs for one configuration.
type Pipeline struct {
	cfg     *config.Config
	verbose bool
}

// New creates a pipeline for the given configuration.
func New(cfg *config.Config, verbose bool) *Pipeline {
	return &Pipeline{cfg: cfg, verbose: verbose}
}

// Stats summarizes one run.
type Stats struct {
	RecordsA        int
	RecordsB        int
	ExactMatches    int
	Candidates      int
	EMIterations    int
	EMConverged     bool
	MatchProportion float64
	Duration        time.Duration
}

// Result bundles every derived artifact of a run. All of it is recomputed
// each run; no model state survives between runs.
type Result struct {
	DatasetA   *record.Dataset
	DatasetB   *record.Dataset
	ExactPairs []block.Pair
	Candidates []block.Pair
	Vectors    []compare.Vector
	Scored     []analyze.ScoredPair
	Thresholds []analyze.ThresholdCount
	Bins       []analyze.BinDiagnostic
	EM         *em.Result
	Stats      Stats
}

// GenerateDatasets produces the clean dataset A and its noised copy B from
// the configured seed. The generator and noiser share one random stream,
// mirroring a single-seed scripted workflow.
func (p *Pipeline) GenerateDatasets() (*record.Dataset, *record.Dataset) {
	rng := rand.New(rand.NewSource(p.cfg.Population.Seed))

	gen := synth.NewGenerator(rng)
	a := gen.Generate("a", p.cfg.Population.Size)

	noiser := synth.NewNoiser(rng, p.cfg.Population.NoiseProbability)
	b := noiser.Apply(a, "b")

	return a, b
}

// Run executes the full linkage sequence over the two datasets.
func (p *Pipeline) Run(a, b *record.Dataset) (*Result, error) {
	start := time.Now()

	result := &Result{
		DatasetA: a,
		DatasetB: b,
	}
	result.Stats.RecordsA = a.Len()
	result.Stats.RecordsB = b.Len()

	fmt.Printf("=== Linkage run: %d records in A, %d in B ===\n", a.Len(), b.Len())

	// Stage 1: deterministic matching on all fields.
	done := debug.Timing(p.verbose, "exact matching")
	exactFields := []string{record.FieldFirstName, record.FieldLastName, record.FieldBirthYear, record.FieldZipCode}
	exactPairs, err := block.ExactMatches(a, b, exactFields)
	if err != nil {
		return nil, fmt.Errorf("exact matching failed: %w", err)
	}
	done()
	result.ExactPairs = exactPairs
	result.Stats.ExactMatches = len(exactPairs)
	fmt.Printf("Exact matches: %d\n", len(exactPairs))

	// Stage 2: blocking.
	done = debug.Timing(p.verbose, "blocking")
	blocker := block.NewBlocker(p.cfg.Linkage.BlockingKey)
	candidates, err := blocker.Pairs(a, b)
	if err != nil {
		return nil, fmt.Errorf("blocking failed: %w", err)
	}
	done()
	result.Candidates = candidates
	result.Stats.Candidates = len(candidates)
	fmt.Printf("Candidate pairs after blocking on %s: %d\n", p.cfg.Linkage.BlockingKey, len(candidates))

	// Stage 3: comparison vectors.
	done = debug.Timing(p.verbose, "similarity features")
	comparer := compare.NewComparer(p.cfg.Linkage.YearScale)
	vectors, err := comparer.ComputeAll(candidates, a, b)
	if err != nil {
		return nil, fmt.Errorf("feature computation failed: %w", err)
	}
	done()
	result.Vectors = vectors

	// Stage 4: unsupervised match-probability estimation.
	done = debug.Timing(p.verbose, "EM fit")
	classifier := em.NewClassifier(em.Config{
		AgreeThreshold: p.cfg.Linkage.AgreeThreshold,
		MaxIterations:  p.cfg.EM.MaxIterations,
		Tolerance:      p.cfg.EM.Tolerance,
	})
	fit, err := classifier.Fit(vectors)
	if err != nil {
		return nil, fmt.Errorf("EM fit failed: %w", err)
	}
	done()
	result.EM = fit
	result.Stats.EMIterations = fit.Iterations
	result.Stats.EMConverged = fit.Converged
	result.Stats.MatchProportion = fit.MatchProportion

	if fit.Converged {
		fmt.Printf("EM converged after %d iterations (match proportion %.4f)\n", fit.Iterations, fit.MatchProportion)
	} else {
		fmt.Printf("WARNING: EM did not converge within %d iterations; using best estimate\n", fit.Iterations)
	}

	result.Scored = make([]analyze.ScoredPair, len(vectors))
	for i, v := range vectors {
		result.Scored[i] = analyze.ScoredPair{Pair: v.Pair, Posterior: fit.Posteriors[i]}
	}

	// Stage 5: descriptive analysis.
	done = debug.Timing(p.verbose, "threshold sweep")
	thresholds, err := analyze.ThresholdSweep(result.Scored, p.cfg.Analysis.GridStep)
	if err != nil {
		return nil, fmt.Errorf("threshold sweep failed: %w", err)
	}
	done()
	result.Thresholds = thresholds

	done = debug.Timing(p.verbose, "posterior binning")
	bins, err := analyze.BinByPosterior(result.Scored, a, b, analyze.BinConfig{
		Bins:         p.cfg.Analysis.BinCount,
		MinPosterior: p.cfg.Analysis.MinPosterior,
	})
	if err != nil {
		return nil, fmt.Errorf("posterior binning failed: %w", err)
	}
	done()
	result.Bins = bins

	result.Stats.Duration = time.Since(start)
	fmt.Printf("=== Run complete in %v ===\n", result.Stats.Duration)

	return result, nil
}
