package em

import (
	"math"
	"testing"

	"github.com/reclink/internal/block"
	"github.com/reclink/internal/compare"
)

// mixedVectors builds a clean two-class population: nMatch pairs agreeing
// on everything, nNonMatch pairs agreeing on nothing, and a few partial
// agreements in between.
func mixedVectors(nMatch, nNonMatch int) []compare.Vector {
	var vectors []compare.Vector
	id := int64(1)

	for i := 0; i < nMatch; i++ {
		v := compare.Vector{Pair: block.Pair{IDA: id, IDB: id}}
		v.Features = [compare.FeatureCount]float64{1.0, 1.0, 1.0, 1.0}
		vectors = append(vectors, v)
		id++
	}
	for i := 0; i < nNonMatch; i++ {
		v := compare.Vector{Pair: block.Pair{IDA: id, IDB: id + 1000}}
		v.Features = [compare.FeatureCount]float64{0.3, 0.2, 0.1, 1.0}
		vectors = append(vectors, v)
		id++
	}
	// Partial agreements.
	for i := 0; i < 5; i++ {
		v := compare.Vector{Pair: block.Pair{IDA: id, IDB: id + 2000}}
		v.Features = [compare.FeatureCount]float64{0.9, 0.3, 1.0, 1.0}
		vectors = append(vectors, v)
		id++
	}

	return vectors
}

func TestFitPosteriorsBounded(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())

	result, err := classifier.Fit(mixedVectors(60, 40))
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if len(result.Posteriors) != 105 {
		t.Fatalf("got %d posteriors, want 105", len(result.Posteriors))
	}
	for i, p := range result.Posteriors {
		if math.IsNaN(p) {
			t.Fatalf("posterior %d is NaN", i)
		}
		if p < 0 || p > 1 {
			t.Errorf("posterior %d = %v, outside [0,1]", i, p)
		}
	}
}

func TestFitSeparatesClasses(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())

	vectors := mixedVectors(60, 40)
	result, err := classifier.Fit(vectors)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if !result.Converged {
		t.Fatal("expected convergence on cleanly separated classes")
	}

	// Full-agreement vectors must sit at the top of the posterior
	// ranking; full-disagreement vectors at the bottom.
	maxPosterior := 0.0
	for _, p := range result.Posteriors {
		if p > maxPosterior {
			maxPosterior = p
		}
	}
	for i := 0; i < 60; i++ {
		if result.Posteriors[i] < maxPosterior {
			t.Errorf("all-agreement vector %d posterior %v below maximum %v", i, result.Posteriors[i], maxPosterior)
		}
	}
	for i := 60; i < 100; i++ {
		if result.Posteriors[i] >= result.Posteriors[0] {
			t.Errorf("disagreement vector %d posterior %v not below match posterior %v", i, result.Posteriors[i], result.Posteriors[0])
		}
	}
}

func TestFitLabelOrientation(t *testing.T) {
	// Regardless of where EM converges, the match class must be the
	// high-agreement class.
	classifier := NewClassifier(DefaultConfig())

	result, err := classifier.Fit(mixedVectors(80, 20))
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	var mMean, uMean float64
	for i := range result.MProbs {
		mMean += result.MProbs[i]
		uMean += result.UProbs[i]
	}
	if mMean < uMean {
		t.Errorf("match-class agreement %v below non-match %v: classes swapped", mMean, uMean)
	}
}

func TestFitEmptyInput(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())

	result, err := classifier.Fit(nil)
	if err != nil {
		t.Fatalf("Fit failed on empty input: %v", err)
	}
	if len(result.Posteriors) != 0 {
		t.Errorf("got %d posteriors for empty input", len(result.Posteriors))
	}
	if !result.Converged {
		t.Error("empty fit should report convergence")
	}
}

func TestFitNonConvergenceIsSoftFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	cfg.Tolerance = 1e-15
	classifier := NewClassifier(cfg)

	result, err := classifier.Fit(mixedVectors(60, 40))
	if err != nil {
		t.Fatalf("Fit returned hard error on non-convergence: %v", err)
	}
	if result.Converged {
		t.Error("expected Converged=false at a one-iteration cap")
	}
	if result.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", result.Iterations)
	}

	// The best-effort estimate is still usable.
	for i, p := range result.Posteriors {
		if math.IsNaN(p) || p < 0 || p > 1 {
			t.Errorf("posterior %d = %v after soft failure", i, p)
		}
	}
}

func TestFitRejectsNaNFeatures(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())

	v := compare.Vector{Pair: block.Pair{IDA: 1, IDB: 1}}
	v.Features[0] = math.NaN()

	if _, err := classifier.Fit([]compare.Vector{v}); err == nil {
		t.Error("expected error for NaN feature")
	}
}

func TestFitDeterministic(t *testing.T) {
	classifier := NewClassifier(DefaultConfig())
	vectors := mixedVectors(30, 30)

	first, err := classifier.Fit(vectors)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	second, err := classifier.Fit(vectors)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	for i := range first.Posteriors {
		if first.Posteriors[i] != second.Posteriors[i] {
			t.Errorf("posterior %d differs between identical fits", i)
		}
	}
}
