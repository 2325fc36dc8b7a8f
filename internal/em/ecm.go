// Package em fits an unsupervised two-class mixture model over comparison
// vectors, in the Fellegi-Sunter tradition: candidate pairs are draws from
// a latent match class and a latent non-match class, each with its own
// per-field agreement probabilities. Fitting uses expectation-maximization
// with no labeled data; the posterior probability of the match class is the
// match score exposed downstream.
package em

import (
	"fmt"
	"math"

	"github.com/reclink/internal/compare"
)

// Config controls the EM fit.
type Config struct {
	// AgreeThreshold binarizes continuous similarity features: a feature at
	// or above the threshold counts as field agreement.
	AgreeThreshold float64

	// MaxIterations caps the EM loop. Hitting the cap is a soft failure:
	// the best available estimate is returned with Converged=false.
	MaxIterations int

	// Tolerance is the convergence criterion on the largest absolute
	// parameter change between iterations.
	Tolerance float64
}

// DefaultConfig returns the recommended EM settings.
func DefaultConfig() Config {
	return Config{
		AgreeThreshold: 0.85,
		MaxIterations:  100,
		Tolerance:      1e-5,
	}
}

// probFloor keeps the per-field agreement probabilities away from 0 and 1,
// where the likelihood degenerates and a single disagreeing field would
// force a posterior of exactly zero.
const probFloor = 1e-4

// Result holds the fitted model and the per-pair posteriors.
type Result struct {
	// Posteriors[i] is the match-class posterior for vectors[i], always in
	// [0,1] and never NaN.
	Posteriors []float64

	// MatchProportion is the fitted prior probability of the match class.
	MatchProportion float64

	// MProbs and UProbs are the fitted per-field agreement probabilities
	// conditional on match and non-match, in feature order.
	MProbs []float64
	UProbs []float64

	// Iterations is the number of EM iterations performed.
	Iterations int

	// Converged reports whether the fit reached the tolerance within the
	// iteration cap. A false value is informational, not an error.
	Converged bool
}

// Classifier fits the mixture model and scores candidate pairs.
type Classifier struct {
	config Config
}

// NewClassifier creates a classifier with the given configuration.
func NewClassifier(config Config) *Classifier {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultConfig().MaxIterations
	}
	if config.Tolerance <= 0 {
		config.Tolerance = DefaultConfig().Tolerance
	}
	if config.AgreeThreshold <= 0 {
		config.AgreeThreshold = DefaultConfig().AgreeThreshold
	}
	return &Classifier{config: config}
}

// pattern is a binarized comparison vector. With a handful of fields the
// number of distinct patterns is tiny, so EM iterates over grouped patterns
// with counts instead of every pair.
type pattern struct {
	agree [compare.FeatureCount]bool
}

// Fit runs EM over the comparison vectors and returns posteriors in input
// order. An empty input yields an empty, converged result.
func (c *Classifier) Fit(vectors []compare.Vector) (*Result, error) {
	numFeatures := len(compare.FeatureNames())

	result := &Result{
		MProbs: make([]float64, numFeatures),
		UProbs: make([]float64, numFeatures),
	}
	if len(vectors) == 0 {
		result.Converged = true
		return result, nil
	}

	// Group pairs by agreement pattern.
	patternIndex := make(map[pattern]int)
	var patterns []pattern
	var counts []float64
	assignment := make([]int, len(vectors))

	for i, v := range vectors {
		var p pattern
		for j, f := range v.Features {
			if math.IsNaN(f) {
				return nil, fmt.Errorf("comparison vector for pair (%d,%d) has NaN feature", v.Pair.IDA, v.Pair.IDB)
			}
			p.agree[j] = f >= c.config.AgreeThreshold
		}

		idx, ok := patternIndex[p]
		if !ok {
			idx = len(patterns)
			patternIndex[p] = idx
			patterns = append(patterns, p)
			counts = append(counts, 0)
		}
		counts[idx]++
		assignment[i] = idx
	}

	total := float64(len(vectors))

	// Standard ECM initialization: assume matches are rare and agree often.
	p := 0.1
	m := make([]float64, numFeatures)
	u := make([]float64, numFeatures)
	for j := range m {
		m[j] = 0.9
		u[j] = 0.1
	}

	posteriorByPattern := make([]float64, len(patterns))
	converged := false
	iterations := 0

	for iter := 0; iter < c.config.MaxIterations; iter++ {
		iterations = iter + 1

		// E step: posterior of the match class per pattern.
		for k, pat := range patterns {
			wMatch := p
			wNonMatch := 1 - p
			for j := 0; j < numFeatures; j++ {
				if pat.agree[j] {
					wMatch *= m[j]
					wNonMatch *= u[j]
				} else {
					wMatch *= 1 - m[j]
					wNonMatch *= 1 - u[j]
				}
			}

			denom := wMatch + wNonMatch
			if denom == 0 {
				// Both classes assign zero likelihood; split the difference.
				posteriorByPattern[k] = 0.5
				continue
			}
			posteriorByPattern[k] = wMatch / denom
		}

		// M step: re-estimate the proportion and per-field agreement rates.
		var sumG float64
		sumGAgree := make([]float64, numFeatures)
		sumVAgree := make([]float64, numFeatures)

		for k := range patterns {
			g := posteriorByPattern[k] * counts[k]
			v := (1 - posteriorByPattern[k]) * counts[k]
			sumG += g
			for j := 0; j < numFeatures; j++ {
				if patterns[k].agree[j] {
					sumGAgree[j] += g
					sumVAgree[j] += v
				}
			}
		}
		sumV := total - sumG

		newP := clampProb(sumG / total)
		newM := make([]float64, numFeatures)
		newU := make([]float64, numFeatures)
		for j := 0; j < numFeatures; j++ {
			if sumG > 0 {
				newM[j] = clampProb(sumGAgree[j] / sumG)
			} else {
				newM[j] = m[j]
			}
			if sumV > 0 {
				newU[j] = clampProb(sumVAgree[j] / sumV)
			} else {
				newU[j] = u[j]
			}
		}

		delta := math.Abs(newP - p)
		for j := 0; j < numFeatures; j++ {
			delta = math.Max(delta, math.Abs(newM[j]-m[j]))
			delta = math.Max(delta, math.Abs(newU[j]-u[j]))
		}

		p = newP
		copy(m, newM)
		copy(u, newU)

		if delta < c.config.Tolerance {
			converged = true
			break
		}
	}

	// Recompute posteriors at the final parameters.
	for k, pat := range patterns {
		wMatch := p
		wNonMatch := 1 - p
		for j := 0; j < numFeatures; j++ {
			if pat.agree[j] {
				wMatch *= m[j]
				wNonMatch *= u[j]
			} else {
				wMatch *= 1 - m[j]
				wNonMatch *= 1 - u[j]
			}
		}
		denom := wMatch + wNonMatch
		if denom == 0 {
			posteriorByPattern[k] = 0.5
			continue
		}
		posteriorByPattern[k] = wMatch / denom
	}

	// EM is label-symmetric: nothing stops it converging with the classes
	// swapped. The match class is, by definition, the one whose members
	// agree more; if the fit disagrees, flip it.
	if meanOf(m) < meanOf(u) {
		p = 1 - p
		m, u = u, m
		for k := range posteriorByPattern {
			posteriorByPattern[k] = 1 - posteriorByPattern[k]
		}
	}

	result.Posteriors = make([]float64, len(vectors))
	for i, idx := range assignment {
		result.Posteriors[i] = posteriorByPattern[idx]
	}
	result.MatchProportion = p
	copy(result.MProbs, m)
	copy(result.UProbs, u)
	result.Iterations = iterations
	result.Converged = converged

	return result, nil
}

func clampProb(v float64) float64 {
	if v < probFloor {
		return probFloor
	}
	if v > 1-probFloor {
		return 1 - probFloor
	}
	return v
}

func meanOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
