// Package compare turns candidate pairs into fixed-length comparison
// vectors of per-field similarity scores. Every vector has the same
// dimensionality and field order, which is what lets an unsupervised
// classifier treat them as draws from a mixture.
package compare

import (
	"fmt"

	"github.com/reclink/internal/block"
	"github.com/reclink/internal/record"
)

// Feature indexes into a comparison vector. Order is fixed and mirrored by
// FeatureNames.
const (
	FeatureFirstName = iota
	FeatureLastName
	FeatureBirthYear
	FeatureZipCode

	// FeatureCount is the fixed dimensionality of every comparison vector.
	FeatureCount
)

// Vector is the comparison vector for one candidate pair.
type Vector struct {
	Pair     block.Pair
	Features [FeatureCount]float64
}

// Comparer computes comparison vectors for candidate pairs.
type Comparer struct {
	// YearScale is the Gaussian kernel scale for the birth-year feature.
	YearScale float64
}

// NewComparer creates a comparer with the given birth-year kernel scale.
func NewComparer(yearScale float64) *Comparer {
	return &Comparer{YearScale: yearScale}
}

// FeatureNames returns the feature labels in vector order.
func FeatureNames() []string {
	return []string{"firstname_sim", "lastname_sim", "birthyear_sim", "zipcode_exact"}
}

// Compute builds the comparison vector for a single record pair.
//
// The zipcode indicator is included even when blocking on zipcode
// guarantees it is mostly 1: the vector layout does not depend on which
// blocking key produced the pair.
func (c *Comparer) Compute(a, b record.Record) Vector {
	var v Vector
	v.Pair = block.Pair{IDA: a.ID, IDB: b.ID}
	v.Features[FeatureFirstName] = JaroWinklerSimilarity(a.FirstName, b.FirstName)
	v.Features[FeatureLastName] = JaroWinklerSimilarity(a.LastName, b.LastName)
	v.Features[FeatureBirthYear] = GaussSimilarity(float64(a.BirthYear), float64(b.BirthYear), c.YearScale)
	if a.ZipCode == b.ZipCode {
		v.Features[FeatureZipCode] = 1.0
	}
	return v
}

// ComputeAll builds comparison vectors for every candidate pair, in pair
// order. Pairs referencing unknown record IDs are an error: the candidate
// set and the datasets must describe the same run.
func (c *Comparer) ComputeAll(pairs []block.Pair, a, b *record.Dataset) ([]Vector, error) {
	byIDA := a.ByID()
	byIDB := b.ByID()

	vectors := make([]Vector, 0, len(pairs))
	for _, p := range pairs {
		ra, ok := byIDA[p.IDA]
		if !ok {
			return nil, fmt.Errorf("candidate pair references unknown record %d in dataset %s", p.IDA, a.Name)
		}
		rb, ok := byIDB[p.IDB]
		if !ok {
			return nil, fmt.Errorf("candidate pair references unknown record %d in dataset %s", p.IDB, b.Name)
		}
		vectors = append(vectors, c.Compute(ra, rb))
	}

	return vectors, nil
}
