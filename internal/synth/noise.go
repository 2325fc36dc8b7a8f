package synth

import (
	"math/rand"

	"github.com/reclink/internal/record"
)

const typoAlphabet = "abcdefghijklmnopqrstuvwxyz"

// Noiser corrupts a copy of a dataset to simulate re-observation of the same
// population through a messier channel: typos in name fields and small
// shifts in the birth year. The zipcode is left untouched, which is what
// makes it usable as a blocking key.
type Noiser struct {
	rng *rand.Rand

	// FieldProbability is the independent per-field chance that a record's
	// field gets corrupted.
	FieldProbability float64

	// MaxYearShift bounds the birth-year perturbation: shifts are drawn
	// uniformly from [-MaxYearShift, MaxYearShift].
	MaxYearShift int
}

// NewNoiser creates a noiser with the given corruption probability.
func NewNoiser(rng *rand.Rand, fieldProbability float64) *Noiser {
	return &Noiser{
		rng:              rng,
		FieldProbability: fieldProbability,
		MaxYearShift:     2,
	}
}

// Apply returns a noised copy of the dataset. The input dataset is never
// modified; callers keep it as the clean baseline.
func (n *Noiser) Apply(clean *record.Dataset, name string) *record.Dataset {
	noisy := clean.Clone(name)

	for i := range noisy.Records {
		if n.rng.Float64() < n.FieldProbability {
			noisy.Records[i].FirstName = n.addTypos(noisy.Records[i].FirstName)
		}
		if n.rng.Float64() < n.FieldProbability {
			noisy.Records[i].LastName = n.addTypos(noisy.Records[i].LastName)
		}
		if n.rng.Float64() < n.FieldProbability {
			shift := n.rng.Intn(2*n.MaxYearShift+1) - n.MaxYearShift
			noisy.Records[i].BirthYear += shift
		}
	}

	return noisy
}

// addTypos replaces between 1 and len(s) characters at distinct random
// positions with random lowercase letters.
func (n *Noiser) addTypos(s string) string {
	if len(s) == 0 {
		return s
	}

	chars := []byte(s)
	numReplace := 1 + n.rng.Intn(len(chars))

	positions := n.rng.Perm(len(chars))[:numReplace]
	for _, pos := range positions {
		chars[pos] = typoAlphabet[n.rng.Intn(len(typoAlphabet))]
	}

	return string(chars)
}
