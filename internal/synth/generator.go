// Package synth generates paired synthetic datasets for linkage experiments:
// a clean dataset A and a noised copy B representing the same individuals.
package synth

import (
	"math/rand"

	"github.com/reclink/internal/record"
)

// Name pools are deliberately small so that non-matching record pairs still
// collide on individual fields, which is what makes probabilistic scoring
// interesting on toy data.
var (
	firstNames = []string{"John", "Jane", "Michael", "Emily", "David", "Sarah", "William", "Emma", "James", "Olivia"}
	lastNames  = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez"}
)

const (
	minBirthYear = 1970
	maxBirthYear = 2000 // inclusive
	minZipCode   = 10000
	maxZipCode   = 20000 // inclusive
)

// Generator produces synthetic record populations. The random source is
// passed in explicitly rather than read from package-global state, so a
// fixed seed reproduces the exact same population.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator backed by the given random source.
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// Generate draws a population of up to n records with independent fields.
// Rows that duplicate an earlier row across all columns are dropped, so the
// returned dataset may be slightly smaller than n.
func (g *Generator) Generate(name string, n int) *record.Dataset {
	ds := &record.Dataset{Name: name}
	seen := make(map[record.Record]bool, n)

	nextID := int64(1)
	for i := 0; i < n; i++ {
		r := record.Record{
			FirstName: firstNames[g.rng.Intn(len(firstNames))],
			LastName:  lastNames[g.rng.Intn(len(lastNames))],
			BirthYear: minBirthYear + g.rng.Intn(maxBirthYear-minBirthYear+1),
			ZipCode:   minZipCode + g.rng.Intn(maxZipCode-minZipCode+1),
		}

		// Duplicate check ignores the ID, which has not been assigned yet.
		if seen[r] {
			continue
		}
		seen[r] = true

		r.ID = nextID
		nextID++
		ds.Records = append(ds.Records, r)
	}

	return ds
}
