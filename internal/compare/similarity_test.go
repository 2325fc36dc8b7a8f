package compare

import (
	"math"
	"testing"
)

func TestJaroWinklerSimilarity(t *testing.T) {
	tests := []struct {
		name string
		s1   string
		s2   string
		want float64 // exact expectation, or -1 to only check bounds
	}{
		{name: "identical strings", s1: "Martinez", s2: "Martinez", want: 1.0},
		{name: "both empty", s1: "", s2: "", want: 1.0},
		{name: "one empty", s1: "John", s2: "", want: 0.0},
		{name: "other empty", s1: "", s2: "John", want: 0.0},
		{name: "no characters in common", s1: "abc", s2: "xyz", want: 0.0},
		{name: "single typo", s1: "John", s2: "Jxhn", want: -1},
		{name: "typo with shared prefix", s1: "Williams", s2: "Willaims", want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JaroWinklerSimilarity(tt.s1, tt.s2)

			if got < 0 || got > 1 {
				t.Fatalf("JaroWinklerSimilarity(%q, %q) = %v, outside [0,1]", tt.s1, tt.s2, got)
			}
			if tt.want >= 0 && got != tt.want {
				t.Errorf("JaroWinklerSimilarity(%q, %q) = %v, want %v", tt.s1, tt.s2, got, tt.want)
			}

			// Symmetry holds for every input pair.
			reversed := JaroWinklerSimilarity(tt.s2, tt.s1)
			if got != reversed {
				t.Errorf("asymmetric: sim(%q,%q)=%v but sim(%q,%q)=%v", tt.s1, tt.s2, got, tt.s2, tt.s1, reversed)
			}
		})
	}
}

func TestJaroWinklerPrefixBoost(t *testing.T) {
	// Shared-prefix pairs should score at least as high as their plain
	// Jaro similarity.
	jaro := JaroSimilarity("Michael", "Michale")
	jw := JaroWinklerSimilarity("Michael", "Michale")
	if jw < jaro {
		t.Errorf("Jaro-Winkler %v below Jaro %v for shared-prefix pair", jw, jaro)
	}
	if jw > 1.0 {
		t.Errorf("Jaro-Winkler boost exceeded 1.0: %v", jw)
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		name string
		s1   string
		s2   string
		want int
	}{
		{name: "identical", s1: "Smith", s2: "Smith", want: 0},
		{name: "both empty", s1: "", s2: "", want: 0},
		{name: "insert into empty", s1: "", s2: "Jones", want: 5},
		{name: "delete to empty", s1: "Jones", s2: "", want: 5},
		{name: "single substitution", s1: "Smith", s2: "Smyth", want: 1},
		{name: "two substitutions", s1: "Garcia", s2: "Gxrcix", want: 2},
		{name: "case difference counts", s1: "john", s2: "John", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LevenshteinDistance(tt.s1, tt.s2); got != tt.want {
				t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tt.s1, tt.s2, got, tt.want)
			}
			if got, rev := LevenshteinDistance(tt.s1, tt.s2), LevenshteinDistance(tt.s2, tt.s1); got != rev {
				t.Errorf("asymmetric: %d vs %d", got, rev)
			}
		})
	}
}

func TestGaussSimilarity(t *testing.T) {
	tests := []struct {
		name  string
		a, b  float64
		scale float64
	}{
		{name: "equal years", a: 1985, b: 1985, scale: 2},
		{name: "one year apart", a: 1985, b: 1986, scale: 2},
		{name: "two years apart", a: 1985, b: 1987, scale: 2},
		{name: "far apart", a: 1970, b: 2000, scale: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GaussSimilarity(tt.a, tt.b, tt.scale)
			if got < 0 || got > 1 {
				t.Fatalf("GaussSimilarity(%v, %v) = %v, outside [0,1]", tt.a, tt.b, got)
			}
			if tt.a == tt.b && got != 1.0 {
				t.Errorf("equal values scored %v, want exactly 1.0", got)
			}
			if rev := GaussSimilarity(tt.b, tt.a, tt.scale); got != rev {
				t.Errorf("asymmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestGaussSimilarityDecays(t *testing.T) {
	prev := 1.0
	for d := 1; d <= 5; d++ {
		sim := GaussSimilarity(1985, float64(1985+d), 2)
		if sim >= prev {
			t.Errorf("similarity did not decay at distance %d: %v >= %v", d, sim, prev)
		}
		prev = sim
	}
}

func TestGaussSimilarityDegenerateScale(t *testing.T) {
	if got := GaussSimilarity(1985, 1985, 0); got != 1.0 {
		t.Errorf("zero scale, equal values: got %v, want 1.0", got)
	}
	if got := GaussSimilarity(1985, 1986, 0); got != 0.0 {
		t.Errorf("zero scale, distinct values: got %v, want 0.0", got)
	}
}

func TestSimilaritiesNeverNaN(t *testing.T) {
	inputs := []struct{ s1, s2 string }{
		{"", ""}, {"a", ""}, {"", "a"}, {"a", "a"}, {"abc", "xyz"},
	}
	for _, in := range inputs {
		if v := JaroWinklerSimilarity(in.s1, in.s2); math.IsNaN(v) {
			t.Errorf("JaroWinklerSimilarity(%q, %q) is NaN", in.s1, in.s2)
		}
	}
}
