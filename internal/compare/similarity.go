package compare

import (
	"math"
)

// JaroSimilarity computes Jaro similarity between two strings. The result
// is symmetric and bounded in [0,1]; identical strings, including two empty
// strings, score exactly 1.0.
func JaroSimilarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	len1, len2 := len(s1), len(s2)
	if len1 == 0 || len2 == 0 {
		return 0.0
	}

	matchWindow := max(len1, len2)/2 - 1
	if matchWindow < 0 {
		matchWindow = 0
	}

	s1Matches := make([]bool, len1)
	s2Matches := make([]bool, len2)

	matches := 0
	transpositions := 0

	// Find matches
	for i := 0; i < len1; i++ {
		start := max(0, i-matchWindow)
		end := min(i+matchWindow+1, len2)

		for j := start; j < end; j++ {
			if s2Matches[j] || s1[i] != s2[j] {
				continue
			}
			s1Matches[i] = true
			s2Matches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	// Count transpositions
	k := 0
	for i := 0; i < len1; i++ {
		if !s1Matches[i] {
			continue
		}
		for !s2Matches[k] {
			k++
		}
		if s1[i] != s2[k] {
			transpositions++
		}
		k++
	}

	return (float64(matches)/float64(len1) +
		float64(matches)/float64(len2) +
		float64(matches-transpositions/2)/float64(matches)) / 3.0
}

// jaroWinklerPrefixScale is the standard Winkler prefix weight; combined
// with the 4-character prefix cap it keeps the boosted score within [0,1].
const (
	jaroWinklerPrefixScale = 0.1
	jaroWinklerMaxPrefix   = 4
)

// JaroWinklerSimilarity computes Jaro-Winkler similarity: Jaro similarity
// boosted for strings sharing a common prefix.
func JaroWinklerSimilarity(s1, s2 string) float64 {
	jaro := JaroSimilarity(s1, s2)

	prefix := 0
	for i := 0; i < min(min(len(s1), len(s2)), jaroWinklerMaxPrefix); i++ {
		if s1[i] != s2[i] {
			break
		}
		prefix++
	}

	return jaro + float64(prefix)*jaroWinklerPrefixScale*(1.0-jaro)
}

// LevenshteinDistance computes the edit distance between two strings.
func LevenshteinDistance(s1, s2 string) int {
	if s1 == s2 {
		return 0
	}

	len1, len2 := len(s1), len(s2)
	if len1 == 0 {
		return len2
	}
	if len2 == 0 {
		return len1
	}

	matrix := make([][]int, len1+1)
	for i := range matrix {
		matrix[i] = make([]int, len2+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len1; i++ {
		for j := 1; j <= len2; j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}

			matrix[i][j] = min(
				min(matrix[i-1][j]+1, matrix[i][j-1]+1),
				matrix[i-1][j-1]+cost,
			)
		}
	}

	return matrix[len1][len2]
}

// GaussSimilarity maps the distance between two numeric values onto (0,1]
// with a Gaussian kernel: equal values score exactly 1.0 and the score
// decays with |a-b| at a rate set by scale. Symmetric by construction.
func GaussSimilarity(a, b, scale float64) float64 {
	if scale <= 0 {
		// Degenerate kernel: only exact equality counts.
		if a == b {
			return 1.0
		}
		return 0.0
	}

	d := (a - b) / scale
	return math.Exp(-0.5 * d * d)
}

// ExactSimilarity is the boolean agreement indicator as a float.
func ExactSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return 0.0
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
