// Package block builds the candidate-pair sets that downstream scoring
// operates on: a deterministic equi-join for exact matching, and a blocking
// index that restricts comparison to pairs agreeing on a cheap, low-noise
// key.
//
// Blocking is a recall/cost tradeoff: a true match whose records disagree on
// the blocking key is never considered, no matter how similar the remaining
// fields are. Pairs excluded here are never scored and implicitly carry a
// match probability of zero.
package block

import (
	"fmt"
	"strings"

	"github.com/reclink/internal/record"
)

// Pair is an ordered (record A, record B) candidate produced by a join or a
// blocking rule. Existence of a pair does not imply a match, only that the
// pair was not excluded from comparison.
type Pair struct {
	IDA int64
	IDB int64
}

// ExactMatches returns every (a, b) pair agreeing exactly on all of the
// given fields. It is a deterministic equi-join: no confidence estimate is
// attached, and an empty result is a valid outcome, not an error.
func ExactMatches(a, b *record.Dataset, fields []string) ([]Pair, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("exact match requires at least one field")
	}

	index := make(map[string][]int64)
	for _, r := range b.Records {
		key, err := joinKey(r, fields)
		if err != nil {
			return nil, err
		}
		index[key] = append(index[key], r.ID)
	}

	var pairs []Pair
	for _, r := range a.Records {
		key, err := joinKey(r, fields)
		if err != nil {
			return nil, err
		}
		for _, idB := range index[key] {
			pairs = append(pairs, Pair{IDA: r.ID, IDB: idB})
		}
	}

	return pairs, nil
}

// Blocker generates candidate pairs by exact agreement on a single key.
type Blocker struct {
	Key string
}

// NewBlocker creates a blocker for the given key field.
func NewBlocker(key string) *Blocker {
	return &Blocker{Key: key}
}

// Pairs returns every (a, b) pair sharing the blocking key's value. Output
// order follows dataset order on both sides, so the candidate set is
// reproducible for a frozen input.
func (bl *Blocker) Pairs(a, b *record.Dataset) ([]Pair, error) {
	index := make(map[string][]int64)
	for _, r := range b.Records {
		key, err := r.FieldValue(bl.Key)
		if err != nil {
			return nil, fmt.Errorf("blocking key: %w", err)
		}
		index[key] = append(index[key], r.ID)
	}

	var pairs []Pair
	for _, r := range a.Records {
		key, err := r.FieldValue(bl.Key)
		if err != nil {
			return nil, fmt.Errorf("blocking key: %w", err)
		}
		for _, idB := range index[key] {
			pairs = append(pairs, Pair{IDA: r.ID, IDB: idB})
		}
	}

	return pairs, nil
}

// joinKey builds a composite key from the record's values for the given
// fields. The unit separator keeps distinct field tuples distinct.
func joinKey(r record.Record, fields []string) (string, error) {
	parts := make([]string, len(fields))
	for i, f := range fields {
		v, err := r.FieldValue(f)
		if err != nil {
			return "", err
		}
		parts[i] = v
	}
	return strings.Join(parts, "\x1f"), nil
}
