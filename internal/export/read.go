package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/reclink/internal/analyze"
	"github.com/reclink/internal/block"
	"github.com/reclink/internal/compare"
)

// ReadPosteriors loads a posterior table written by WritePosteriors, so
// the sweep and export commands can run against a previous linkage pass.
func ReadPosteriors(path string) ([]analyze.ScoredPair, error) {
	rows, err := readTable(path, 3)
	if err != nil {
		return nil, err
	}

	pairs := make([]analyze.ScoredPair, 0, len(rows))
	for i, row := range rows {
		idA, idB, err := parsePairIDs(row[0], row[1])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
		posterior, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: bad posterior %q: %w", path, i+1, row[2], err)
		}
		pairs = append(pairs, analyze.ScoredPair{
			Pair:      block.Pair{IDA: idA, IDB: idB},
			Posterior: posterior,
		})
	}

	return pairs, nil
}

// ReadFeatures loads a comparison-vector table written by WriteFeatures.
func ReadFeatures(path string) ([]compare.Vector, error) {
	rows, err := readTable(path, 2+compare.FeatureCount)
	if err != nil {
		return nil, err
	}

	vectors := make([]compare.Vector, 0, len(rows))
	for i, row := range rows {
		idA, idB, err := parsePairIDs(row[0], row[1])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
		}

		var v compare.Vector
		v.Pair = block.Pair{IDA: idA, IDB: idB}
		for j := 0; j < compare.FeatureCount; j++ {
			f, err := strconv.ParseFloat(row[2+j], 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: bad feature %q: %w", path, i+1, row[2+j], err)
			}
			v.Features[j] = f
		}
		vectors = append(vectors, v)
	}

	return vectors, nil
}

// readTable reads a header-prefixed CSV, enforcing a column count.
func readTable(path string, columns int) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if len(header) != columns {
		return nil, fmt.Errorf("%s: expected %d columns, got %d", path, columns, len(header))
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func parsePairIDs(a, b string) (int64, int64, error) {
	idA, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad id_a %q: %w", a, err)
	}
	idB, err := strconv.ParseInt(b, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad id_b %q: %w", b, err)
	}
	return idA, idB, nil
}
