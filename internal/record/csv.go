package record

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// CSVHeader is the column order for dataset files. It never changes between
// runs, so diffing two runs of the same seed is a byte comparison.
var CSVHeader = []string{"id", "firstname", "lastname", "birthyear", "zipcode"}

// ReadDataset loads a dataset from a delimited file with a header row.
// Missing files and malformed rows fail fast with the offending path or
// line in the error.
func ReadDataset(path, name string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if len(header) < len(CSVHeader) {
		return nil, fmt.Errorf("dataset %s: expected %d columns, got %d", path, len(CSVHeader), len(header))
	}

	ds := &Dataset{Name: name}
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("dataset %s line %d: %w", path, line, err)
		}

		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("dataset %s line %d: %w", path, line, err)
		}
		ds.Records = append(ds.Records, rec)
	}

	return ds, nil
}

// WriteDataset writes a dataset to a delimited file with a header row.
func WriteDataset(path string, ds *Dataset) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range ds.Records {
		row := []string{
			strconv.FormatInt(r.ID, 10),
			r.FirstName,
			r.LastName,
			strconv.Itoa(r.BirthYear),
			strconv.Itoa(r.ZipCode),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write record %d: %w", r.ID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func parseRow(row []string) (Record, error) {
	id, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("bad id %q: %w", row[0], err)
	}
	year, err := strconv.Atoi(row[3])
	if err != nil {
		return Record{}, fmt.Errorf("bad birthyear %q: %w", row[3], err)
	}
	zip, err := strconv.Atoi(row[4])
	if err != nil {
		return Record{}, fmt.Errorf("bad zipcode %q: %w", row[4], err)
	}

	return Record{
		ID:        id,
		FirstName: row[1],
		LastName:  row[2],
		BirthYear: year,
		ZipCode:   zip,
	}, nil
}
