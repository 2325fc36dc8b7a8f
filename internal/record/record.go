package record

import (
	"fmt"
)

// Record represents one observation of an individual: a stable identifier
// plus the four attributes used for matching.
type Record struct {
	ID        int64
	FirstName string
	LastName  string
	BirthYear int
	ZipCode   int
}

// Field names accepted by the exact matcher and blocking indexer.
const (
	FieldFirstName = "firstname"
	FieldLastName  = "lastname"
	FieldBirthYear = "birthyear"
	FieldZipCode   = "zipcode"
)

// FieldValue returns the record's value for the named field as a string,
// suitable for building join keys.
func (r Record) FieldValue(field string) (string, error) {
	switch field {
	case FieldFirstName:
		return r.FirstName, nil
	case FieldLastName:
		return r.LastName, nil
	case FieldBirthYear:
		return fmt.Sprintf("%d", r.BirthYear), nil
	case FieldZipCode:
		return fmt.Sprintf("%d", r.ZipCode), nil
	default:
		return "", fmt.Errorf("unknown field: %s", field)
	}
}

// Dataset is an ordered collection of records. Order is significant: it
// determines output order everywhere downstream, which keeps result files
// byte-identical across runs with the same seed.
type Dataset struct {
	Name    string
	Records []Record
}

// Clone returns a deep copy of the dataset. Noise injection works on the
// copy so the source dataset stays a clean baseline.
func (d *Dataset) Clone(name string) *Dataset {
	records := make([]Record, len(d.Records))
	copy(records, d.Records)
	return &Dataset{Name: name, Records: records}
}

// ByID returns a lookup map from record ID to record.
func (d *Dataset) ByID() map[int64]Record {
	m := make(map[int64]Record, len(d.Records))
	for _, r := range d.Records {
		m[r.ID] = r
	}
	return m
}

// Len returns the number of records in the dataset.
func (d *Dataset) Len() int {
	return len(d.Records)
}
