package contacts

import (
	"encoding/csv"
	"fmt"
	"os"
)

// readCSV returns all rows, header included.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("contacts: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are handled per-cell
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("contacts: read %s: %w", path, err)
	}
	return rows, nil
}
