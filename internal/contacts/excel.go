package contacts

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// readExcel returns all rows of the first sheet, header included.
func readExcel(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("contacts: open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("contacts: %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("contacts: read %s: %w", path, err)
	}
	return rows, nil
}
