package dsm

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnreadable marks a DSM file that could not be decoded at all, as opposed
// to one that decoded into an invalid table.
var ErrUnreadable = errors.New("dsm file unreadable")

// LoadCSV parses a row-major DSM table from delimited text. The first line is
// a header, the first column of every following line is the node name and the
// remaining columns are transition weights. Blank, non-numeric and sentinel
// cells normalize to 0.
func LoadCSV(r io.Reader) (*Matrix, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("dsm csv has no data rows")
	}
	return fromRecords(records[1:])
}

// LoadXLSX parses the same table shape from the first sheet of a spreadsheet.
func LoadXLSX(r io.Reader) (*Matrix, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("dsm xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("dsm xlsx has no data rows")
	}
	return fromRecords(rows[1:])
}

// fromRecords normalizes raw cells and assembles the matrix. Every data row
// must carry exactly one weight per node.
func fromRecords(records [][]string) (*Matrix, error) {
	var names []string
	var cells [][]string
	for _, record := range records {
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}
		names = append(names, strings.TrimSpace(record[0]))
		cells = append(cells, record[1:])
	}

	weights := make([][]float64, len(names))
	for i, raw := range cells {
		if len(raw) > len(names) {
			return nil, fmt.Errorf("dsm row %q has %d cells, want %d", names[i], len(raw), len(names))
		}
		row := make([]float64, len(names))
		for j, cell := range raw {
			row[j] = normalizeCell(cell)
		}
		weights[i] = row
	}

	return New(names, weights)
}

// normalizeCell maps blank, sentinel and non-numeric cells to 0.
func normalizeCell(cell string) float64 {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, SelfSentinel) {
		return 0
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || v != v { // NaN guard
		return 0
	}
	return v
}
