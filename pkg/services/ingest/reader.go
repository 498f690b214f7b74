package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tealeg/xlsx/v2"
)

// readTable returns the header and data rows of a CSV or XLSX file. For
// workbooks only the first sheet is read.
func readTable(path string) ([]string, [][]string, error) {
	var (
		records [][]string
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		records, err = readCSV(path)
	case ".xlsx":
		records, err = readXLSX(path)
	default:
		return nil, nil, fmt.Errorf("unsupported file type %q, expected .csv or .xlsx", ext)
	}
	if err != nil {
		return nil, nil, err
	}

	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%s has no header row", path)
	}

	header := make([]string, len(records[0]))
	seen := make(map[string]struct{}, len(header))
	for i, h := range records[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			return nil, nil, fmt.Errorf("%s: header column %d is empty", path, i+1)
		}
		if _, dup := seen[h]; dup {
			return nil, nil, fmt.Errorf("%s: duplicate header %q", path, h)
		}
		seen[h] = struct{}{}
		header[i] = h
	}

	rows := make([][]string, 0, len(records)-1)
	for i, row := range records[1:] {
		if blank(row) {
			continue
		}
		row, err := normalize(row, len(header))
		if err != nil {
			// records[0] is the header, so data starts on line 2
			return nil, nil, fmt.Errorf("%s: row %d: %w", path, i+2, err)
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if len(f.Sheets) == 0 {
		return nil, fmt.Errorf("%s has no sheets", path)
	}

	var records [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = strings.TrimSpace(cell.String())
		}
		records = append(records, cells)
	}
	return records, nil
}

// normalize pads short rows to width columns. Cells past the header are
// only dropped when they are empty.
func normalize(row []string, width int) ([]string, error) {
	if len(row) == width {
		return row, nil
	}
	if len(row) > width {
		if !blank(row[width:]) {
			return nil, fmt.Errorf("%d cells for %d header columns", len(row), width)
		}
		return row[:width], nil
	}
	out := make([]string, width)
	copy(out, row)
	return out, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
