package annotations

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// tableReader decodes a rating file into rows of cells. Row 0 is the header.
type tableReader func(r io.Reader) ([][]string, error)

var tableReaders = map[string]tableReader{
	".csv":  readCSV,
	".xlsx": readXLSX,
}

// SupportedExtensions lists the rating file extensions the loader reads.
func SupportedExtensions() []string { return []string{".csv", ".xlsx"} }

func readerFor(name string) (tableReader, bool) {
	r, ok := tableReaders[strings.ToLower(path.Ext(name))]
	return r, ok
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

// readXLSX reads the first worksheet of a workbook.
func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// extractColumn reads at most limit ratings of one category from a decoded
// table. Trailing blank cells end the column; a blank cell followed by more
// ratings is malformed.
func extractColumn(rows [][]string, category string, limit int, s Scheme) ([]int, error) {
	if len(rows) == 0 {
		return nil, &MalformedInputError{Category: category, Err: fmt.Errorf("file has no header row")}
	}
	col := -1
	for i, h := range rows[0] {
		if strings.TrimSpace(h) == category {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, &MalformedInputError{Category: category, Err: fmt.Errorf("missing column")}
	}

	data := rows[1:]
	if len(data) > limit {
		data = data[:limit]
	}
	cells := make([]string, len(data))
	last := -1
	for i, row := range data {
		if col < len(row) {
			cells[i] = strings.TrimSpace(row[col])
		}
		if cells[i] != "" {
			last = i
		}
	}
	cells = cells[:last+1]

	out := make([]int, len(cells))
	for i, cell := range cells {
		// Header is spreadsheet row 1.
		rowNum := i + 2
		if cell == "" {
			return nil, &MalformedInputError{Category: category, Row: rowNum, Err: fmt.Errorf("blank rating")}
		}
		v, err := parseRating(cell)
		if err != nil {
			return nil, &MalformedInputError{Category: category, Row: rowNum, Err: err}
		}
		if !s.InScale(v) {
			return nil, &MalformedInputError{
				Category: category,
				Row:      rowNum,
				Err:      fmt.Errorf("rating %d outside %d..%d", v, s.ScaleMin, s.ScaleMax),
			}
		}
		out[i] = v
	}
	return out, nil
}

// parseRating accepts integers and integral floats ("4", "4.0").
func parseRating(cell string) (int, error) {
	if v, err := strconv.Atoi(cell); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric rating %q", cell)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("non-integer rating %q", cell)
	}
	return int(f), nil
}
