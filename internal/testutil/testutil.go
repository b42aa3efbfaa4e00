// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the rating-file fixtures used by the loader,
// aggregator, pipeline and dashboard tests. It deliberately knows nothing about
// the annotations model so any package's tests can import it.
package testutil

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"testing/fstest"

	"github.com/xuri/excelize/v2"
)

// Categories mirrors the default rating categories for fixtures.
var Categories = []string{
	"Appropriateness",
	"Information content of outputs",
	"Humanlikeness",
}

// RatingCSV encodes one rater file: a header of categories followed by one row
// per item. Shorter columns leave trailing cells blank.
func RatingCSV(categories []string, ratings map[string][]int) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(categories)
	for _, row := range ratingRows(categories, ratings) {
		_ = w.Write(row)
	}
	w.Flush()
	return buf.Bytes()
}

// RatingXLSX encodes one rater file as a single-sheet workbook.
func RatingXLSX(t *testing.T, categories []string, ratings map[string][]int) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	header := make([]interface{}, len(categories))
	for i, c := range categories {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		t.Fatalf("failed to write header: %v", err)
	}
	for i, row := range ratingRows(categories, ratings) {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			if v, err := strconv.Atoi(cell); err == nil {
				cells[j] = v
			} else {
				cells[j] = cell
			}
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &cells); err != nil {
			t.Fatalf("failed to write row %d: %v", i+2, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("failed to encode workbook: %v", err)
	}
	return buf.Bytes()
}

func ratingRows(categories []string, ratings map[string][]int) [][]string {
	n := 0
	for _, c := range categories {
		if len(ratings[c]) > n {
			n = len(ratings[c])
		}
	}
	rows := make([][]string, n)
	for i := range rows {
		row := make([]string, len(categories))
		for j, c := range categories {
			if i < len(ratings[c]) {
				row[j] = strconv.Itoa(ratings[c][i])
			}
		}
		rows[i] = row
	}
	return rows
}

// SameForAll returns a ratings map using the same series for every category.
func SameForAll(categories []string, series []int) map[string][]int {
	out := make(map[string][]int, len(categories))
	for _, c := range categories {
		out[c] = append([]int(nil), series...)
	}
	return out
}

// Cycle returns n ratings repeating values in order.
func Cycle(n int, values ...int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = values[i%len(values)]
	}
	return out
}

// RaterPath is the slash path of a rater file inside a rating tree.
func RaterPath(round, group int, name string) string {
	return fmt.Sprintf("round%d/group%d/%s", round, group, name)
}

// AddRaterFile places a rater file into an in-memory rating tree.
func AddRaterFile(fsys fstest.MapFS, round, group int, name string, data []byte) {
	fsys[RaterPath(round, group, name)] = &fstest.MapFile{Data: data, Mode: 0o644}
}

// WriteRaterFile writes a rater file below dir on disk.
func WriteRaterFile(t *testing.T, dir string, round, group int, name string, data []byte) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(RaterPath(round, group, name)))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", p, err)
	}
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}
