package annotations

import (
	"strings"
	"testing"
)

func TestParseRating(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "3", want: 3},
		{in: "4.0", want: 4},
		{in: "-1", want: -1},
		{in: "2.5", wantErr: true},
		{in: "three", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseRating(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseRating(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseRating(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestReadCSV_StripsByteOrderMark(t *testing.T) {
	rows, err := readCSV(strings.NewReader("\ufeffAppropriateness\n4\n"))
	if err != nil {
		t.Fatalf("readCSV failed: %v", err)
	}
	got, err := extractColumn(rows, "Appropriateness", 50, DefaultScheme())
	if err != nil {
		t.Fatalf("extractColumn failed: %v", err)
	}
	if len(got) != 1 || got[0] != 4 {
		t.Errorf("got %v, want [4]", got)
	}
}

func TestExtractColumn_TrailingBlanksEndColumn(t *testing.T) {
	rows := [][]string{{"A", "B"}, {"1", "2"}, {"2", ""}, {"", ""}, {}}
	s := DefaultScheme()

	a, err := extractColumn(rows, "A", 50, s)
	if err != nil {
		t.Fatalf("extractColumn(A) failed: %v", err)
	}
	if len(a) != 2 {
		t.Errorf("column A = %v, want 2 ratings", a)
	}
	b, err := extractColumn(rows, "B", 50, s)
	if err != nil {
		t.Fatalf("extractColumn(B) failed: %v", err)
	}
	if len(b) != 1 || b[0] != 2 {
		t.Errorf("column B = %v, want [2]", b)
	}
}

func TestReaderFor(t *testing.T) {
	for _, name := range []string{"a.csv", "b.XLSX", "c.xlsx"} {
		if _, ok := readerFor(name); !ok {
			t.Errorf("expected a reader for %s", name)
		}
	}
	if _, ok := readerFor("d.xls"); ok {
		t.Error("legacy .xls should not be supported")
	}
}
