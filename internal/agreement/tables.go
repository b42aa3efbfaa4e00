package agreement

import (
	"fmt"

	"github.com/banshee-data/agreement.report/internal/annotations"
)

// DifferenceRow counts items of one triple whose two ratings differ by
// Difference. Every bucket 0..MaxDifference is emitted, including zeros.
type DifferenceRow struct {
	annotations.Key
	Difference int `json:"difference"`
	Count      int `json:"count"`
}

// KappaRow is the pairwise kappa of one triple's two raters.
type KappaRow struct {
	annotations.Key
	Kappa Score `json:"kappa"`
}

// CountRow is a single observed rating.
type CountRow struct {
	annotations.Key
	Rater  annotations.RaterID `json:"rater"`
	Rating int                 `json:"rating"`
}

// ContingencyTable cross-tabulates the two raters of a triple. Cells[i][j]
// counts items where rater 0 scored ScaleMin+i and rater 1 scored ScaleMin+j.
type ContingencyTable struct {
	annotations.Key
	ScaleMin int     `json:"scale_min"`
	Cells    [][]int `json:"cells"`
	Kappa    Score   `json:"kappa"`
}

// RowSums is rater 0's rating histogram.
func (t ContingencyTable) RowSums() []int {
	out := make([]int, len(t.Cells))
	for i, row := range t.Cells {
		for _, v := range row {
			out[i] += v
		}
	}
	return out
}

// ColSums is rater 1's rating histogram.
func (t ContingencyTable) ColSums() []int {
	out := make([]int, len(t.Cells))
	for _, row := range t.Cells {
		for j, v := range row {
			out[j] += v
		}
	}
	return out
}

// Total is the number of items tabulated.
func (t ContingencyTable) Total() int {
	n := 0
	for _, v := range t.RowSums() {
		n += v
	}
	return n
}

// CellKind marks what a GroupKappaMatrix cell holds.
type CellKind int

const (
	// Pair is a computed upper-triangle cell.
	Pair CellKind = iota
	// Self is the diagonal.
	Self
	// Mirror is a lower-triangle cell; its score repeats the upper cell for
	// display only.
	Mirror
)

func (k CellKind) String() string {
	switch k {
	case Self:
		return "self"
	case Mirror:
		return "mirror"
	default:
		return "pair"
	}
}

func (k CellKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *CellKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pair":
		*k = Pair
	case "self":
		*k = Self
	case "mirror":
		*k = Mirror
	default:
		return fmt.Errorf("unknown cell kind %q", b)
	}
	return nil
}

// Pairing says whether two pooled raters annotated in the same group.
type Pairing int

const (
	Between Pairing = iota
	Within
)

func (p Pairing) String() string {
	if p == Within {
		return "within"
	}
	return "between"
}

func (p Pairing) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Pairing) UnmarshalText(b []byte) error {
	switch string(b) {
	case "within":
		*p = Within
	case "between":
		*p = Between
	default:
		return fmt.Errorf("unknown pairing %q", b)
	}
	return nil
}

// Cell is one entry of a GroupKappaMatrix.
type Cell struct {
	Kind    CellKind `json:"kind"`
	Score   Score    `json:"score"`
	Pairing Pairing  `json:"pairing"`
}

// GroupKappaMatrix holds pairwise kappa between every rater of every group in
// one round for one category. Raters are in group order, then rater order.
type GroupKappaMatrix struct {
	Round    int                   `json:"round"`
	Category string                `json:"category"`
	Raters   []annotations.RaterID `json:"raters"`
	Cells    [][]Cell              `json:"cells"`
}

// At returns the computed score for raters i and j regardless of which
// triangle the caller addresses. The diagonal is undefined.
func (m *GroupKappaMatrix) At(i, j int) Score {
	if i == j {
		return UndefinedScore()
	}
	if i > j {
		i, j = j, i
	}
	return m.Cells[i][j].Score
}

// Pairs returns every computed upper-triangle cell with the given pairing.
func (m *GroupKappaMatrix) Pairs(p Pairing) []Cell {
	var out []Cell
	for i := range m.Cells {
		for j := i + 1; j < len(m.Cells[i]); j++ {
			if c := m.Cells[i][j]; c.Kind == Pair && c.Pairing == p {
				out = append(out, c)
			}
		}
	}
	return out
}

// AgreementSummary compares mean kappa of raters sharing a group with mean
// kappa of raters from different groups.
type AgreementSummary struct {
	Round        int    `json:"round"`
	Category     string `json:"category"`
	Within       Score  `json:"within"`
	Between      Score  `json:"between"`
	WithinPairs  int    `json:"within_pairs"`
	BetweenPairs int    `json:"between_pairs"`
}

// SkippedTriple records a triple left out of the pairwise tables.
type SkippedTriple struct {
	annotations.Key
	Raters int    `json:"raters"`
	Reason string `json:"reason"`
}

// Result is the complete output of one pipeline run.
type Result struct {
	Scheme        annotations.Scheme `json:"scheme"`
	Weighting     Weighting          `json:"weighting"`
	Differences   []DifferenceRow    `json:"differences"`
	Kappas        []KappaRow         `json:"kappas"`
	Counts        []CountRow         `json:"counts"`
	Contingencies []ContingencyTable `json:"contingencies"`
	Pooled        []GroupKappaMatrix `json:"pooled"`
	Summaries     []AgreementSummary `json:"summaries"`
	Skipped       []SkippedTriple    `json:"skipped,omitempty"`
}

// Filter selects rows by key. Zero fields match everything.
type Filter struct {
	Round    int
	Group    int
	Category string
}

// Match reports whether k passes the filter.
func (f Filter) Match(k annotations.Key) bool {
	return (f.Round == 0 || f.Round == k.Round) &&
		(f.Group == 0 || f.Group == k.Group) &&
		(f.Category == "" || f.Category == k.Category)
}

func (f Filter) matchRound(round int, category string) bool {
	return (f.Round == 0 || f.Round == round) && (f.Category == "" || f.Category == category)
}

// DifferencesFor returns the difference rows passing f.
func (r *Result) DifferencesFor(f Filter) []DifferenceRow {
	var out []DifferenceRow
	for _, row := range r.Differences {
		if f.Match(row.Key) {
			out = append(out, row)
		}
	}
	return out
}

// KappasFor returns the kappa rows passing f.
func (r *Result) KappasFor(f Filter) []KappaRow {
	var out []KappaRow
	for _, row := range r.Kappas {
		if f.Match(row.Key) {
			out = append(out, row)
		}
	}
	return out
}

// CountsFor returns the count rows passing f.
func (r *Result) CountsFor(f Filter) []CountRow {
	var out []CountRow
	for _, row := range r.Counts {
		if f.Match(row.Key) {
			out = append(out, row)
		}
	}
	return out
}

// ContingenciesFor returns the contingency tables passing f.
func (r *Result) ContingenciesFor(f Filter) []ContingencyTable {
	var out []ContingencyTable
	for _, t := range r.Contingencies {
		if f.Match(t.Key) {
			out = append(out, t)
		}
	}
	return out
}

// PooledFor returns the group kappa matrices passing f. Group is ignored.
func (r *Result) PooledFor(f Filter) []GroupKappaMatrix {
	var out []GroupKappaMatrix
	for _, m := range r.Pooled {
		if f.matchRound(m.Round, m.Category) {
			out = append(out, m)
		}
	}
	return out
}

// SummariesFor returns the within/between summaries passing f. Group is
// ignored.
func (r *Result) SummariesFor(f Filter) []AgreementSummary {
	var out []AgreementSummary
	for _, s := range r.Summaries {
		if f.matchRound(s.Round, s.Category) {
			out = append(out, s)
		}
	}
	return out
}
