// Package annotations holds the normalized rating model (Scheme, Corpus,
// RatingMatrix) and the loader that builds it from per-rater rating files laid
// out as <base>/round<R>/group<G>/*.
package annotations

import (
	"fmt"
	"sort"
)

// Default experiment constants.
const (
	DefaultRounds        = 5
	DefaultGroups        = 5
	DefaultScaleMin      = 1
	DefaultScaleMax      = 5
	DefaultItemsPerRater = 50
)

// DefaultCategories are the rating dimensions every rater file carries, in
// display order.
var DefaultCategories = []string{
	"Appropriateness",
	"Information content of outputs",
	"Humanlikeness",
}

// Scheme fixes the shape of an annotation experiment. Every Key and rating in a
// Corpus is checked against it.
type Scheme struct {
	Categories    []string `json:"categories"`
	Rounds        int      `json:"rounds"`
	Groups        int      `json:"groups"`
	ScaleMin      int      `json:"scale_min"`
	ScaleMax      int      `json:"scale_max"`
	ItemsPerRater int      `json:"items_per_rater"`
}

// DefaultScheme returns the scheme of the reference experiment.
func DefaultScheme() Scheme {
	cats := make([]string, len(DefaultCategories))
	copy(cats, DefaultCategories)
	return Scheme{
		Categories:    cats,
		Rounds:        DefaultRounds,
		Groups:        DefaultGroups,
		ScaleMin:      DefaultScaleMin,
		ScaleMax:      DefaultScaleMax,
		ItemsPerRater: DefaultItemsPerRater,
	}
}

// Validate checks the scheme is usable.
func (s Scheme) Validate() error {
	if len(s.Categories) == 0 {
		return fmt.Errorf("scheme needs at least one category")
	}
	seen := make(map[string]bool, len(s.Categories))
	for _, c := range s.Categories {
		if c == "" {
			return fmt.Errorf("scheme category names must be non-empty")
		}
		if seen[c] {
			return fmt.Errorf("duplicate category %q", c)
		}
		seen[c] = true
	}
	if s.Rounds < 1 {
		return fmt.Errorf("rounds must be positive, got %d", s.Rounds)
	}
	if s.Groups < 1 {
		return fmt.Errorf("groups must be positive, got %d", s.Groups)
	}
	if s.ScaleMax <= s.ScaleMin {
		return fmt.Errorf("scale max (%d) must exceed scale min (%d)", s.ScaleMax, s.ScaleMin)
	}
	if s.ItemsPerRater < 1 {
		return fmt.Errorf("items_per_rater must be positive, got %d", s.ItemsPerRater)
	}
	return nil
}

// Levels is the number of distinct rating values on the scale.
func (s Scheme) Levels() int { return s.ScaleMax - s.ScaleMin + 1 }

// MaxDifference is the largest possible absolute difference of two ratings.
func (s Scheme) MaxDifference() int { return s.ScaleMax - s.ScaleMin }

// InScale reports whether v is a valid rating.
func (s Scheme) InScale(v int) bool { return v >= s.ScaleMin && v <= s.ScaleMax }

// Labels returns the rating values ScaleMin..ScaleMax.
func (s Scheme) Labels() []int {
	out := make([]int, 0, s.Levels())
	for v := s.ScaleMin; v <= s.ScaleMax; v++ {
		out = append(out, v)
	}
	return out
}

// CategoryIndex returns the display position of a category, or -1.
func (s Scheme) CategoryIndex(category string) int {
	for i, c := range s.Categories {
		if c == category {
			return i
		}
	}
	return -1
}

// ValidKey reports an error if k falls outside the scheme's domains.
func (s Scheme) ValidKey(k Key) error {
	if k.Round < 1 || k.Round > s.Rounds {
		return fmt.Errorf("round %d outside 1..%d", k.Round, s.Rounds)
	}
	if k.Group < 1 || k.Group > s.Groups {
		return fmt.Errorf("group %d outside 1..%d", k.Group, s.Groups)
	}
	if s.CategoryIndex(k.Category) < 0 {
		return fmt.Errorf("unknown category %q", k.Category)
	}
	return nil
}

// Key addresses one (round, group, category) triple.
type Key struct {
	Round    int    `json:"round"`
	Group    int    `json:"group"`
	Category string `json:"category"`
}

func (k Key) String() string {
	return fmt.Sprintf("round=%d group=%d category=%q", k.Round, k.Group, k.Category)
}

// RaterID identifies a rater by the group they annotated with and their
// position within that group.
type RaterID struct {
	Group int `json:"group"`
	Index int `json:"index"`
}

func (r RaterID) String() string {
	return fmt.Sprintf("G%d.R%d", r.Group, r.Index+1)
}

// SameGroup reports whether both raters belong to the same group.
func (r RaterID) SameGroup(o RaterID) bool { return r.Group == o.Group }

// RaterSeries is one rater's ordered ratings for a single category.
type RaterSeries struct {
	Rater   RaterID `json:"rater"`
	Source  string  `json:"source"`
	Ratings []int   `json:"ratings"`
}

// RatingMatrix holds every rater's series for one Key. All series have the
// same length.
type RatingMatrix struct {
	Raters []RaterSeries `json:"raters"`
}

// NewRatingMatrix builds a matrix, rejecting series of unequal length.
func NewRatingMatrix(raters []RaterSeries) (*RatingMatrix, error) {
	if len(raters) == 0 {
		return nil, fmt.Errorf("rating matrix needs at least one rater")
	}
	n := len(raters[0].Ratings)
	for _, r := range raters[1:] {
		if len(r.Ratings) != n {
			return nil, fmt.Errorf("rater %s has %d ratings, rater %s has %d",
				r.Rater, len(r.Ratings), raters[0].Rater, n)
		}
	}
	return &RatingMatrix{Raters: raters}, nil
}

// Items is the number of annotated items per rater.
func (m *RatingMatrix) Items() int {
	if m == nil || len(m.Raters) == 0 {
		return 0
	}
	return len(m.Raters[0].Ratings)
}

// Pair returns the first two rater sequences and true if the matrix follows
// the pairwise design (exactly two raters).
func (m *RatingMatrix) Pair() (a, b []int, ok bool) {
	if m == nil || len(m.Raters) != 2 {
		return nil, nil, false
	}
	return m.Raters[0].Ratings, m.Raters[1].Ratings, true
}

// Corpus is the full round → group → category → RatingMatrix structure,
// keyed by a composite Key. It is read-only once loading completes.
type Corpus struct {
	scheme   Scheme
	matrices map[Key]*RatingMatrix
}

// NewCorpus returns an empty corpus for the scheme.
func NewCorpus(s Scheme) *Corpus {
	return &Corpus{scheme: s, matrices: make(map[Key]*RatingMatrix)}
}

// Scheme returns the corpus scheme.
func (c *Corpus) Scheme() Scheme { return c.scheme }

// Add stores a matrix under k after validating the key and every rating.
func (c *Corpus) Add(k Key, m *RatingMatrix) error {
	if err := c.scheme.ValidKey(k); err != nil {
		return fmt.Errorf("invalid key %s: %w", k, err)
	}
	if m == nil || len(m.Raters) == 0 {
		return fmt.Errorf("empty rating matrix for %s", k)
	}
	if _, exists := c.matrices[k]; exists {
		return fmt.Errorf("duplicate rating matrix for %s", k)
	}
	for _, r := range m.Raters {
		if r.Rater.Group != k.Group {
			return fmt.Errorf("rater %s tagged with wrong group for %s", r.Rater, k)
		}
		for i, v := range r.Ratings {
			if !c.scheme.InScale(v) {
				return fmt.Errorf("rater %s item %d: rating %d outside %d..%d",
					r.Rater, i+1, v, c.scheme.ScaleMin, c.scheme.ScaleMax)
			}
		}
	}
	c.matrices[k] = m
	return nil
}

// Matrix returns the matrix stored under k, or nil.
func (c *Corpus) Matrix(k Key) *RatingMatrix { return c.matrices[k] }

// Len is the number of stored triples.
func (c *Corpus) Len() int { return len(c.matrices) }

// Keys returns every stored key ordered by round, group, then the scheme's
// category order.
func (c *Corpus) Keys() []Key {
	keys := make([]Key, 0, len(c.matrices))
	for k := range c.matrices {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return c.keyLess(keys[i], keys[j]) })
	return keys
}

func (c *Corpus) keyLess(a, b Key) bool {
	if a.Round != b.Round {
		return a.Round < b.Round
	}
	if a.Group != b.Group {
		return a.Group < b.Group
	}
	return c.scheme.CategoryIndex(a.Category) < c.scheme.CategoryIndex(b.Category)
}

// Rounds returns the rounds with at least one populated group, ascending.
func (c *Corpus) Rounds() []int {
	seen := make(map[int]bool)
	for k := range c.matrices {
		seen[k.Round] = true
	}
	return sortedInts(seen)
}

// GroupsIn returns the populated groups of a round, ascending.
func (c *Corpus) GroupsIn(round int) []int {
	seen := make(map[int]bool)
	for k := range c.matrices {
		if k.Round == round {
			seen[k.Group] = true
		}
	}
	return sortedInts(seen)
}

func sortedInts(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
