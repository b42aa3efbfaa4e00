// Package agreement derives inter-annotator agreement tables from a Corpus:
// difference histograms, pairwise weighted kappa, rating counts, contingency
// tables and the pooled per-round kappa matrix with its within/between
// summary.
package agreement

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/agreement.report/internal/annotations"
	"github.com/banshee-data/agreement.report/internal/monitoring"
)

// Aggregator computes every derived table. Each derivation is a pure function
// of the Corpus and can be called on its own.
type Aggregator struct {
	Weighting Weighting
}

// NewAggregator returns an aggregator using w for every kappa it computes.
func NewAggregator(w Weighting) *Aggregator {
	return &Aggregator{Weighting: w}
}

// forEachMatrix visits every triple of the corpus in key order.
func forEachMatrix(c *annotations.Corpus, fn func(annotations.Key, *annotations.RatingMatrix) error) error {
	for _, k := range c.Keys() {
		if err := fn(k, c.Matrix(k)); err != nil {
			return err
		}
	}
	return nil
}

// forEachPair visits the triples that follow the two-rater design.
func forEachPair(c *annotations.Corpus, fn func(k annotations.Key, a, b []int) error) error {
	return forEachMatrix(c, func(k annotations.Key, m *annotations.RatingMatrix) error {
		a, b, ok := m.Pair()
		if !ok {
			return nil
		}
		return fn(k, a, b)
	})
}

// Skipped lists triples the pairwise derivations leave out because they do
// not hold exactly two raters.
func (g *Aggregator) Skipped(c *annotations.Corpus) []SkippedTriple {
	var out []SkippedTriple
	_ = forEachMatrix(c, func(k annotations.Key, m *annotations.RatingMatrix) error {
		if _, _, ok := m.Pair(); !ok {
			out = append(out, SkippedTriple{
				Key:    k,
				Raters: len(m.Raters),
				Reason: fmt.Sprintf("pairwise tables need 2 raters, found %d", len(m.Raters)),
			})
		}
		return nil
	})
	return out
}

// Differences returns a dense |a-b| histogram per two-rater triple: one row
// for every bucket 0..MaxDifference.
func (g *Aggregator) Differences(c *annotations.Corpus) ([]DifferenceRow, error) {
	s := c.Scheme()
	var out []DifferenceRow
	err := forEachPair(c, func(k annotations.Key, a, b []int) error {
		if len(a) != len(b) {
			return fmt.Errorf("%w: %s rater lengths differ (%d vs %d)", ErrIntegrity, k, len(a), len(b))
		}
		buckets := make([]int, s.MaxDifference()+1)
		for i := range a {
			d := a[i] - b[i]
			if d < 0 {
				d = -d
			}
			if d >= len(buckets) {
				return fmt.Errorf("%w: %s item %d difference %d exceeds %d",
					ErrIntegrity, k, i+1, d, s.MaxDifference())
			}
			buckets[d]++
		}
		for d, n := range buckets {
			out = append(out, DifferenceRow{Key: k, Difference: d, Count: n})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Kappas returns the pairwise kappa of every two-rater triple.
func (g *Aggregator) Kappas(c *annotations.Corpus) ([]KappaRow, error) {
	s := c.Scheme()
	var out []KappaRow
	err := forEachPair(c, func(k annotations.Key, a, b []int) error {
		score, err := WeightedKappa(a, b, s, g.Weighting)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		out = append(out, KappaRow{Key: k, Kappa: score})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Counts flattens every rater sequence into one row per observation.
func (g *Aggregator) Counts(c *annotations.Corpus) ([]CountRow, error) {
	var out []CountRow
	err := forEachMatrix(c, func(k annotations.Key, m *annotations.RatingMatrix) error {
		for _, r := range m.Raters {
			for _, v := range r.Ratings {
				out = append(out, CountRow{Key: k, Rater: r.Rater, Rating: v})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Contingencies cross-tabulates every two-rater triple.
func (g *Aggregator) Contingencies(c *annotations.Corpus) ([]ContingencyTable, error) {
	s := c.Scheme()
	var out []ContingencyTable
	err := forEachPair(c, func(k annotations.Key, a, b []int) error {
		cells, err := crossTab(a, b, s)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		score, err := WeightedKappa(a, b, s, g.Weighting)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		out = append(out, ContingencyTable{Key: k, ScaleMin: s.ScaleMin, Cells: cells, Kappa: score})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GroupKappa pools every rater of every group of a round, per category, and
// computes kappa for each pair. Pairs are tagged Within when both raters
// belong to the same group. Two pooled raters from differently truncated
// groups are compared over their shorter common length.
func (g *Aggregator) GroupKappa(c *annotations.Corpus) ([]GroupKappaMatrix, error) {
	s := c.Scheme()
	var out []GroupKappaMatrix
	for _, round := range c.Rounds() {
		for _, category := range s.Categories {
			var pooled []annotations.RaterSeries
			for _, group := range c.GroupsIn(round) {
				m := c.Matrix(annotations.Key{Round: round, Group: group, Category: category})
				if m == nil {
					continue
				}
				pooled = append(pooled, m.Raters...)
			}
			if len(pooled) == 0 {
				continue
			}
			m, err := g.poolMatrix(round, category, pooled, s)
			if err != nil {
				return nil, err
			}
			out = append(out, *m)
		}
	}
	return out, nil
}

func (g *Aggregator) poolMatrix(round int, category string, pooled []annotations.RaterSeries, s annotations.Scheme) (*GroupKappaMatrix, error) {
	n := len(pooled)
	m := &GroupKappaMatrix{
		Round:    round,
		Category: category,
		Raters:   make([]annotations.RaterID, n),
		Cells:    make([][]Cell, n),
	}
	for i, r := range pooled {
		m.Raters[i] = r.Rater
		m.Cells[i] = make([]Cell, n)
	}
	for i := 0; i < n; i++ {
		m.Cells[i][i] = Cell{Kind: Self, Pairing: Within}
		for j := i + 1; j < n; j++ {
			a, b := pooled[i].Ratings, pooled[j].Ratings
			if len(a) > len(b) {
				a = a[:len(b)]
			} else {
				b = b[:len(a)]
			}
			score, err := WeightedKappa(a, b, s, g.Weighting)
			if err != nil {
				return nil, fmt.Errorf("round %d category %q raters %s/%s: %w",
					round, category, pooled[i].Rater, pooled[j].Rater, err)
			}
			pairing := Between
			if pooled[i].Rater.SameGroup(pooled[j].Rater) {
				pairing = Within
			}
			m.Cells[i][j] = Cell{Kind: Pair, Score: score, Pairing: pairing}
			m.Cells[j][i] = Cell{Kind: Mirror, Score: score, Pairing: pairing}
		}
	}
	return m, nil
}

// Summaries averages the defined pair scores of each pooled matrix, split by
// pairing. A side with no defined pairs is undefined.
func (g *Aggregator) Summaries(matrices []GroupKappaMatrix) []AgreementSummary {
	out := make([]AgreementSummary, 0, len(matrices))
	for i := range matrices {
		m := &matrices[i]
		within, nw := meanDefined(m.Pairs(Within))
		between, nb := meanDefined(m.Pairs(Between))
		out = append(out, AgreementSummary{
			Round:        m.Round,
			Category:     m.Category,
			Within:       within,
			Between:      between,
			WithinPairs:  nw,
			BetweenPairs: nb,
		})
	}
	return out
}

func meanDefined(cells []Cell) (Score, int) {
	var xs []float64
	for _, c := range cells {
		if c.Score.Defined {
			xs = append(xs, c.Score.Value)
		}
	}
	if len(xs) == 0 {
		return UndefinedScore(), 0
	}
	return DefinedScore(stat.Mean(xs, nil)), len(xs)
}

// Run computes every table over c. Any derivation error aborts the run and no
// partial Result is returned.
func (g *Aggregator) Run(c *annotations.Corpus) (*Result, error) {
	res := &Result{Scheme: c.Scheme(), Weighting: g.Weighting}
	var err error
	if res.Differences, err = g.Differences(c); err != nil {
		return nil, fmt.Errorf("differences: %w", err)
	}
	if res.Kappas, err = g.Kappas(c); err != nil {
		return nil, fmt.Errorf("kappa: %w", err)
	}
	if res.Counts, err = g.Counts(c); err != nil {
		return nil, fmt.Errorf("counts: %w", err)
	}
	if res.Contingencies, err = g.Contingencies(c); err != nil {
		return nil, fmt.Errorf("contingency: %w", err)
	}
	if res.Pooled, err = g.GroupKappa(c); err != nil {
		return nil, fmt.Errorf("group kappa: %w", err)
	}
	res.Summaries = g.Summaries(res.Pooled)
	res.Skipped = g.Skipped(c)
	for _, s := range res.Skipped {
		monitoring.Logf("skipping %s in pairwise tables: %s", s.Key, s.Reason)
	}
	return res, nil
}
