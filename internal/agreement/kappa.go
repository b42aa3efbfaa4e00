package agreement

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/agreement.report/internal/annotations"
)

// ErrIntegrity reports derived values that cannot come from valid ratings,
// such as a difference wider than the rating scale.
var ErrIntegrity = errors.New("rating integrity violation")

// Weighting selects the disagreement weights of Cohen's Kappa.
type Weighting int

const (
	// Linear weights disagreements by |i-j|.
	Linear Weighting = iota
	// Quadratic weights disagreements by (i-j)^2.
	Quadratic
	// Unweighted counts every disagreement equally.
	Unweighted
)

// ParseWeighting parses "linear", "quadratic" or "unweighted" (empty means
// linear).
func ParseWeighting(s string) (Weighting, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear":
		return Linear, nil
	case "quadratic":
		return Quadratic, nil
	case "unweighted", "none":
		return Unweighted, nil
	}
	return Linear, fmt.Errorf("unknown kappa weighting %q", s)
}

func (w Weighting) String() string {
	switch w {
	case Quadratic:
		return "quadratic"
	case Unweighted:
		return "unweighted"
	default:
		return "linear"
	}
}

func (w Weighting) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

func (w *Weighting) UnmarshalText(b []byte) error {
	parsed, err := ParseWeighting(string(b))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// weights builds the k×k disagreement weight matrix.
func (w Weighting) weights(k int) *mat.Dense {
	m := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			d := math.Abs(float64(i - j))
			switch w {
			case Quadratic:
				m.Set(i, j, d*d)
			case Unweighted:
				if i != j {
					m.Set(i, j, 1)
				}
			default:
				m.Set(i, j, d)
			}
		}
	}
	return m
}

// WeightedKappa computes Cohen's Kappa between two raters over the label set
// ScaleMin..ScaleMax:
//
//	kappa = 1 - sum(W∘O) / sum(W∘E)
//
// where O is the observed contingency table, E the table expected from the
// raters' marginals and W the disagreement weights. If either rater gave the
// same rating to every item the statistic is undefined and an undefined Score
// is returned. Defined results are clamped to [-1, 1].
func WeightedKappa(a, b []int, s annotations.Scheme, w Weighting) (Score, error) {
	if len(a) != len(b) {
		return Score{}, fmt.Errorf("%w: rater lengths differ (%d vs %d)", ErrIntegrity, len(a), len(b))
	}
	if len(a) == 0 {
		return UndefinedScore(), nil
	}
	cells, err := crossTab(a, b, s)
	if err != nil {
		return Score{}, err
	}
	if constant(a) || constant(b) {
		return UndefinedScore(), nil
	}

	k := s.Levels()
	observed := denseOf(cells)
	rows := mat.NewVecDense(k, nil)
	cols := mat.NewVecDense(k, nil)
	for i := 0; i < k; i++ {
		rows.SetVec(i, mat.Sum(observed.RowView(i)))
		cols.SetVec(i, mat.Sum(observed.ColView(i)))
	}

	expected := mat.NewDense(k, k, nil)
	expected.Outer(1/float64(len(a)), rows, cols)

	weights := w.weights(k)
	var wo, we mat.Dense
	wo.MulElem(weights, observed)
	we.MulElem(weights, expected)

	den := mat.Sum(&we)
	if den == 0 {
		return UndefinedScore(), nil
	}
	kappa := 1 - mat.Sum(&wo)/den
	return DefinedScore(math.Max(-1, math.Min(1, kappa))), nil
}

// crossTab counts co-occurring rating pairs: cell (i, j) is the number of
// items where a scored ScaleMin+i and b scored ScaleMin+j.
func crossTab(a, b []int, s annotations.Scheme) ([][]int, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: rater lengths differ (%d vs %d)", ErrIntegrity, len(a), len(b))
	}
	k := s.Levels()
	cells := make([][]int, k)
	for i := range cells {
		cells[i] = make([]int, k)
	}
	for item := range a {
		if !s.InScale(a[item]) || !s.InScale(b[item]) {
			return nil, fmt.Errorf("%w: item %d has ratings (%d, %d) outside %d..%d",
				ErrIntegrity, item+1, a[item], b[item], s.ScaleMin, s.ScaleMax)
		}
		cells[a[item]-s.ScaleMin][b[item]-s.ScaleMin]++
	}
	return cells, nil
}

func denseOf(cells [][]int) *mat.Dense {
	k := len(cells)
	m := mat.NewDense(k, k, nil)
	for i, row := range cells {
		for j, v := range row {
			m.Set(i, j, float64(v))
		}
	}
	return m
}

func constant(xs []int) bool {
	for _, v := range xs[1:] {
		if v != xs[0] {
			return false
		}
	}
	return true
}
