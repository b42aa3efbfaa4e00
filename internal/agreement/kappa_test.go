package agreement

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/agreement.report/internal/annotations"
)

func TestWeightedKappa(t *testing.T) {
	s := annotations.DefaultScheme()
	tests := []struct {
		name string
		a, b []int
		w    Weighting
		want float64
	}{
		{"identical", []int{1, 2, 3, 4, 5}, []int{1, 2, 3, 4, 5}, Linear, 1.0},
		{"one adjacent miss linear", []int{1, 2, 3, 4, 5}, []int{1, 2, 3, 4, 4}, Linear, 0.8648648648648649},
		{"one adjacent miss quadratic", []int{1, 2, 3, 4, 5}, []int{1, 2, 3, 4, 4}, Quadratic, 0.9411764705882353},
		{"one adjacent miss unweighted", []int{1, 2, 3, 4, 5}, []int{1, 2, 3, 4, 4}, Unweighted, 0.75},
		{"reversed", []int{1, 2, 3, 4, 5}, []int{5, 4, 3, 2, 1}, Linear, -0.5},
		{"perfect disagreement", []int{1, 2, 1, 2}, []int{2, 1, 2, 1}, Linear, -1.0},
		{"chance agreement", []int{1, 1, 2, 2}, []int{1, 2, 1, 2}, Linear, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WeightedKappa(tt.a, tt.b, s, tt.w)
			require.NoError(t, err)
			require.True(t, got.Defined, "kappa should be defined")
			assert.InDelta(t, tt.want, got.Value, 1e-9)
		})
	}
}

func TestWeightedKappa_ConstantRaterIsUndefined(t *testing.T) {
	s := annotations.DefaultScheme()
	for _, pair := range [][2][]int{
		{{3, 3, 3, 3}, {1, 2, 3, 4}},
		{{1, 2, 3, 4}, {5, 5, 5, 5}},
		{{4, 4, 4}, {4, 4, 4}},
	} {
		got, err := WeightedKappa(pair[0], pair[1], s, Linear)
		require.NoError(t, err)
		assert.False(t, got.Defined, "kappa(%v, %v) should be undefined", pair[0], pair[1])
		assert.Nil(t, got.Ptr())
	}
}

func TestWeightedKappa_EmptyIsUndefined(t *testing.T) {
	got, err := WeightedKappa(nil, nil, annotations.DefaultScheme(), Linear)
	require.NoError(t, err)
	assert.False(t, got.Defined)
}

func TestWeightedKappa_IntegrityErrors(t *testing.T) {
	s := annotations.DefaultScheme()

	_, err := WeightedKappa([]int{1, 2}, []int{1}, s, Linear)
	assert.True(t, errors.Is(err, ErrIntegrity), "length mismatch: got %v", err)

	_, err = WeightedKappa([]int{1, 6}, []int{1, 2}, s, Linear)
	assert.True(t, errors.Is(err, ErrIntegrity), "out of scale: got %v", err)
}

func TestWeightedKappa_AlwaysInRange(t *testing.T) {
	s := annotations.DefaultScheme()
	// Deterministic pseudo-random series covering the whole scale.
	seed := 7
	next := func() int {
		seed = (seed*1103515245 + 12345) % 2147483648
		return seed%5 + 1
	}
	for trial := 0; trial < 200; trial++ {
		a := make([]int, 20)
		b := make([]int, 20)
		for i := range a {
			a[i], b[i] = next(), next()
		}
		for _, w := range []Weighting{Linear, Quadratic, Unweighted} {
			got, err := WeightedKappa(a, b, s, w)
			require.NoError(t, err)
			if got.Defined {
				assert.GreaterOrEqual(t, got.Value, -1.0)
				assert.LessOrEqual(t, got.Value, 1.0)
			}
		}
	}
}

func TestParseWeighting(t *testing.T) {
	for in, want := range map[string]Weighting{
		"":           Linear,
		"linear":     Linear,
		" Quadratic": Quadratic,
		"unweighted": Unweighted,
		"none":       Unweighted,
	} {
		got, err := ParseWeighting(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseWeighting("cubic")
	assert.Error(t, err)
}

func TestWeighting_Text(t *testing.T) {
	var w Weighting
	require.NoError(t, w.UnmarshalText([]byte("quadratic")))
	assert.Equal(t, Quadratic, w)
	b, err := w.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "quadratic", string(b))
	assert.Error(t, w.UnmarshalText([]byte("bogus")))
}

func TestCrossTab(t *testing.T) {
	s := annotations.DefaultScheme()
	cells, err := crossTab([]int{1, 1, 5}, []int{1, 2, 5}, s)
	require.NoError(t, err)
	want := [][]int{
		{1, 1, 0, 0, 0},
		{0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0},
		{0, 0, 0, 0, 1},
	}
	assert.Equal(t, want, cells)
}
