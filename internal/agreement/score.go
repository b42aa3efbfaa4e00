package agreement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Score is a statistic that may be undefined (for example kappa over a rater
// who gave the same rating to every item). An undefined Score never carries a
// usable Value and encodes as JSON null.
type Score struct {
	Value   float64
	Defined bool
}

// DefinedScore wraps a computed value. NaN and Inf become undefined.
func DefinedScore(v float64) Score {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Score{}
	}
	return Score{Value: v, Defined: true}
}

// UndefinedScore is the explicit missing-value marker.
func UndefinedScore() Score { return Score{} }

// Ptr returns nil for an undefined score, for chart and SQL NULL values.
func (s Score) Ptr() *float64 {
	if !s.Defined {
		return nil
	}
	v := s.Value
	return &v
}

func (s Score) String() string {
	if !s.Defined {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", s.Value)
}

func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

func (s *Score) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = Score{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = DefinedScore(v)
	return nil
}
