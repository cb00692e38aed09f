package experiment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PointRange returns points evenly spaced values from lo to hi inclusive,
// each rounded half away from zero to digits decimal places.
func PointRange(lo, hi float64, points, digits int) ([]float64, error) {
	if points < 1 {
		return nil, fmt.Errorf("%w: points must be positive, got %d", ErrInvalidConfig, points)
	}
	if digits < 0 {
		return nil, fmt.Errorf("%w: digits must be non-negative, got %d", ErrInvalidConfig, digits)
	}
	if points == 1 {
		return []float64{round(lo, digits)}, nil
	}
	start := decimal.NewFromFloat(lo)
	step := decimal.NewFromFloat(hi).Sub(start).Div(decimal.NewFromInt(int64(points - 1)))
	out := make([]float64, points)
	for i := range out {
		v := start.Add(step.Mul(decimal.NewFromInt(int64(i))))
		out[i] = v.Round(int32(digits)).InexactFloat64()
	}
	return out, nil
}

func round(x float64, digits int) float64 {
	return decimal.NewFromFloat(x).Round(int32(digits)).InexactFloat64()
}

// MergeRounds returns the merge-round checkpoints first, first+step, ... up
// to last, with step = last/points rounded down and at least 1.
func MergeRounds(first, last, points int) ([]int, error) {
	if first < 0 || last < first {
		return nil, fmt.Errorf("%w: need 0 <= first <= last, got %d..%d", ErrInvalidConfig, first, last)
	}
	if points < 1 {
		return nil, fmt.Errorf("%w: points must be positive, got %d", ErrInvalidConfig, points)
	}
	step := last / points
	if step < 1 {
		step = 1
	}
	var out []int
	for mr := first; mr <= last; mr += step {
		out = append(out, mr)
	}
	return out, nil
}
