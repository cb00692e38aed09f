// Package stats aggregates the per-run measurements of contagion
// experiments. Missing measurements are encoded as NaN and skipped.
package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrLengthMismatch is returned when aligned columns differ in length.
var ErrLengthMismatch = errors.New("columns differ in length")

// Missing marks a measurement that was not taken for a run.
var Missing = math.NaN()

// dropMissing returns the non-NaN values of xs.
func dropMissing(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// Mean returns the arithmetic mean of the present values, or 0 if none.
func Mean(xs []float64) float64 {
	xs = dropMissing(xs)
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// Std returns the population standard deviation of the present values, or
// 0 if none.
func Std(xs []float64) float64 {
	xs = dropMissing(xs)
	if len(xs) == 0 {
		return 0
	}
	return stat.PopStdDev(xs, nil)
}

// FilteredMean returns the mean of the present values accepted by keep.
func FilteredMean(xs []float64, keep func(float64) bool) float64 {
	var kept []float64
	for _, x := range dropMissing(xs) {
		if keep(x) {
			kept = append(kept, x)
		}
	}
	return Mean(kept)
}

// ExternallyFilteredMean returns the mean of xs[i] over the indices where
// keep(by[i]) holds.
func ExternallyFilteredMean(xs, by []float64, keep func(float64) bool) (float64, error) {
	if len(xs) != len(by) {
		return 0, fmt.Errorf("%w: %d values filtered by %d", ErrLengthMismatch, len(xs), len(by))
	}
	var kept []float64
	for i, x := range xs {
		if keep(by[i]) {
			kept = append(kept, x)
		}
	}
	return Mean(kept), nil
}

// Fraction returns the share of present values accepted by cond.
func Fraction(xs []float64, cond func(float64) bool) float64 {
	xs = dropMissing(xs)
	if len(xs) == 0 {
		return 0
	}
	return float64(floats.Count(cond, xs)) / float64(len(xs))
}

func above(threshold float64) func(float64) bool {
	return func(x float64) bool { return x > threshold }
}

// ContagionExtent is the mean defaulted fraction of the runs that ended in
// a global cascade, i.e. exceeded threshold.
func ContagionExtent(fractions []float64, threshold float64) float64 {
	return FilteredMean(fractions, above(threshold))
}

// ContagionFrequency is the share of runs that ended in a global cascade.
func ContagionFrequency(fractions []float64, threshold float64) float64 {
	return Fraction(fractions, above(threshold))
}

// CascadeSteps is the mean number of rounds of the runs that ended in a
// global cascade.
func CascadeSteps(steps, fractions []float64, threshold float64) (float64, error) {
	return ExternallyFilteredMean(steps, fractions, above(threshold))
}

// Columns holds the measurements of all runs at one sweep point, one slice
// per quantity, aligned by run.
type Columns struct {
	DF               []float64
	AF               []float64
	Z                []float64
	Steps            []float64
	LargestDefaulted []float64
}

// Summary condenses the runs of one sweep point.
type Summary struct {
	X                       float64 `json:"x"`
	Runs                    int     `json:"runs"`
	MeanDF                  float64 `json:"mean_df"`
	StdDF                   float64 `json:"std_df"`
	MeanAF                  float64 `json:"mean_af"`
	StdAF                   float64 `json:"std_af"`
	MeanZ                   float64 `json:"mean_z"`
	ContagionExtent         float64 `json:"contagion_extent"`
	ContagionFrequency      float64 `json:"contagion_frequency"`
	AssetContagionExtent    float64 `json:"asset_contagion_extent"`
	AssetContagionFrequency float64 `json:"asset_contagion_frequency"`
	CascadeSteps            float64 `json:"cascade_steps"`
	LargestDefaulted        float64 `json:"largest_defaulted"`
}

// Summarize computes the Summary of one sweep point.
func Summarize(x float64, c Columns, threshold float64) Summary {
	s := Summary{
		X:                       x,
		Runs:                    len(c.DF),
		MeanDF:                  Mean(c.DF),
		StdDF:                   Std(c.DF),
		MeanAF:                  Mean(c.AF),
		StdAF:                   Std(c.AF),
		MeanZ:                   Mean(c.Z),
		ContagionExtent:         ContagionExtent(c.DF, threshold),
		ContagionFrequency:      ContagionFrequency(c.DF, threshold),
		AssetContagionExtent:    ContagionExtent(c.AF, threshold),
		AssetContagionFrequency: ContagionFrequency(c.AF, threshold),
		LargestDefaulted:        Mean(c.LargestDefaulted),
	}
	// Steps are absent for sequential cascades.
	if steps, err := CascadeSteps(c.Steps, c.DF, threshold); err == nil {
		s.CascadeSteps = steps
	}
	return s
}
