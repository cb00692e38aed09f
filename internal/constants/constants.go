// Package constants provides named model constants used throughout gkmerge.
// This centralizes magic numbers of the contagion model and its experiments.
package constants

// Balance sheet seeding constants
const (
	// TotalAssets is the book value of every bank's assets under homogeneous
	// balance-sheet seeding.
	TotalAssets = 100.0

	// DefaultAlpha is the default fraction of interbank assets in total assets.
	DefaultAlpha = 0.2

	// DefaultKappa is the default fraction of capital in total assets.
	DefaultKappa = 0.04
)

// Price impact constants
const (
	// DevaluationAlpha is the exponent of the exponential fire-sale law
	// phi_new = phi * exp(-DevaluationAlpha * liquidated_fraction).
	DevaluationAlpha = 1.0536

	// DefaultAssetPrice is the base price of a newly created common asset.
	DefaultAssetPrice = 1.0
)

// Experiment constants
const (
	// DefaultBanks is the default network size for experiments.
	DefaultBanks = 1000

	// DefaultRuns is the default number of realizations per sweep point.
	DefaultRuns = 1000

	// DefaultCascadeThreshold is the defaulted fraction above which a run
	// counts as a global cascade.
	DefaultCascadeThreshold = 0.05

	// DefaultPointDigits is the number of decimal digits kept for sweep points.
	DefaultPointDigits = 4
)
