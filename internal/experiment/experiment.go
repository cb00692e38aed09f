// Package experiment runs Monte-Carlo contagion experiments over families of
// generated networks: contagion windows, which sweep a topology parameter,
// and continuous mergers, which track stability while banks merge.
//
// Realizations are independent. Each owns its Network and a PCG random
// source derived from the experiment seed and the realization index, so a
// seed reproduces a Result regardless of how many workers ran it.
package experiment

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/nvandessel/gkmerge/internal/constants"
	"github.com/nvandessel/gkmerge/internal/generators"
	"github.com/nvandessel/gkmerge/internal/network"
	"github.com/nvandessel/gkmerge/internal/stats"
)

// ErrInvalidConfig is returned for experiment configurations that cannot run.
var ErrInvalidConfig = fmt.Errorf("%w: invalid experiment configuration", network.ErrValidation)

// Kind identifies the experiment that produced a Result.
type Kind string

const (
	KindContagionWindow   Kind = "contagion_window"
	KindContinuousMergers Kind = "continuous_mergers"
)

// ShockMode selects the bank receiving the initial shock.
type ShockMode string

const (
	ShockRandom      ShockMode = "random"
	ShockMaxInDegree ShockMode = "max_in_degree"
	ShockLargest     ShockMode = "largest"
)

// Valid returns true if the shock mode is a recognized value.
func (s ShockMode) Valid() bool {
	switch s {
	case ShockRandom, ShockMaxInDegree, ShockLargest:
		return true
	}
	return false
}

// ParseShockMode converts a configuration value into a ShockMode.
func ParseShockMode(s string) (ShockMode, error) {
	m := ShockMode(s)
	if s == "max_in_deg" {
		m = ShockMaxInDegree
	}
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown shock mode %q (valid: random, max_in_degree, largest)", ErrInvalidConfig, s)
	}
	return m, nil
}

// Params are the settings shared by all experiments.
type Params struct {
	Recipe  generators.Recipe  `json:"recipe" yaml:"recipe"`
	Seeding generators.Options `json:"seeding" yaml:"seeding"`

	// Runs is the number of realizations per sweep point.
	Runs int `json:"runs" yaml:"runs"`
	// Seed makes the experiment reproducible. Zero draws a random seed,
	// which is recorded in the Result.
	Seed uint64 `json:"seed" yaml:"seed"`
	// Workers bounds the number of concurrent realizations. Zero or less
	// means one.
	Workers int `json:"-" yaml:"workers"`

	Shock             ShockMode           `json:"shock_mode" yaml:"shock_mode"`
	Mode              network.CascadeMode `json:"contagion_mode" yaml:"contagion_mode"`
	RecoveryRate      float64             `json:"recovery_rate" yaml:"recovery_rate"`
	DeprecationFactor float64             `json:"deprecation_factor" yaml:"deprecation_factor"`
}

// DefaultParams returns the settings of the reference experiments.
func DefaultParams() Params {
	return Params{
		Recipe: generators.Recipe{
			Topology: generators.TopologyFastErdosRenyi,
			Banks:    constants.DefaultBanks,
			Gamma:    3,
		},
		Seeding: generators.DefaultOptions(),
		Runs:    constants.DefaultRuns,
		Workers: 1,
		Shock:   ShockRandom,
		Mode:    network.Simultaneous,
	}
}

// Validate reports every problem with the parameters.
func (p Params) Validate() error {
	var errs []error
	if !p.Recipe.Topology.Valid() {
		errs = append(errs, fmt.Errorf("%w: unknown topology %q", ErrInvalidConfig, p.Recipe.Topology))
	}
	if p.Recipe.Topology == generators.TopologyChungLu && !(p.Recipe.Gamma > 2) {
		errs = append(errs, fmt.Errorf("%w: chung_lu needs gamma > 2, got %v", ErrInvalidConfig, p.Recipe.Gamma))
	}
	if p.Recipe.Banks < 1 {
		errs = append(errs, fmt.Errorf("%w: banks must be positive, got %d", ErrInvalidConfig, p.Recipe.Banks))
	}
	if p.Runs < 1 {
		errs = append(errs, fmt.Errorf("%w: runs must be positive, got %d", ErrInvalidConfig, p.Runs))
	}
	if !p.Shock.Valid() {
		errs = append(errs, fmt.Errorf("%w: unknown shock mode %q", ErrInvalidConfig, p.Shock))
	}
	if !p.Mode.Valid() {
		errs = append(errs, fmt.Errorf("%w: unknown contagion mode %q", ErrInvalidConfig, p.Mode))
	}
	if !(p.RecoveryRate >= 0 && p.RecoveryRate <= 1) {
		errs = append(errs, fmt.Errorf("%w: recovery rate must be in [0, 1], got %v", ErrInvalidConfig, p.RecoveryRate))
	}
	if !(p.DeprecationFactor >= 0 && p.DeprecationFactor < 1) {
		errs = append(errs, fmt.Errorf("%w: deprecation factor must be in [0, 1), got %v", ErrInvalidConfig, p.DeprecationFactor))
	}
	if p.Mode == network.Sequential && p.DeprecationFactor > 0 {
		errs = append(errs, network.ErrSequentialFireSale)
	}
	if err := p.Seeding.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (p Params) attributes() map[string]any {
	return map[string]any{
		"gen":                string(p.Recipe.Topology),
		"n":                  p.Recipe.Banks,
		"runs":               p.Runs,
		"seed":               p.Seed,
		"alpha":              p.Seeding.Alpha,
		"kappa":              p.Seeding.Kappa,
		"c":                  p.Seeding.C,
		"assets":             p.Seeding.Assets,
		"shock_mode":         string(p.Shock),
		"contagion_mode":     string(p.Mode),
		"recovery_rate":      p.RecoveryRate,
		"deprecation_factor": p.DeprecationFactor,
	}
}

// RunData is the measurement of one realization.
type RunData struct {
	DF    float64 `json:"df"`
	AF    float64 `json:"af"`
	Z     float64 `json:"z"`
	Steps int     `json:"steps"`
	// LargestDefaulted reports whether the bank with the highest merge
	// state defaulted. Only continuous mergers record it.
	LargestDefaulted *bool `json:"lb_def,omitempty"`
}

// Point holds all realizations at one sweep value: a link probability or
// mean degree for contagion windows, a merge round for continuous mergers.
type Point struct {
	X    float64   `json:"x"`
	Runs []RunData `json:"runs"`
}

// Columns rearranges the runs for aggregation. Cascade steps are only
// included when they were measured.
func (p Point) Columns(withSteps bool) stats.Columns {
	c := stats.Columns{
		DF:               make([]float64, len(p.Runs)),
		AF:               make([]float64, len(p.Runs)),
		Z:                make([]float64, len(p.Runs)),
		LargestDefaulted: make([]float64, len(p.Runs)),
	}
	if withSteps {
		c.Steps = make([]float64, len(p.Runs))
	}
	for i, r := range p.Runs {
		c.DF[i], c.AF[i], c.Z[i] = r.DF, r.AF, r.Z
		if withSteps {
			c.Steps[i] = float64(r.Steps)
		}
		c.LargestDefaulted[i] = stats.Missing
		if r.LargestDefaulted != nil {
			c.LargestDefaulted[i] = 0
			if *r.LargestDefaulted {
				c.LargestDefaulted[i] = 1
			}
		}
	}
	return c
}

// Result is the complete output of an experiment.
type Result struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	CreatedAt  time.Time      `json:"created_at"`
	Duration   time.Duration  `json:"duration_ns"`
	Attributes map[string]any `json:"attributes"`
	Points     []Point        `json:"data"`
}

// Summaries aggregates every point. threshold is the defaulted fraction
// above which a run counts as a global cascade.
func (r *Result) Summaries(threshold float64) []stats.Summary {
	withSteps := r.Attributes["contagion_mode"] != string(network.Sequential)
	out := make([]stats.Summary, len(r.Points))
	for i, p := range r.Points {
		out[i] = stats.Summarize(p.X, p.Columns(withSteps), threshold)
	}
	return out
}

// ProgressFunc receives the number of finished and total realizations.
// It is called from worker goroutines, one call at a time.
type ProgressFunc func(done, total int)

type runner struct {
	logger   *slog.Logger
	progress ProgressFunc
	tracer   network.Tracer
}

// Option configures an experiment run.
type Option func(*runner)

// WithLogger sets the logger for progress and lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) { r.logger = l }
}

// WithProgress sets a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(r *runner) { r.progress = fn }
}

// WithTracer attaches a cascade and merge event receiver to every network.
// The tracer must be safe for concurrent use when Workers > 1.
func WithTracer(t network.Tracer) Option {
	return func(r *runner) { r.tracer = t }
}

func newRunner(opts []Option) *runner {
	r := &runner{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// realizationRand derives the random source of realization i.
func realizationRand(seed uint64, i int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(i)))
}

func resolveSeed(seed uint64) uint64 {
	for seed == 0 {
		seed = rand.Uint64()
	}
	return seed
}

// Shock applies the initial shock selected by mode and returns the shocked
// bank.
func Shock(net *network.Network, mode ShockMode) (network.BankID, error) {
	switch mode {
	case ShockMaxInDegree:
		return net.ShockMaxInDegree()
	case ShockLargest:
		return net.ShockLargest()
	default:
		return net.ShockRandom()
	}
}

// contagion shocks the network, runs the cascade and measures it.
func contagion(net *network.Network, p Params) (RunData, error) {
	initial, err := Shock(net, p.Shock)
	if err != nil {
		return RunData{}, err
	}
	res, err := net.Cascade(initial, p.Mode, p.RecoveryRate, p.DeprecationFactor, false)
	if err != nil {
		return RunData{}, err
	}
	return RunData{
		DF:    res.DefaultedFraction,
		AF:    res.DefaultedAssetFraction,
		Z:     net.MeanDegree(),
		Steps: res.Rounds,
	}, nil
}
