package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/gkmerge/internal/constants"
	"github.com/nvandessel/gkmerge/internal/generators"
)

// WindowConfig configures a contagion window: the sweep parameter of the
// recipe (link probability or mean degree) runs over Points values from Min
// to Max.
type WindowConfig struct {
	Params `yaml:",inline"`

	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Points int     `json:"points" yaml:"points"`
	Digits int     `json:"digits" yaml:"digits"`
}

// DefaultWindowConfig sweeps the Erdos-Renyi link probability over [0, 0.01].
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Params: DefaultParams(),
		Min:    0,
		Max:    0.01,
		Points: 25,
		Digits: constants.DefaultPointDigits,
	}
}

// Validate reports every problem with the configuration.
func (c WindowConfig) Validate() error {
	errs := []error{c.Params.Validate()}
	if c.Recipe.SweepParameter() == "" {
		errs = append(errs, fmt.Errorf("%w: topology %q cannot be swept", ErrInvalidConfig, c.Recipe.Topology))
	}
	if c.Points < 1 {
		errs = append(errs, fmt.Errorf("%w: points must be positive, got %d", ErrInvalidConfig, c.Points))
	}
	if c.Max < c.Min {
		errs = append(errs, fmt.Errorf("%w: max %v below min %v", ErrInvalidConfig, c.Max, c.Min))
	}
	return errors.Join(errs...)
}

// ContagionWindow measures cascades across the sweep. Every point gets Runs
// freshly generated networks; each is shocked once and cascaded.
func ContagionWindow(ctx context.Context, cfg WindowConfig, opts ...Option) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := newRunner(opts)
	cfg.Seed = resolveSeed(cfg.Seed)

	xs, err := PointRange(cfg.Min, cfg.Max, cfg.Points, cfg.Digits)
	if err != nil {
		return nil, err
	}
	recipes := make([]generators.Recipe, len(xs))
	points := make([]Point, len(xs))
	for i, x := range xs {
		if recipes[i], err = cfg.Recipe.WithSweep(x); err != nil {
			return nil, err
		}
		points[i] = Point{X: x, Runs: make([]RunData, cfg.Runs)}
	}
	seeding := cfg.Seeding
	seeding.Tracer = r.tracer

	res := &Result{
		ID:         uuid.NewString(),
		Kind:       KindContagionWindow,
		CreatedAt:  time.Now().UTC(),
		Attributes: cfg.Params.attributes(),
	}
	param := cfg.Recipe.SweepParameter()
	res.Attributes[param+"_min"] = cfg.Min
	res.Attributes[param+"_max"] = cfg.Max
	res.Attributes[param+"_points"] = cfg.Points
	res.Attributes[param+"_vals"] = xs
	if cfg.Recipe.Topology == generators.TopologyChungLu {
		res.Attributes["gamma"] = cfg.Recipe.Gamma
	}

	r.logger.Info("contagion window started",
		"id", res.ID, "topology", cfg.Recipe.Topology, "points", len(xs), "runs", cfg.Runs, "seed", cfg.Seed)

	total := len(xs) * cfg.Runs
	finished := 0
	perPoint := make([]int, len(xs))
	job := func(_ context.Context, k int) error {
		i, j := k/cfg.Runs, k%cfg.Runs
		net, err := recipes[i].Build(realizationRand(cfg.Seed, k), seeding)
		if err != nil {
			return fmt.Errorf("point %v run %d: %w", xs[i], j, err)
		}
		data, err := contagion(net, cfg.Params)
		if err != nil {
			return fmt.Errorf("point %v run %d: %w", xs[i], j, err)
		}
		points[i].Runs[j] = data
		return nil
	}
	done := func(k int) {
		finished++
		i := k / cfg.Runs
		perPoint[i]++
		if perPoint[i] == cfg.Runs {
			r.logger.Debug("sweep point finished", "id", res.ID, param, xs[i])
		}
		if r.progress != nil {
			r.progress(finished, total)
		}
	}
	start := time.Now()
	if err := forEach(ctx, cfg.Workers, total, job, done); err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	res.Points = points

	r.logger.Info("contagion window finished", "id", res.ID, "duration", res.Duration)
	return res, nil
}
