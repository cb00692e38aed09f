package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/gkmerge/internal/network"
)

// MergersConfig configures a continuous-mergers experiment. Each realization
// builds one network and merges banks according to Rule; at every
// checkpoint merge round a contagion is run and undone again.
type MergersConfig struct {
	Params `yaml:",inline"`

	Rule       network.MergeRule `json:"merge_rule" yaml:"merge_rule"`
	FirstRound int               `json:"mr_min" yaml:"first_round"`
	LastRound  int               `json:"mr_max" yaml:"last_round"`
	Points     int               `json:"mr_points" yaml:"points"`
}

// DefaultMergersConfig tracks 500 random mergers on Erdos-Renyi networks.
func DefaultMergersConfig() MergersConfig {
	p := DefaultParams()
	p.Recipe.P = 0.005
	return MergersConfig{
		Params:    p,
		Rule:      network.MergeRandom,
		LastRound: 500,
		Points:    20,
	}
}

// Validate reports every problem with the configuration.
func (c MergersConfig) Validate() error {
	errs := []error{c.Params.Validate()}
	if !c.Rule.Valid() {
		errs = append(errs, fmt.Errorf("%w: unknown merge rule %q", ErrInvalidConfig, c.Rule))
	}
	if _, err := MergeRounds(c.FirstRound, c.LastRound, c.Points); err != nil {
		errs = append(errs, err)
	}
	if c.LastRound >= c.Recipe.Banks {
		errs = append(errs, fmt.Errorf("%w: %d mergers need more than %d banks", ErrInvalidConfig, c.LastRound, c.Recipe.Banks))
	}
	return errors.Join(errs...)
}

// ContinuousMergers measures contagion as the banking system consolidates.
// Point X is the merge round; every point holds one run per realization.
func ContinuousMergers(ctx context.Context, cfg MergersConfig, opts ...Option) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := newRunner(opts)
	cfg.Seed = resolveSeed(cfg.Seed)

	rounds, err := MergeRounds(cfg.FirstRound, cfg.LastRound, cfg.Points)
	if err != nil {
		return nil, err
	}
	points := make([]Point, len(rounds))
	for i, mr := range rounds {
		points[i] = Point{X: float64(mr), Runs: make([]RunData, cfg.Runs)}
	}
	seeding := cfg.Seeding
	seeding.Tracer = r.tracer

	res := &Result{
		ID:         uuid.NewString(),
		Kind:       KindContinuousMergers,
		CreatedAt:  time.Now().UTC(),
		Attributes: cfg.Params.attributes(),
	}
	res.Attributes["merge_rule"] = string(cfg.Rule)
	res.Attributes["mr_min"] = cfg.FirstRound
	res.Attributes["mr_max"] = cfg.LastRound
	res.Attributes["mr_points"] = cfg.Points
	res.Attributes["mr_vals"] = rounds
	if param := cfg.Recipe.SweepParameter(); param == "p" {
		res.Attributes["p"] = cfg.Recipe.P
	} else if param == "z" {
		res.Attributes["z"] = cfg.Recipe.Z
		res.Attributes["gamma"] = cfg.Recipe.Gamma
	}

	r.logger.Info("continuous mergers started",
		"id", res.ID, "topology", cfg.Recipe.Topology, "rule", cfg.Rule, "checkpoints", len(rounds), "runs", cfg.Runs, "seed", cfg.Seed)

	job := func(ctx context.Context, k int) error {
		net, err := cfg.Recipe.Build(realizationRand(cfg.Seed, k), seeding)
		if err != nil {
			return fmt.Errorf("realization %d: %w", k, err)
		}
		for i, mr := range rounds {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := advance(net, cfg.Rule, mr); err != nil {
				return fmt.Errorf("realization %d merge round %d: %w", k, mr, err)
			}
			data, err := contagion(net, cfg.Params)
			if err != nil {
				return fmt.Errorf("realization %d merge round %d: %w", k, mr, err)
			}
			largest, _ := net.Largest()
			b, _ := net.Bank(largest)
			defaulted := b.Defaulted()
			data.LargestDefaulted = &defaulted
			points[i].Runs[k] = data
			net.ResetCascade()
		}
		return nil
	}
	finished := 0
	done := func(int) {
		finished++
		if r.progress != nil {
			r.progress(finished, cfg.Runs)
		}
	}
	start := time.Now()
	if err := forEach(ctx, cfg.Workers, cfg.Runs, job, done); err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	res.Points = points

	r.logger.Info("continuous mergers finished", "id", res.ID, "duration", res.Duration)
	return res, nil
}

// advance merges banks until the network reaches the target merge round.
// An exhausted semihorizontal pairing starts a new pass.
func advance(net *network.Network, rule network.MergeRule, target int) error {
	for net.MergeRound() < target {
		_, err := net.RandomMerge(rule)
		if errors.Is(err, network.ErrPairingExhausted) {
			net.ResetPairing()
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
