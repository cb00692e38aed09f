package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nvandessel/gkmerge/internal/experiment"
	"github.com/nvandessel/gkmerge/internal/network"
)

func newMergersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mergers",
		Short: "Measure contagion as banks merge",
		Long: `Run a continuous mergers experiment: build --runs networks, merge banks
by --rule and run a cascade at every checkpoint merge round between
--first-round and --last-round.

Flags left unset keep the values of the "mergers" config section.

Examples:
  gkmerge mergers --banks 1000 --p 0.005 --last-round 500 --points 20
  gkmerge mergers --rule semihorizontal --topology cl --z 2 --runs 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			cfg := settings.Mergers
			if err := experimentFromFlags(cmd, &cfg.Params); err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("p") {
				cfg.Recipe.P, _ = f.GetFloat64("p")
			}
			if f.Changed("z") {
				cfg.Recipe.Z, _ = f.GetFloat64("z")
			}
			if f.Changed("rule") {
				s, _ := f.GetString("rule")
				if cfg.Rule, err = network.ParseMergeRule(s); err != nil {
					return err
				}
			}
			if f.Changed("first-round") {
				cfg.FirstRound, _ = f.GetInt("first-round")
			}
			if f.Changed("last-round") {
				cfg.LastRound, _ = f.GetInt("last-round")
			}
			if f.Changed("points") {
				cfg.Points, _ = f.GetInt("points")
			}

			return runExperiment(cmd, settings, func(ctx context.Context, opts ...experiment.Option) (*experiment.Result, error) {
				return experiment.ContinuousMergers(ctx, cfg, opts...)
			})
		},
	}

	addExperimentFlags(cmd)
	cmd.Flags().Float64("p", 0, "Link probability of the Erdos-Renyi generators")
	cmd.Flags().Float64("z", 0, "Mean degree of Chung-Lu")
	cmd.Flags().String("rule", "", "Merger rule: random, vertical or semihorizontal")
	cmd.Flags().Int("first-round", 0, "First checkpoint merge round")
	cmd.Flags().Int("last-round", 0, "Last checkpoint merge round")
	cmd.Flags().Int("points", 0, "Number of checkpoints")
	return cmd
}
