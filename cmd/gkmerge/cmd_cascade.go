package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/gkmerge/internal/experiment"
	"github.com/nvandessel/gkmerge/internal/network"
)

// cascadeReport is the JSON output of the cascade command.
type cascadeReport struct {
	Seed       uint64                 `json:"seed"`
	Banks      int                    `json:"banks"`
	Links      int                    `json:"links"`
	MeanDegree float64                `json:"mean_degree"`
	Merges     []network.MergeResult  `json:"merges,omitempty"`
	Result     network.CascadeResult  `json:"result"`
	Defaulted  []network.BankID       `json:"defaulted"`
	Profile    []network.ProfilePoint `json:"profile,omitempty"`
}

func newCascadeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cascade",
		Short: "Run one default cascade on a generated network",
		Long: `Build a network, optionally merge banks, shock one bank and propagate
defaults until no further bank fails.

Examples:
  gkmerge cascade --banks 500 --p 0.004 --seed 7
  gkmerge cascade --links loans.txt --bank 0 --mode sequential
  gkmerge cascade --merges 100 --rule vertical --shock largest --d 0.2 --c 0.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			bank, _ := cmd.Flags().GetInt("bank")
			shockName, _ := cmd.Flags().GetString("shock")
			modeName, _ := cmd.Flags().GetString("mode")
			rr, _ := cmd.Flags().GetFloat64("rr")
			d, _ := cmd.Flags().GetFloat64("d")
			profile, _ := cmd.Flags().GetBool("profile")

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, settings)
			tracer, err := openTracer(settings)
			if err != nil {
				return err
			}
			defer tracer.Close()

			mode, err := network.ParseCascadeMode(modeName)
			if err != nil {
				return err
			}
			shock, err := experiment.ParseShockMode(shockName)
			if err != nil {
				return err
			}

			built, err := buildNetwork(cmd, tracer)
			if err != nil {
				return err
			}
			net := built.Net
			logger.Debug("network built", "banks", net.NumBanks(), "links", net.NumLinks(), "seed", built.Seed)

			net.ResetCascade()
			var initial network.BankID
			if bank >= 0 {
				initial = network.BankID(bank)
				err = net.ShockID(initial)
			} else {
				initial, err = experiment.Shock(net, shock)
			}
			if err != nil {
				return fmt.Errorf("shock: %w", err)
			}
			res, err := net.Cascade(initial, mode, rr, d, profile)
			if err != nil {
				return err
			}
			logger.Info("cascade finished", "initial", initial, "defaulted", res.Defaulted, "rounds", res.Rounds)

			report := cascadeReport{
				Seed:       built.Seed,
				Banks:      net.NumBanks(),
				Links:      net.NumLinks(),
				MeanDegree: net.MeanDegree(),
				Merges:     built.Merges,
				Result:     res,
				Defaulted:  net.DefaultedBanks(),
				Profile:    net.Profile(),
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printCascade(cmd, report)
			return nil
		},
	}

	addNetworkFlags(cmd)
	cmd.Flags().Int("bank", -1, "Bank to shock (default: chosen by --shock)")
	cmd.Flags().String("shock", string(experiment.ShockRandom), "Initial shock: random, max_in_degree or largest")
	cmd.Flags().String("mode", string(network.Simultaneous), "Contagion mode: simultaneous or sequential")
	cmd.Flags().Float64("rr", 0, "Recovery rate in [0, 1]")
	cmd.Flags().Float64("d", 0, "Fire-sale deprecation factor in [0, 1)")
	cmd.Flags().Bool("profile", false, "Record system assets after every round")
	return cmd
}

func printCascade(cmd *cobra.Command, r cascadeReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Network: %d banks, %d links, mean degree %.3f (seed %d)\n", r.Banks, r.Links, r.MeanDegree, r.Seed)
	if len(r.Merges) > 0 {
		fmt.Fprintf(out, "Mergers: %d\n", len(r.Merges))
	}
	fmt.Fprintf(out, "Shocked bank %d (%s mode)\n", r.Result.InitialBank, r.Result.Mode)
	fmt.Fprintf(out, "Defaulted: %d of %d banks (%.2f%%), %.2f%% of assets\n",
		r.Result.Defaulted, r.Banks, 100*r.Result.DefaultedFraction, 100*r.Result.DefaultedAssetFraction)
	if r.Result.Mode == network.Simultaneous {
		fmt.Fprintf(out, "Rounds: %d\n", r.Result.Rounds)
	}
	for _, p := range r.Profile {
		fmt.Fprintf(out, "  round %3d: system assets %.2f, defaulted %.2f%%\n", p.Round, p.SystemAssets, 100*p.DefaultedFraction)
	}
}
