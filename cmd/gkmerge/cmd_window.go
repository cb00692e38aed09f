package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/gkmerge/internal/config"
	"github.com/nvandessel/gkmerge/internal/experiment"
	"github.com/nvandessel/gkmerge/internal/stats"
	"github.com/nvandessel/gkmerge/internal/store"
)

func newWindowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Sweep network density and measure contagion",
		Long: `Run a contagion window experiment: for every value of the link
probability (Erdos-Renyi) or mean degree (Chung-Lu) between --min and --max,
build --runs networks, shock one bank in each and record how far defaults
spread.

Flags left unset keep the values of the "window" config section.

Examples:
  gkmerge window --banks 1000 --runs 200 --min 0 --max 0.01 --points 21
  gkmerge window --topology cl --min 0.5 --max 10 --workers 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			cfg := settings.Window
			if err := experimentFromFlags(cmd, &cfg.Params); err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("min") {
				cfg.Min, _ = f.GetFloat64("min")
			}
			if f.Changed("max") {
				cfg.Max, _ = f.GetFloat64("max")
			}
			if f.Changed("points") {
				cfg.Points, _ = f.GetInt("points")
			}
			if f.Changed("digits") {
				cfg.Digits, _ = f.GetInt("digits")
			}

			return runExperiment(cmd, settings, func(ctx context.Context, opts ...experiment.Option) (*experiment.Result, error) {
				return experiment.ContagionWindow(ctx, cfg, opts...)
			})
		},
	}

	addExperimentFlags(cmd)
	cmd.Flags().Float64("min", 0, "First value of the swept parameter")
	cmd.Flags().Float64("max", 0, "Last value of the swept parameter")
	cmd.Flags().Int("points", 0, "Number of sweep points")
	cmd.Flags().Int("digits", 0, "Decimal places the sweep points are rounded to")
	return cmd
}

type experimentFunc func(ctx context.Context, opts ...experiment.Option) (*experiment.Result, error)

// runExperiment runs fn with logging, tracing and progress wired from the
// settings, stores the result and prints its summaries.
func runExperiment(cmd *cobra.Command, settings *config.GkmergeConfig, fn experimentFunc) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	noSave, _ := cmd.Flags().GetBool("no-save")
	output, _ := cmd.Flags().GetString("output")

	logger := newLogger(cmd, settings)
	tracer, err := openTracer(settings)
	if err != nil {
		return err
	}
	defer tracer.Close()

	opts := []experiment.Option{experiment.WithLogger(logger)}
	if tracer != nil {
		opts = append(opts, experiment.WithTracer(tracer))
	}
	if !jsonOut {
		errOut := cmd.ErrOrStderr()
		opts = append(opts, experiment.WithProgress(func(done, total int) {
			fmt.Fprintf(errOut, "\rrealizations %d/%d", done, total)
			if done == total {
				fmt.Fprintln(errOut)
			}
		}))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := fn(ctx, opts...)
	if err != nil {
		return err
	}

	if !noSave {
		rs, err := openStore(settings)
		if err != nil {
			return err
		}
		defer rs.Close()
		if err := rs.Save(ctx, res); err != nil {
			return fmt.Errorf("save result: %w", err)
		}
	}
	var exported string
	if output != "" {
		if exported, err = store.WriteJSONFile(output, res.ID, res); err != nil {
			return err
		}
	}

	summaries := res.Summaries(settings.Stats.CascadeThreshold)
	if jsonOut {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"id":          res.ID,
			"kind":        res.Kind,
			"duration_ms": res.Duration.Milliseconds(),
			"attributes":  res.Attributes,
			"summaries":   summaries,
			"saved":       !noSave,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Result %s (%s, %s)\n", res.ID, res.Kind, res.Duration.Round(time.Millisecond))
	if exported != "" {
		fmt.Fprintf(out, "Exported to %s\n", exported)
	}
	return printSummaries(cmd, summaries)
}

// printSummaries prints one row per point.
func printSummaries(cmd *cobra.Command, summaries []stats.Summary) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "x\truns\tmean DF\tstd DF\textent\tfrequency\tsteps\tlargest defaulted")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%g\t%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.2f\t%.3f\n",
			s.X, s.Runs, s.MeanDF, s.StdDF, s.ContagionExtent, s.ContagionFrequency, s.CascadeSteps, s.LargestDefaulted)
	}
	return tw.Flush()
}
