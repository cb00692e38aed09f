package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/gkmerge/internal/experiment"
	"github.com/nvandessel/gkmerge/internal/store"
)

func newResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect stored experiment results",
		Long: `List, show, export and delete the results of window and mergers runs.

Examples:
  gkmerge results list --kind continuous_mergers --limit 5
  gkmerge results show <id>
  gkmerge results export <id> -o ./out
  gkmerge results delete <id>`,
	}

	cmd.AddCommand(
		newResultsListCmd(),
		newResultsShowCmd(),
		newResultsExportCmd(),
		newResultsDeleteCmd(),
	)
	return cmd
}

// withStore opens the configured store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(rs store.ResultStore) error) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	rs, err := openStore(settings)
	if err != nil {
		return err
	}
	defer rs.Close()
	return fn(rs)
}

func newResultsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored results, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			kind, _ := cmd.Flags().GetString("kind")
			limit, _ := cmd.Flags().GetInt("limit")

			return withStore(cmd, func(rs store.ResultStore) error {
				list, err := rs.List(cmd.Context(), store.Filter{Kind: experiment.Kind(kind), Limit: limit})
				if err != nil {
					return err
				}
				if jsonOut {
					if list == nil {
						list = []store.Summary{}
					}
					return writeJSON(cmd.OutOrStdout(), list)
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No results.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tKIND\tCREATED\tPOINTS\tRUNS")
				for _, s := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", s.ID, s.Kind, s.CreatedAt.Local().Format(time.DateTime), s.Points, s.Runs)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().String("kind", "", "Filter by kind: contagion_window or continuous_mergers")
	cmd.Flags().Int("limit", 0, "Maximum number of results (0 means all)")
	return cmd
}

func newResultsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the per-point statistics of a result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			rs, err := openStore(settings)
			if err != nil {
				return err
			}
			defer rs.Close()

			res, err := rs.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return store.WriteJSON(cmd.OutOrStdout(), res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Result %s\n", res.ID)
			fmt.Fprintf(out, "Kind:     %s\n", res.Kind)
			fmt.Fprintf(out, "Created:  %s\n", res.CreatedAt.Local().Format(time.DateTime))
			fmt.Fprintf(out, "Duration: %s\n\n", res.Duration.Round(time.Millisecond))
			return printSummaries(cmd, res.Summaries(settings.Stats.CascadeThreshold))
		},
	}
}

func newResultsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write a result as a JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			dir, _ := cmd.Flags().GetString("output")

			return withStore(cmd, func(rs store.ResultStore) error {
				res, err := rs.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				path, err := store.WriteJSONFile(dir, res.ID, res)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"id": res.ID, "path": path})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", res.ID, path)
				return nil
			})
		},
	}
	cmd.Flags().StringP("output", "o", ".", "Directory to write <id>.json into")
	return cmd
}

func newResultsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			return withStore(cmd, func(rs store.ResultStore) error {
				if err := rs.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"id": args[0], "deleted": true})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}
