package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"CrateDigger/internal/app"
	"CrateDigger/internal/domain"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the candidate backlog per state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				s, err := a.Pipeline().Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"discovered", strconv.Itoa(s.Discovered)},
					{"enriched", strconv.Itoa(s.Enriched)},
					{"scored", strconv.Itoa(s.Scored)},
					{"processed", strconv.Itoa(s.Processed)},
					{"promoted", strconv.Itoa(s.Promoted)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"State", "Candidates"}, rows, 1))
				return nil
			})
		},
	}
}

func newRandomCommand(ctx *commandContext) *cobra.Command {
	var (
		filter     domain.SampleFilter
		exclusions []string
	)
	cmd := &cobra.Command{
		Use:   "random",
		Short: "Print one random catalog sample as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				view, ok, err := a.Retrieval().Random(cmd.Context(), filter, exclusions)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "no sample available")
					return nil
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			})
		},
	}
	cmd.Flags().StringVar(&filter.Genre, "genre", "", "Genre filter")
	cmd.Flags().StringVar(&filter.Era, "era", "", "Era filter, e.g. 1970s")
	cmd.Flags().StringVar(&filter.Category, "category", "", "Category filter (genre, tag or script such as japanese)")
	cmd.Flags().StringSliceVar(&exclusions, "exclude", nil, "External ids to skip, oldest first")
	return cmd
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API and run the pipeline on its interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				return a.Serve(cmd.Context(), !noScheduler)
			})
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Only serve HTTP; do not run scheduled cycles")
	return cmd
}
