package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"CrateDigger/internal/app"
	"CrateDigger/internal/domain"
	"CrateDigger/internal/usecase"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version|redo|reset]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "status", "version", "redo", "reset"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			return ctx.openApp(cmd.Context(), false, func(a *app.Application) error {
				return a.Migrate(cmd.Context(), command)
			})
		},
	}
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var (
		kind     string
		ref      string
		maxItems int
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Discover ids from one source and store the new ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceKind := domain.SourceKind(kind)
			if !sourceKind.Valid() {
				return fmt.Errorf("unknown source kind %q (search, playlist, channel, page)", kind)
			}
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				res, err := a.Pipeline().Ingest(cmd.Context(), sourceKind, ref, maxItems)
				fmt.Fprintln(cmd.OutOrStdout(), renderCounts(
					"found", res.Found, "added", res.Added, "skipped", res.Skipped, "failed", res.Failed))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(domain.SourceSearch), "Source kind: search, playlist, channel or page")
	cmd.Flags().StringVar(&ref, "ref", "", "Query, playlist id, channel id/handle or page URL")
	cmd.Flags().IntVar(&maxItems, "max", 0, "Maximum items to discover (0 uses the default)")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}

func newEnrichCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Fetch platform metadata for unenriched candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				res, err := a.Pipeline().Enrich(cmd.Context(), limitOr(limit, a.BatchLimits().Enrich))
				fmt.Fprintln(cmd.OutOrStdout(), renderCounts(
					"selected", res.Selected, "enriched", res.Enriched, "missing", res.Missing,
					"closed", res.Abandoned, "failed", res.Failed))
				return err
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Batch size (0 uses pipeline.enrichLimit)")
	return cmd
}

func newScoreCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score enriched candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				res, err := a.Pipeline().Score(cmd.Context(), limitOr(limit, a.BatchLimits().Score))
				fmt.Fprintln(cmd.OutOrStdout(), renderCounts(
					"selected", res.Selected, "scored", res.Scored, "accepted", res.Accepted,
					"rejected", res.Rejected, "failed", res.Failed))
				return err
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Batch size (0 uses pipeline.scoreLimit)")
	return cmd
}

func newPromoteCommand(ctx *commandContext) *cobra.Command {
	var (
		limit    int
		minScore int
	)
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote accepted candidates into the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				limits := a.BatchLimits()
				if cmd.Flags().Changed("min-score") {
					limits.MinScore = minScore
				}
				res, err := a.Pipeline().Promote(cmd.Context(), limitOr(limit, limits.Promote), limits.MinScore)
				fmt.Fprintln(cmd.OutOrStdout(), renderCounts(
					"selected", res.Selected, "promoted", res.Promoted, "linked", res.Linked, "failed", res.Failed))
				return err
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Batch size (0 uses pipeline.promoteLimit)")
	cmd.Flags().IntVar(&minScore, "min-score", 0, "Minimum score (never below the acceptance threshold)")
	return cmd
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one full cycle: ingest seed sources, enrich, score, promote",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				report, err := a.RunOnce(cmd.Context())
				if report.Skipped {
					fmt.Fprintln(cmd.OutOrStdout(), "skipped: another run holds the pipeline lock")
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), usecase.FormatReport(report))
				if err == nil {
					if batchErr := report.Batch.Err(); batchErr != nil {
						a.Logger().Warn("cycle finished with item failures", "error", batchErr)
					}
				}
				return err
			})
		},
	}
}

func limitOr(flag, fallback int) int {
	if flag > 0 {
		return flag
	}
	return fallback
}

// renderCounts prints alternating label/value pairs as a one-row table.
func renderCounts(pairs ...any) string {
	headers := make([]string, 0, len(pairs)/2)
	row := make([]string, 0, len(pairs)/2)
	counts := make([]int, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		headers = append(headers, fmt.Sprint(pairs[i]))
		switch v := pairs[i+1].(type) {
		case int:
			row = append(row, strconv.Itoa(v))
		default:
			row = append(row, fmt.Sprint(v))
		}
		counts = append(counts, len(counts))
	}
	return renderTable(headers, [][]string{row}, counts...)
}
