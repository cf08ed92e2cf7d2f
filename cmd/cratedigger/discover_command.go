package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"CrateDigger/internal/app"
	"CrateDigger/internal/usecase"
)

func newDiscoverCommand(ctx *commandContext) *cobra.Command {
	var (
		exclusions []string
		before     string
		pages      int
		earlyBreak int
		resume     bool
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "discover <query>",
		Short: "Search the platform page by page, prefilter snippets and store survivors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := usecase.DiscoverRequest{
				Query:      strings.Join(args, " "),
				Exclusions: exclusions,
				Resume:     resume,
				Verbose:    verbose,
			}
			if before != "" {
				ts, err := time.Parse(time.DateOnly, before)
				if err != nil {
					return fmt.Errorf("--before must be YYYY-MM-DD: %w", err)
				}
				req.PublishedBefore = &ts
			}

			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				cfg := a.Config().Pipeline
				req.MaxPages = limitOr(pages, cfg.SearchMaxPages)
				req.EarlyBreak = cfg.SearchEarlyBreak
				if cmd.Flags().Changed("early-break") {
					req.EarlyBreak = earlyBreak
				}

				res, err := a.Pipeline().Discover(cmd.Context(), req)
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderBreakdown(res))
				if verbose && len(res.Rejections) > 0 {
					fmt.Fprintln(out, renderRejections(res.Rejections))
				}
				if res.NextPageToken != "" {
					fmt.Fprintf(out, "more results available; continue with --resume (token %s)\n", res.NextPageToken)
				}
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&exclusions, "exclude", nil, "Terms excluded from the search (repeatable or comma separated)")
	cmd.Flags().StringVar(&before, "before", "", "Only items published before this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&pages, "pages", 0, "Maximum pages to fetch (0 uses pipeline.searchMaxPages)")
	cmd.Flags().IntVar(&earlyBreak, "early-break", 0, "Stop after this many items pass on one page (0 disables)")
	cmd.Flags().BoolVar(&resume, "resume", false, "Continue from the stored cursor for this query")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List every prefilter rejection")
	return cmd
}

func renderBreakdown(res usecase.DiscoverResult) string {
	b := res.Breakdown
	rows := [][]string{
		{"pages", strconv.Itoa(res.Pages)},
		{"raw", strconv.Itoa(b.Raw)},
		{"duplicate", strconv.Itoa(b.Duplicate)},
		{"denylist", strconv.Itoa(b.Denylist)},
		{"modern year", strconv.Itoa(b.ModernYear)},
		{"no indicator", strconv.Itoa(b.NoIndicator)},
		{"manipulation", strconv.Itoa(b.Manipulation)},
		{"passed", strconv.Itoa(b.Passed)},
		{"added", strconv.Itoa(res.Added)},
	}
	if res.EarlyBreak {
		rows = append(rows, []string{"early break", "yes"})
	}
	return renderTable([]string{"Stage", "Count"}, rows, 1)
}

func renderRejections(rejections []usecase.Rejection) string {
	rows := make([][]string, 0, len(rejections))
	for _, r := range rejections {
		rows = append(rows, []string{r.ExternalID, string(r.Stage), r.Reason, truncate(r.Title, 60)})
	}
	return renderTable([]string{"ID", "Stage", "Reason", "Title"}, rows)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
