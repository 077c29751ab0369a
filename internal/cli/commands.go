package cli

import (
	"context"
	"fmt"
	"listing-tracker/internal/export"
	"listing-tracker/internal/models"
	"listing-tracker/internal/scraper"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"
)

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one reconciliation cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Runner.RunCycle(ctx)
			if report != nil {
				if opts.Format == "json" {
					if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
						return werr
					}
				} else {
					printReport(cmd.OutOrStdout(), report)
				}
			}
			return err
		},
	}
}

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(opts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete listings outside the configured locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Runner.Cleanup(dryRun)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printCleanup(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")
	return cmd
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.Stats.Dashboard()
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), d)
			}
			printDashboard(cmd.OutOrStdout(), d)
			return nil
		},
	}
}

// NewAnalyticsCommand creates the analytics command.
func NewAnalyticsCommand(opts *RootOptions) *cobra.Command {
	var exportReport bool

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show price analytics",
		Long: `Show price analytics over the tracked listings.

With --export the report is also written as ` + export.AnalyticsFile + ` through
the configured export driver (a local directory or an S3 bucket).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Stats.Analytics()
			if err != nil {
				return err
			}
			if exportReport {
				if err := a.Reports.PublishAnalytics(ctx); err != nil {
					return err
				}
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printAnalytics(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&exportReport, "export", false, "also export the report")
	return cmd
}

// NewChangesCommand creates the changes command.
func NewChangesCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "List recent price changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			changes, err := a.Store.GetRecentChanges(limit)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), changes)
			}
			printChanges(cmd.OutOrStdout(), changes)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of changes to show")
	return cmd
}

// NewMarkCommand creates the mark command.
func NewMarkCommand(opts *RootOptions) *cobra.Command {
	var value bool

	cmd := &cobra.Command{
		Use:   "mark <id> visited|favorite|removed",
		Short: "Set a user flag on a listing",
		Example: `  tracker mark 22334455 favorite
  tracker mark 22334455 visited --value=false`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, field := args[0], strings.ToLower(args[1])
			if !models.IsFlippableField(field) {
				return fmt.Errorf("unknown flag %q: must be visited, favorite or removed", field)
			}

			a, err := openApp(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			found, err := a.Store.SetField(id, field, value)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("listing %s not found", id)
			}
			if field == models.FieldRemoved && value && a.Index != nil {
				if err := a.Index.DeleteListings([]string{id}); err != nil {
					a.Logger.Warn("failed to remove listing from search index", "id", id, "error", err)
				}
			}

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"id": id, "field": field, "value": value})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s = %s\n", id, field, strconv.FormatBool(value))
			return nil
		},
	}
	cmd.Flags().BoolVar(&value, "value", true, "flag value")
	return cmd
}

// ProbeResult is the output of the probe command.
type ProbeResult struct {
	URL       string               `json:"url"`
	Bytes     int                  `json:"bytes"`
	Cards     int                  `json:"cards"`
	Snapshots []models.RawSnapshot `json:"snapshots"`
}

// NewProbeCommand creates the probe command.
func NewProbeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Fetch and parse the first search page without saving anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := probe(ctx, a.Fetcher, a.Source, a.Config.Scraper.SearchURL, a.Config.Scraper.PageParam)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes, %d cards\n", result.URL, result.Bytes, result.Cards)
			for _, s := range result.Snapshots {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-10s %-14s %-10s %s\n", s.ID, s.Price, s.Size, s.Address)
			}
			return nil
		},
	}
}

func probe(ctx context.Context, fetcher scraper.PageFetcher, source *scraper.ListSource, searchURL, pageParam string) (*ProbeResult, error) {
	if searchURL == "" {
		return nil, fmt.Errorf("scraper.search_url is not configured")
	}
	if pageParam == "" {
		pageParam = "pagination"
	}
	url := scraper.PageURL(searchURL, pageParam, 1)

	html, err := fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	snapshots := source.ParseCards(doc, url)
	if snapshots == nil {
		snapshots = []models.RawSnapshot{}
	}
	return &ProbeResult{URL: url, Bytes: len(html), Cards: len(snapshots), Snapshots: snapshots}, nil
}
