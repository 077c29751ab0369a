package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"listing-tracker/internal/cleanup"
	"listing-tracker/internal/models"
	"listing-tracker/internal/scheduler"
	"listing-tracker/internal/stats"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, r *scheduler.CycleReport) {
	fmt.Fprintf(w, "Run %s: %s in %s\n", r.RunID, r.Status, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	if r.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", r.Error)
	}
	fmt.Fprintf(w, "  observed %d, up to date %d, enriched %d (%d failed)\n",
		r.Observed, r.UpToDate, r.Pending, r.EnrichmentFailures)
	fmt.Fprintf(w, "  saved %d (%d new), history appends %d, price changes %d\n",
		r.Saved, r.Created, r.HistoryAppends, r.PriceChanges)
	if r.Missing > 0 {
		fmt.Fprintf(w, "  missing %d, verified %d, marked sold %d\n", r.Missing, r.Verified, r.MarkedSold)
	}
	if r.Purged > 0 {
		fmt.Fprintf(w, "  purged %d out-of-bounds listings\n", r.Purged)
	}
}

func printCleanup(w io.Writer, r *cleanup.CleanupResult) {
	if !r.Configured {
		fmt.Fprintln(w, "No location allow-list configured, nothing to clean up")
		return
	}
	verb := "Deleted"
	if r.DryRun {
		verb = "Would delete"
	}
	fmt.Fprintf(w, "%s %d of %d out-of-bounds listings\n", verb, r.DeletedCount, r.TargetCount)
	for _, id := range r.DeletedIDs {
		fmt.Fprintf(w, "  %s\n", id)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
}

func printDashboard(w io.Writer, d stats.Dashboard) {
	fmt.Fprintf(w, "Listings:      %d\n", d.Total)
	fmt.Fprintf(w, "New this week: %d\n", d.NewThisWeek)
	fmt.Fprintf(w, "Open houses:   %d\n", d.OpenHouses)
	fmt.Fprintf(w, "Price drops:   %d\n", d.PriceDrops)
}

func printAnalytics(w io.Writer, a stats.Analytics) {
	fmt.Fprintf(w, "Listings: %d, with drops: %d, with increases: %d, price changes: %d\n",
		a.TotalListings, a.ListingsWithPriceDrops, a.ListingsWithPriceIncrease, a.TotalPriceChanges)
	fmt.Fprintf(w, "Average drop: %s, average increase: %s\n", a.AveragePriceDrop, a.AveragePriceIncrease)

	section := func(title string, moves []stats.PriceMove) {
		if len(moves) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s\n", title)
		for _, m := range moves {
			fmt.Fprintf(w, "  %-10s %s -> %s (%s, %s) %s\n",
				m.ID, m.FirstPrice, m.CurrentPrice, m.Difference, m.DifferencePct, m.Address)
		}
	}
	section("Biggest drops", a.BiggestDrops)
	section("Biggest increases", a.BiggestIncreases)

	if len(a.MostVolatile) > 0 {
		fmt.Fprintln(w, "\nMost volatile")
		for _, v := range a.MostVolatile {
			fmt.Fprintf(w, "  %-10s %d changes %s\n", v.ID, v.NumChanges, v.Address)
		}
	}
}

func printChanges(w io.Writer, changes []models.PriceChange) {
	if len(changes) == 0 {
		fmt.Fprintln(w, "No price changes recorded")
		return
	}
	for _, c := range changes {
		fmt.Fprintf(w, "%-14s %-10s %s -> %s (%s, %s) %s\n",
			humanize.Time(c.Timestamp), c.ListingID, c.OldPrice, c.NewPrice,
			c.PriceDifference, c.PriceDifferencePct, strings.TrimSpace(c.Address))
	}
}
