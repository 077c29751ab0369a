package stats

import (
	"listing-tracker/internal/models"
	"listing-tracker/internal/openhouse"
	"listing-tracker/internal/pricing"
	"strings"
	"time"
)

// NewWindow is how far back a listing counts as new
const NewWindow = 7 * 24 * time.Hour

// Dashboard holds the derived dashboard metrics
type Dashboard struct {
	Total       int `json:"total"`
	NewThisWeek int `json:"new_this_week"`
	OpenHouses  int `json:"open_houses"`
	PriceDrops  int `json:"price_drops"`
}

// ComputeDashboard aggregates over the non-removed listings. histories is
// keyed by listing id; a missing timeline only excludes the listing from the
// metrics that need it.
func ComputeDashboard(listings []models.Listing, histories map[string][]models.HistoryEntry, now time.Time) Dashboard {
	var d Dashboard
	for i := range listings {
		l := &listings[i]
		if l.Removed {
			continue
		}
		d.Total++

		history := histories[l.ID]
		if len(history) > 0 && isNew(history[0].Timestamp, now) {
			d.NewThisWeek++
		}
		if hasUpcomingOpenHouse(l, now) {
			d.OpenHouses++
		}
		if len(history) >= 2 && pricing.IsDrop(history[0].Price, l.Price) {
			d.PriceDrops++
		}
	}
	return d
}

func isNew(firstSeen, now time.Time) bool {
	age := now.Sub(firstSeen)
	return age >= 0 && age <= NewWindow
}

func hasUpcomingOpenHouse(l *models.Listing, now time.Time) bool {
	if strings.TrimSpace(l.OpenHouse) == "" || l.Sold || l.Visited {
		return false
	}
	return openhouse.Upcoming(l.OpenHouse, now)
}
