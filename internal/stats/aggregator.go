package stats

import (
	"fmt"
	"listing-tracker/internal/models"
	"time"
)

// Reader is the read side of the store the aggregator needs
type Reader interface {
	GetActiveListings() ([]models.Listing, error)
	GetHistories(ids []string) (map[string][]models.HistoryEntry, error)
	CountPriceChanges() (int64, error)
}

// Aggregator computes dashboard metrics and price analytics from the store
type Aggregator struct {
	store Reader
	now   func() time.Time
}

// NewAggregator creates an aggregator; now defaults to time.Now
func NewAggregator(store Reader, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{store: store, now: now}
}

func (a *Aggregator) load() ([]models.Listing, map[string][]models.HistoryEntry, error) {
	listings, err := a.store.GetActiveListings()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load listings: %w", err)
	}
	ids := make([]string, len(listings))
	for i, l := range listings {
		ids[i] = l.ID
	}
	histories, err := a.store.GetHistories(ids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load histories: %w", err)
	}
	return listings, histories, nil
}

// Dashboard computes the dashboard metrics as of now
func (a *Aggregator) Dashboard() (Dashboard, error) {
	listings, histories, err := a.load()
	if err != nil {
		return Dashboard{}, err
	}
	return ComputeDashboard(listings, histories, a.now()), nil
}

// Analytics computes the price analytics report
func (a *Aggregator) Analytics() (Analytics, error) {
	listings, histories, err := a.load()
	if err != nil {
		return Analytics{}, err
	}
	n, err := a.store.CountPriceChanges()
	if err != nil {
		return Analytics{}, fmt.Errorf("failed to count price changes: %w", err)
	}
	return ComputeAnalytics(listings, histories, n), nil
}
