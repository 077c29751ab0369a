package snapshot

import (
	"errors"
	"fmt"
	"listing-tracker/internal/models"
	"listing-tracker/internal/openhouse"
	"listing-tracker/internal/pricing"
	"time"

	"gorm.io/gorm"
)

// Service maintains the per-listing history and the global price change ledger
type Service struct {
	db *gorm.DB
}

// NewService creates a new snapshot service. db may be a transaction.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Outcome describes what Record did for one save
type Outcome struct {
	Appended     bool
	PriceChanged bool
	Change       *models.PriceChange
	First        *models.HistoryEntry
	Entries      int64
}

// EntryFromListing builds the history entry describing l at the given time
func EntryFromListing(l *models.Listing, at time.Time) models.HistoryEntry {
	return models.HistoryEntry{
		ListingID:      l.ID,
		Timestamp:      at,
		Price:          l.Price,
		Image:          l.Image,
		OpenHouse:      l.OpenHouse,
		PricePerSqm:    l.PricePerSqm,
		MaintenanceFee: l.MaintenanceFee,
	}
}

// Decide applies the append rule against the last stored entry. An entry is
// appended for a new timeline, a different price, or an open house that is
// not equivalent to the stored one.
func Decide(last *models.HistoryEntry, candidate models.HistoryEntry) (appendEntry, priceChanged bool) {
	if last == nil {
		return true, false
	}
	priceChanged = last.Price != candidate.Price
	openHouseChanged := !openhouse.Equivalent(last.OpenHouse, candidate.OpenHouse)
	return priceChanged || openHouseChanged, priceChanged
}

// NewPriceChange builds the ledger event for a price moving from previous to current
func NewPriceChange(l *models.Listing, previous, current models.HistoryEntry) models.PriceChange {
	diff, pct := pricing.Change(previous.Price, current.Price)
	return models.PriceChange{
		ListingID:          l.ID,
		Address:            l.Address,
		OldPrice:           previous.Price,
		NewPrice:           current.Price,
		PriceDifference:    pricing.FormatAmount(diff),
		PriceDifferencePct: pricing.FormatPercent(pct),
		Size:               l.Size,
		PricePerSqm:        l.PricePerSqm,
		Timestamp:          current.Timestamp,
		URL:                l.URL,
	}
}

// Record compares l with its last history entry, appends a new entry when
// something meaningful changed and logs price changes to the ledger.
func (s *Service) Record(l *models.Listing, at time.Time) (*Outcome, error) {
	last, err := s.lastEntry(l.ID)
	if err != nil {
		return nil, err
	}

	candidate := EntryFromListing(l, at)
	appendEntry, priceChanged := Decide(last, candidate)
	outcome := &Outcome{PriceChanged: priceChanged}

	if appendEntry {
		if err := s.db.Create(&candidate).Error; err != nil {
			return nil, fmt.Errorf("failed to append history for %s: %w", l.ID, err)
		}
		outcome.Appended = true
	}

	if err := s.db.Model(&models.HistoryEntry{}).Where("listing_id = ?", l.ID).Count(&outcome.Entries).Error; err != nil {
		return nil, err
	}

	if appendEntry && priceChanged && outcome.Entries >= 2 {
		change := NewPriceChange(l, *last, candidate)
		if err := s.db.Create(&change).Error; err != nil {
			return nil, fmt.Errorf("failed to log price change for %s: %w", l.ID, err)
		}
		outcome.Change = &change
	}

	first, err := s.firstEntry(l.ID)
	if err != nil {
		return nil, err
	}
	outcome.First = first

	return outcome, nil
}

func (s *Service) lastEntry(listingID string) (*models.HistoryEntry, error) {
	return s.edgeEntry(listingID, "id DESC")
}

func (s *Service) firstEntry(listingID string) (*models.HistoryEntry, error) {
	return s.edgeEntry(listingID, "id ASC")
}

func (s *Service) edgeEntry(listingID, order string) (*models.HistoryEntry, error) {
	var entry models.HistoryEntry
	err := s.db.Where("listing_id = ?", listingID).Order(order).Limit(1).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", listingID, err)
	}
	return &entry, nil
}

// History returns the timeline of a listing in insertion order. An unknown
// id yields an empty timeline.
func (s *Service) History(listingID string) ([]models.HistoryEntry, error) {
	entries := []models.HistoryEntry{}
	if err := s.db.Where("listing_id = ?", listingID).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Histories returns the timelines of several listings keyed by id
func (s *Service) Histories(listingIDs []string) (map[string][]models.HistoryEntry, error) {
	result := make(map[string][]models.HistoryEntry, len(listingIDs))
	if len(listingIDs) == 0 {
		return result, nil
	}

	var entries []models.HistoryEntry
	if err := s.db.Where("listing_id IN ?", listingIDs).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	for _, e := range entries {
		result[e.ListingID] = append(result[e.ListingID], e)
	}
	return result, nil
}

// DeleteHistory removes a listing's whole timeline
func (s *Service) DeleteHistory(listingID string) (int64, error) {
	result := s.db.Where("listing_id = ?", listingID).Delete(&models.HistoryEntry{})
	return result.RowsAffected, result.Error
}

// RecentChanges retrieves ledger events, newest first
func (s *Service) RecentChanges(limit int) ([]models.PriceChange, error) {
	changes := []models.PriceChange{}
	query := s.db.Order("id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&changes).Error; err != nil {
		return nil, err
	}

	return changes, nil
}

// CountChanges returns the ledger length
func (s *Service) CountChanges() (int64, error) {
	var n int64
	err := s.db.Model(&models.PriceChange{}).Count(&n).Error
	return n, err
}
