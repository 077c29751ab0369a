package database

import (
	"errors"
	"fmt"
	"listing-tracker/internal/models"
	"listing-tracker/internal/pricing"
	"listing-tracker/internal/snapshot"

	"gorm.io/gorm"
)

// SaveResult describes the effect of one SaveListing call
type SaveResult struct {
	Created         bool
	HistoryAppended bool
	HistoryEntries  int64
	PriceChange     *models.PriceChange
}

// SaveListing records l in the history log and upserts it as the current
// state of its id. Both writes happen in one transaction. The price_drop flag
// is derived from the timeline before the upsert. On update the stored
// visited, favorite and removed flags win over the ones in l.
func (gdb *GormDB) SaveListing(l *models.Listing) (*SaveResult, error) {
	if l.ID == "" {
		return nil, errors.New("listing id is required")
	}

	gdb.writeMu.Lock()
	defer gdb.writeMu.Unlock()

	now := gdb.now()
	result := &SaveResult{}

	err := gdb.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Listing
		err := tx.Where("id = ?", l.ID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.Created = true
		} else if err != nil {
			return err
		}

		outcome, err := snapshot.NewService(tx).Record(l, now)
		if err != nil {
			return err
		}
		result.HistoryAppended = outcome.Appended
		result.HistoryEntries = outcome.Entries
		result.PriceChange = outcome.Change

		l.PriceDrop = outcome.Entries >= 2 && outcome.First != nil && pricing.IsDrop(outcome.First.Price, l.Price)
		l.LastSeenAt = now

		if result.Created {
			if l.Timestamp.IsZero() {
				l.Timestamp = now
			}
			return tx.Create(l).Error
		}

		// Update existing (keep original CreatedAt and first-seen timestamp).
		// User flags are only changed through SetField.
		l.CreatedAt = existing.CreatedAt
		l.Visited = existing.Visited
		l.Favorite = existing.Favorite
		l.Removed = existing.Removed
		if l.Timestamp.IsZero() {
			l.Timestamp = existing.Timestamp
		}
		return tx.Save(l).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save listing %s: %w", l.ID, err)
	}

	return result, nil
}

// GetListing retrieves a listing by ID
func (gdb *GormDB) GetListing(id string) (*models.Listing, error) {
	var listing models.Listing
	err := gdb.db.Where("id = ?", id).First(&listing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// GetListingsByID retrieves the listings with the given ids keyed by id.
// Unknown ids are absent from the result.
func (gdb *GormDB) GetListingsByID(ids []string) (map[string]models.Listing, error) {
	result := make(map[string]models.Listing, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var listings []models.Listing
	if err := gdb.db.Where("id IN ?", ids).Find(&listings).Error; err != nil {
		return nil, err
	}
	for _, l := range listings {
		result[l.ID] = l
	}
	return result, nil
}

// GetActiveListings retrieves listings not marked removed, unsold first and
// newest first within each group
func (gdb *GormDB) GetActiveListings() ([]models.Listing, error) {
	listings := []models.Listing{}
	err := gdb.db.Where("removed = ?", false).
		Order("sold ASC").
		Order("timestamp DESC").
		Order("id ASC").
		Find(&listings).Error
	return listings, err
}

// GetAllListings retrieves every stored listing including removed ones
func (gdb *GormDB) GetAllListings() ([]models.Listing, error) {
	listings := []models.Listing{}
	err := gdb.db.Order("id ASC").Find(&listings).Error
	return listings, err
}

// CountListings returns the number of stored listings
func (gdb *GormDB) CountListings() (int64, error) {
	var n int64
	err := gdb.db.Model(&models.Listing{}).Count(&n).Error
	return n, err
}

// MissingActiveIDs returns unsold, non-removed listings whose ids are not in seen
func (gdb *GormDB) MissingActiveIDs(seen []string) ([]models.Listing, error) {
	seenSet := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		seenSet[id] = struct{}{}
	}

	var candidates []models.Listing
	if err := gdb.db.Where("removed = ? AND sold = ?", false, false).Order("id ASC").Find(&candidates).Error; err != nil {
		return nil, err
	}

	var missing []models.Listing
	for _, l := range candidates {
		if _, ok := seenSet[l.ID]; !ok {
			missing = append(missing, l)
		}
	}
	return missing, nil
}

// SetField flips one of the user flags on a listing. It reports false when
// the id is unknown.
func (gdb *GormDB) SetField(id, field string, value bool) (bool, error) {
	if !models.IsFlippableField(field) {
		return false, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	gdb.writeMu.Lock()
	defer gdb.writeMu.Unlock()

	found := false
	err := gdb.db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Listing{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		found = true
		return tx.Model(&models.Listing{}).Where("id = ?", id).Update(field, value).Error
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// GetHistory returns the timeline of a listing, oldest first
func (gdb *GormDB) GetHistory(id string) ([]models.HistoryEntry, error) {
	return snapshot.NewService(gdb.db).History(id)
}

// GetHistories returns the timelines of several listings keyed by id
func (gdb *GormDB) GetHistories(ids []string) (map[string][]models.HistoryEntry, error) {
	return snapshot.NewService(gdb.db).Histories(ids)
}

// GetAllHistories returns every stored timeline keyed by listing id
func (gdb *GormDB) GetAllHistories() (map[string][]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	if err := gdb.db.Order("id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	result := make(map[string][]models.HistoryEntry)
	for _, e := range entries {
		result[e.ListingID] = append(result[e.ListingID], e)
	}
	return result, nil
}

// GetRecentChanges returns ledger events, newest first
func (gdb *GormDB) GetRecentChanges(limit int) ([]models.PriceChange, error) {
	return snapshot.NewService(gdb.db).RecentChanges(limit)
}

// CountPriceChanges returns the ledger length
func (gdb *GormDB) CountPriceChanges() (int64, error) {
	return snapshot.NewService(gdb.db).CountChanges()
}
