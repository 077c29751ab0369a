package database

import (
	"listing-tracker/internal/models"
	"listing-tracker/internal/snapshot"

	"gorm.io/gorm"
)

// PurgeListing physically deletes a listing with its whole history and
// leaves a delete log entry behind
func (gdb *GormDB) PurgeListing(l *models.Listing, reason string) error {
	gdb.writeMu.Lock()
	defer gdb.writeMu.Unlock()

	return gdb.db.Transaction(func(tx *gorm.DB) error {
		removed, err := snapshot.NewService(tx).DeleteHistory(l.ID)
		if err != nil {
			return err
		}

		entry := models.DeleteLog{
			ListingID:      l.ID,
			Address:        l.Address,
			URL:            l.URL,
			HistoryEntries: int(removed),
			FirstSeenAt:    l.Timestamp,
			DeletedAt:      gdb.now(),
			Reason:         reason,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		return tx.Where("id = ?", l.ID).Delete(&models.Listing{}).Error
	})
}

// GetRecentDeleteLogs retrieves recent delete logs
func (gdb *GormDB) GetRecentDeleteLogs(limit int) ([]models.DeleteLog, error) {
	logs := []models.DeleteLog{}
	query := gdb.db.Order("deleted_at DESC").Order("id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}

	return logs, nil
}

// DeleteStats summarises the delete log
type DeleteStats struct {
	Total    int64            `json:"total"`
	ByReason map[string]int64 `json:"by_reason"`
}

// GetDeleteStats returns statistics about purged listings
func (gdb *GormDB) GetDeleteStats() (*DeleteStats, error) {
	stats := &DeleteStats{ByReason: map[string]int64{}}

	if err := gdb.db.Model(&models.DeleteLog{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		Reason string
		Count  int64
	}
	if err := gdb.db.Model(&models.DeleteLog{}).
		Select("reason, COUNT(*) as count").
		Group("reason").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats.ByReason[r.Reason] = r.Count
	}

	return stats, nil
}
