package models

import "time"

// DeleteLog records a listing that was physically deleted together with its history
type DeleteLog struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID      string    `gorm:"type:varchar(64);not null;index" json:"listing_id"`
	Address        string    `gorm:"type:text" json:"address"`
	URL            string    `gorm:"type:text" json:"url"`
	HistoryEntries int       `gorm:"not null" json:"history_entries"`
	FirstSeenAt    time.Time `json:"first_seen_at"`
	DeletedAt      time.Time `gorm:"not null;index" json:"deleted_at"`
	Reason         string    `gorm:"type:varchar(50);not null" json:"reason"`
}

// TableName specifies the table name
func (DeleteLog) TableName() string {
	return "delete_logs"
}

// DeleteReason constants
const (
	DeleteReasonOutOfBounds = "out_of_bounds"
	DeleteReasonManual      = "manual_deletion"
)
