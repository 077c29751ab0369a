package models

import "time"

// HistoryEntry is one observed state in a listing's append-only timeline.
type HistoryEntry struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	ListingID      string    `gorm:"type:varchar(64);not null;index" json:"-"`
	Timestamp      time.Time `gorm:"not null" json:"timestamp"`
	Price          string    `gorm:"type:varchar(64)" json:"price"`
	Image          string    `gorm:"type:text" json:"image"`
	OpenHouse      string    `gorm:"type:text" json:"open_house"`
	PricePerSqm    string    `gorm:"type:varchar(64)" json:"price_per_sqm"`
	MaintenanceFee string    `gorm:"type:varchar(64)" json:"maintenance_fee"`
}

// TableName specifies the table name
func (HistoryEntry) TableName() string {
	return "listing_history"
}

// PriceChange is one event in the global change ledger.
type PriceChange struct {
	Seq                uint      `gorm:"column:id;primaryKey;autoIncrement" json:"seq"`
	ListingID          string    `gorm:"type:varchar(64);not null;index" json:"id"`
	Address            string    `gorm:"type:text" json:"address"`
	OldPrice           string    `gorm:"type:varchar(64)" json:"old_price"`
	NewPrice           string    `gorm:"type:varchar(64)" json:"new_price"`
	PriceDifference    string    `gorm:"type:varchar(64)" json:"price_difference"`
	PriceDifferencePct string    `gorm:"type:varchar(32)" json:"price_difference_pct"`
	Size               string    `gorm:"type:varchar(64)" json:"size"`
	PricePerSqm        string    `gorm:"type:varchar(64)" json:"price_per_sqm"`
	Timestamp          time.Time `gorm:"not null;index" json:"timestamp"`
	URL                string    `gorm:"type:text" json:"url"`
}

// TableName specifies the table name
func (PriceChange) TableName() string {
	return "price_changes"
}
