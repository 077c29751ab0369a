package models

import "time"

// NotAvailable is the sentinel stored for enrichment fields that could not be determined.
const NotAvailable = "N/A"

// Flippable field names accepted by the store's partial update.
const (
	FieldVisited  = "visited"
	FieldFavorite = "favorite"
	FieldRemoved  = "removed"
)

// Listing is the current state of one tracked listing, keyed by the source id.
type Listing struct {
	ID      string `gorm:"type:varchar(64);primaryKey" json:"id"`
	Address string `gorm:"type:text" json:"address"`
	Price   string `gorm:"type:varchar(64)" json:"price"`
	Size    string `gorm:"type:varchar(64)" json:"size"`
	URL     string `gorm:"type:text" json:"url"`
	Image   string `gorm:"type:text" json:"image"`

	// Enrichment
	PricePerSqm    string   `gorm:"type:varchar(64)" json:"price_per_sqm"`
	MaintenanceFee string   `gorm:"type:varchar(64)" json:"maintenance_fee"`
	Toilets        string   `gorm:"type:varchar(128)" json:"toilets"`
	OpenHouse      string   `gorm:"type:text" json:"open_house"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`

	// Status
	Sold      bool `gorm:"not null;index" json:"sold"`
	Visited   bool `gorm:"not null" json:"visited"`
	Favorite  bool `gorm:"not null" json:"favorite"`
	Removed   bool `gorm:"not null;index" json:"removed"`
	PriceDrop bool `gorm:"not null" json:"price_drop"`

	// Timestamp is the first time the listing was observed. It is carried
	// forward on every save so the listing keeps its age.
	Timestamp  time.Time `gorm:"not null;index" json:"timestamp"`
	LastSeenAt time.Time `gorm:"not null" json:"last_seen_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (Listing) TableName() string {
	return "listings"
}

// HasMaintenanceFee reports whether the fee has been enriched.
func (l *Listing) HasMaintenanceFee() bool {
	return l.MaintenanceFee != "" && l.MaintenanceFee != NotAvailable
}

// HasCoordinates reports whether both coordinates are known.
func (l *Listing) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// IsFlippableField reports whether name can be changed through a field flip.
func IsFlippableField(name string) bool {
	switch name {
	case FieldVisited, FieldFavorite, FieldRemoved:
		return true
	}
	return false
}
