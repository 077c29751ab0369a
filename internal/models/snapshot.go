package models

import "time"

// RawSnapshot is one observation of a listing as reported by the source.
// Prices and sizes stay in the source's own formatting.
type RawSnapshot struct {
	ID             string
	Address        string
	Price          string
	Size           string
	URL            string
	Image          string
	OpenHouse      string
	MaintenanceFee string
	Toilets        string
	Latitude       *float64
	Longitude      *float64
	Sold           bool
	ObservedAt     time.Time
}
