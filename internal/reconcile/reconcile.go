package reconcile

import (
	"listing-tracker/internal/models"
	"listing-tracker/internal/openhouse"
	"listing-tracker/internal/pricing"
	"strings"
)

// Kind tells whether a listing's stored enrichment can be reused
type Kind int

const (
	// UpToDate means the stored record is merged with the snapshot and saved as is
	UpToDate Kind = iota
	// NeedsEnrichment means the listing has to go through the detail fetcher
	NeedsEnrichment
)

func (k Kind) String() string {
	switch k {
	case UpToDate:
		return "up_to_date"
	case NeedsEnrichment:
		return "needs_enrichment"
	default:
		return "unknown"
	}
}

// Reasons for NeedsEnrichment
const (
	ReasonNew              = "new"
	ReasonPriceChanged     = "price_changed"
	ReasonOpenHouseChanged = "open_house_changed"
	ReasonMissingFee       = "missing_maintenance_fee"
	ReasonMissingCoords    = "missing_coordinates"
)

// Decision is the classification of one snapshot
type Decision struct {
	Kind    Kind
	Listing models.Listing
	Reason  string
}

// Classify decides whether fresh can reuse the enrichment of existing.
// existing is nil for a listing that has never been stored. Classify does
// not touch storage.
func Classify(fresh models.RawSnapshot, existing *models.Listing) Decision {
	l := FromSnapshot(fresh)

	if existing == nil {
		return Decision{Kind: NeedsEnrichment, Listing: l, Reason: ReasonNew}
	}

	carryUserState(&l, existing)

	reason := mismatch(fresh, existing)
	if reason != "" {
		carryDefaults(&l, existing)
		return Decision{Kind: NeedsEnrichment, Listing: l, Reason: reason}
	}

	mergeEnrichment(&l, existing)
	return Decision{Kind: UpToDate, Listing: l}
}

func mismatch(fresh models.RawSnapshot, existing *models.Listing) string {
	switch {
	case existing.Price != fresh.Price:
		return ReasonPriceChanged
	case !openhouse.Equivalent(existing.OpenHouse, fresh.OpenHouse):
		return ReasonOpenHouseChanged
	case !existing.HasMaintenanceFee():
		return ReasonMissingFee
	case !existing.HasCoordinates():
		return ReasonMissingCoords
	}
	return ""
}

// FromSnapshot converts a source observation into a listing with sentinel
// enrichment values. The first-seen timestamp is the observation time.
func FromSnapshot(s models.RawSnapshot) models.Listing {
	l := models.Listing{
		ID:             s.ID,
		Address:        s.Address,
		Price:          s.Price,
		Size:           s.Size,
		URL:            s.URL,
		Image:          s.Image,
		OpenHouse:      s.OpenHouse,
		MaintenanceFee: orNotAvailable(s.MaintenanceFee),
		Toilets:        orNotAvailable(s.Toilets),
		Latitude:       s.Latitude,
		Longitude:      s.Longitude,
		Sold:           s.Sold,
		Timestamp:      s.ObservedAt,
	}
	l.PricePerSqm = pricing.PerSquareMeter(l.Price, l.Size)
	return l
}

func orNotAvailable(v string) string {
	if strings.TrimSpace(v) == "" {
		return models.NotAvailable
	}
	return v
}

// carryUserState keeps the flags only the user changes and the first-seen time
func carryUserState(l *models.Listing, existing *models.Listing) {
	l.Visited = existing.Visited
	l.Favorite = existing.Favorite
	l.Removed = existing.Removed
	if !existing.Timestamp.IsZero() {
		l.Timestamp = existing.Timestamp
	}
}

// carryDefaults seeds a pending listing with what is already known so a
// failed enrichment does not erase it
func carryDefaults(l *models.Listing, existing *models.Listing) {
	if l.MaintenanceFee == models.NotAvailable && existing.HasMaintenanceFee() {
		l.MaintenanceFee = existing.MaintenanceFee
	}
	if l.Toilets == models.NotAvailable && existing.Toilets != "" {
		l.Toilets = existing.Toilets
	}
	if !l.HasCoordinates() && existing.HasCoordinates() {
		l.Latitude, l.Longitude = existing.Latitude, existing.Longitude
	}
}

func mergeEnrichment(l *models.Listing, existing *models.Listing) {
	l.MaintenanceFee = existing.MaintenanceFee
	l.Toilets = orNotAvailable(existing.Toilets)
	l.Latitude, l.Longitude = existing.Latitude, existing.Longitude
	l.Sold = existing.Sold
	if existing.PricePerSqm != "" && existing.PricePerSqm != models.NotAvailable {
		l.PricePerSqm = existing.PricePerSqm
	}
	if openhouse.IsGeneric(l.OpenHouse) && existing.OpenHouse != "" {
		l.OpenHouse = existing.OpenHouse
	}
	if IsGalleryImage(existing.Image) {
		l.Image = existing.Image
	}
}

// IsGalleryImage reports whether url is a full-size gallery image taken from
// a detail page rather than a search card thumbnail
func IsGalleryImage(url string) bool {
	return strings.HasPrefix(url, "http") && strings.Contains(url, "galleria")
}

// Lookup loads stored listings by id
type Lookup interface {
	GetListingsByID(ids []string) (map[string]models.Listing, error)
}

// Result groups the decisions of one reconciliation
type Result struct {
	UpToDate []models.Listing
	Pending  []models.Listing
	Reasons  map[string]string
}

// Reconcile classifies every snapshot against the stored listings. Duplicate
// ids keep their first occurrence.
func Reconcile(snapshots []models.RawSnapshot, store Lookup) (*Result, error) {
	ids := make([]string, 0, len(snapshots))
	seen := make(map[string]struct{}, len(snapshots))
	unique := snapshots[:0:0]
	for _, s := range snapshots {
		if s.ID == "" {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		ids = append(ids, s.ID)
		unique = append(unique, s)
	}

	existing, err := store.GetListingsByID(ids)
	if err != nil {
		return nil, err
	}

	result := &Result{Reasons: make(map[string]string)}
	for _, s := range unique {
		var prior *models.Listing
		if l, ok := existing[s.ID]; ok {
			prior = &l
		}

		d := Classify(s, prior)
		switch d.Kind {
		case UpToDate:
			result.UpToDate = append(result.UpToDate, d.Listing)
		default:
			result.Pending = append(result.Pending, d.Listing)
			result.Reasons[s.ID] = d.Reason
		}
	}
	return result, nil
}
