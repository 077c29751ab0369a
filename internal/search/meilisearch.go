package search

import (
	"encoding/json"
	"fmt"
	"listing-tracker/internal/models"
	"listing-tracker/internal/pricing"
	"strings"

	"github.com/meilisearch/meilisearch-go"
)

// ListingIndex keeps a Meilisearch index of active listings for free-text search
type ListingIndex struct {
	client *meilisearch.Client
	index  string
}

// NewListingIndex creates a client for the given host and index
func NewListingIndex(host, apiKey, index string) *ListingIndex {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})
	if index == "" {
		index = "listings"
	}

	return &ListingIndex{
		client: client,
		index:  index,
	}
}

// Document is the indexed form of a listing. Prices and sizes are stored
// both as the source text and as numbers for filtering and sorting.
type Document struct {
	ID             string  `json:"id"`
	Address        string  `json:"address"`
	Price          string  `json:"price"`
	PriceValue     float64 `json:"price_value"`
	Size           string  `json:"size"`
	SizeValue      float64 `json:"size_value"`
	URL            string  `json:"url"`
	Image          string  `json:"image"`
	PricePerSqm    string  `json:"price_per_sqm"`
	MaintenanceFee string  `json:"maintenance_fee"`
	Toilets        string  `json:"toilets"`
	OpenHouse      string  `json:"open_house"`
	HasOpenHouse   bool    `json:"has_open_house"`
	Sold           bool    `json:"sold"`
	Visited        bool    `json:"visited"`
	Favorite       bool    `json:"favorite"`
	PriceDrop      bool    `json:"price_drop"`
	FirstSeen      int64   `json:"first_seen"`
}

// NewDocument converts a listing for indexing
func NewDocument(l models.Listing) Document {
	return Document{
		ID:             l.ID,
		Address:        l.Address,
		Price:          l.Price,
		PriceValue:     pricing.ParseFloat(l.Price),
		Size:           l.Size,
		SizeValue:      pricing.ParseFloat(l.Size),
		URL:            l.URL,
		Image:          l.Image,
		PricePerSqm:    l.PricePerSqm,
		MaintenanceFee: l.MaintenanceFee,
		Toilets:        l.Toilets,
		OpenHouse:      l.OpenHouse,
		HasOpenHouse:   strings.TrimSpace(l.OpenHouse) != "",
		Sold:           l.Sold,
		Visited:        l.Visited,
		Favorite:       l.Favorite,
		PriceDrop:      l.PriceDrop,
		FirstSeen:      l.Timestamp.Unix(),
	}
}

// InitIndex initializes the Meilisearch index
func (s *ListingIndex) InitIndex() error {
	// Create index if it doesn't exist
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSearchableAttributes(&[]string{
		"address",
		"open_house",
		"toilets",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateFilterableAttributes(&[]string{
		"price_value",
		"size_value",
		"sold",
		"visited",
		"favorite",
		"price_drop",
		"has_open_house",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSortableAttributes(&[]string{
		"price_value",
		"size_value",
		"first_seen",
	})
	return err
}

// IndexListings adds or replaces the given listings
func (s *ListingIndex) IndexListings(listings []models.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	docs := make([]Document, 0, len(listings))
	for _, l := range listings {
		docs = append(docs, NewDocument(l))
	}
	_, err := s.client.Index(s.index).AddDocuments(docs)
	return err
}

// DeleteListings removes listings from the index
func (s *ListingIndex) DeleteListings(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.client.Index(s.index).DeleteDocuments(ids)
	return err
}

// SearchResult represents search results
type SearchResult struct {
	Hits           []Document `json:"hits"`
	TotalHits      int64      `json:"total_hits"`
	ProcessingTime int64      `json:"processing_time_ms"`
}

// Search runs a filtered query
func (s *ListingIndex) Search(params FilterParams) (*SearchResult, error) {
	req, err := params.Request()
	if err != nil {
		return nil, err
	}

	searchRes, err := s.client.Index(s.index).Search(params.Query, req)
	if err != nil {
		return nil, err
	}

	hits := make([]Document, 0, len(searchRes.Hits))
	for _, hit := range searchRes.Hits {
		doc, err := decodeHit(hit)
		if err != nil {
			continue
		}
		hits = append(hits, doc)
	}

	return &SearchResult{
		Hits:           hits,
		TotalHits:      searchRes.EstimatedTotalHits,
		ProcessingTime: searchRes.ProcessingTimeMs,
	}, nil
}

func decodeHit(hit interface{}) (Document, error) {
	var doc Document
	hitJSON, err := json.Marshal(hit)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(hitJSON, &doc); err != nil {
		return doc, fmt.Errorf("invalid search hit: %w", err)
	}
	return doc, nil
}
