package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/meilisearch/meilisearch-go"
)

// FilterParams are the search options accepted by the API
type FilterParams struct {
	Query         string
	MinPrice      *float64
	MaxPrice      *float64
	MinSize       *float64
	MaxSize       *float64
	IncludeSold   bool
	FavoritesOnly bool
	PriceDropOnly bool
	OpenHouseOnly bool
	SortBy        string
	Limit         int64
	Offset        int64
}

var sortableFields = map[string]bool{
	"price_value": true,
	"size_value":  true,
	"first_seen":  true,
}

// Filter builds the Meilisearch filter expression
func (p FilterParams) Filter() string {
	var filters []string

	if !p.IncludeSold {
		filters = append(filters, "sold = false")
	}
	if p.MinPrice != nil {
		filters = append(filters, "price_value >= "+formatNumber(*p.MinPrice))
	}
	if p.MaxPrice != nil {
		filters = append(filters, "price_value <= "+formatNumber(*p.MaxPrice))
	}
	if p.MinSize != nil {
		filters = append(filters, "size_value >= "+formatNumber(*p.MinSize))
	}
	if p.MaxSize != nil {
		filters = append(filters, "size_value <= "+formatNumber(*p.MaxSize))
	}
	if p.FavoritesOnly {
		filters = append(filters, "favorite = true")
	}
	if p.PriceDropOnly {
		filters = append(filters, "price_drop = true")
	}
	if p.OpenHouseOnly {
		filters = append(filters, "has_open_house = true")
	}

	return strings.Join(filters, " AND ")
}

// Sort validates SortBy ("field" or "field:asc|desc") and returns the sort rules
func (p FilterParams) Sort() ([]string, error) {
	if p.SortBy == "" {
		return nil, nil
	}
	field, dir, found := strings.Cut(p.SortBy, ":")
	if !found {
		dir = "asc"
	}
	if !sortableFields[field] {
		return nil, fmt.Errorf("cannot sort by %q", field)
	}
	if dir != "asc" && dir != "desc" {
		return nil, fmt.Errorf("invalid sort direction %q", dir)
	}
	return []string{field + ":" + dir}, nil
}

// Request converts the params into a Meilisearch request
func (p FilterParams) Request() (*meilisearch.SearchRequest, error) {
	sort, err := p.Sort()
	if err != nil {
		return nil, err
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	req := &meilisearch.SearchRequest{
		Limit:  limit,
		Offset: p.Offset,
	}
	if filter := p.Filter(); filter != "" {
		req.Filter = filter
	}
	if len(sort) > 0 {
		req.Sort = sort
	}
	return req, nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
