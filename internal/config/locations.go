package config

import (
	"encoding/json"
	"net/url"
	"strings"
)

// LocationsFromSearchURL extracts location names from a search URL. The
// "locations" parameter holds a JSON list of [id, level, "Name, City"]
// triples; the name before the first comma is used. A free-text "text"
// parameter is taken as is.
func LocationsFromSearchURL(raw string) []string {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	query := u.Query()

	var locations []string
	if val := strings.TrimSpace(query.Get("locations")); strings.HasPrefix(val, "[") {
		var items [][]any
		if err := json.Unmarshal([]byte(val), &items); err == nil {
			for _, item := range items {
				if len(item) < 3 {
					continue
				}
				name, ok := item[2].(string)
				if !ok {
					continue
				}
				if simple := strings.TrimSpace(strings.Split(name, ",")[0]); simple != "" {
					locations = append(locations, simple)
				}
			}
		}
	}
	if text := strings.TrimSpace(query.Get("text")); text != "" {
		locations = append(locations, text)
	}
	return locations
}

// Terms returns the configured allow-list terms, including the ones derived
// from the search URL when enabled.
func (b BoundaryConfig) Terms(searchURL string) []string {
	terms := append([]string(nil), b.Locations...)
	if b.FromSearchURL {
		terms = append(terms, LocationsFromSearchURL(searchURL)...)
	}
	return terms
}
