package scraper

import (
	"context"
	"encoding/json"
	"listing-tracker/internal/config"
	"listing-tracker/internal/models"
	"listing-tracker/internal/openhouse"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DetailScraper enriches a listing from its detail page
type DetailScraper struct {
	fetcher     PageFetcher
	geocoder    Geocoder
	selectors   config.SelectorConfig
	soldMarkers []string
	logger      *slog.Logger
}

// NewDetailScraper creates a DetailScraper. geocoder may be nil.
func NewDetailScraper(fetcher PageFetcher, cfg config.ScraperConfig, geocoder Geocoder, logger *slog.Logger) *DetailScraper {
	if logger == nil {
		logger = slog.Default()
	}
	markers := make([]string, 0, len(cfg.SoldMarkers))
	for _, m := range cfg.SoldMarkers {
		markers = append(markers, strings.ToLower(m))
	}
	return &DetailScraper{
		fetcher:     fetcher,
		geocoder:    geocoder,
		selectors:   cfg.Selectors,
		soldMarkers: markers,
		logger:      logger.With("component", "detail_scraper"),
	}
}

// FetchDetails visits the listing's page and returns a copy with whatever
// enrichment could be read. A page that answers 404 or 410 means the
// listing is gone and it is returned marked sold. Geocoding failures are
// logged and leave the coordinates unset.
func (d *DetailScraper) FetchDetails(ctx context.Context, l models.Listing) (models.Listing, error) {
	html, err := d.fetcher.Fetch(ctx, l.URL)
	if err != nil {
		if IsGone(err) {
			d.logger.Info("listing page gone, marking sold", "id", l.ID)
			l.Sold = true
			l.OpenHouse = ""
			return l, nil
		}
		return l, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return l, err
	}

	d.parse(doc, &l)

	if !l.HasCoordinates() && d.geocoder != nil {
		lat, lon, ok, err := d.geocoder.Geocode(ctx, l.Address)
		switch {
		case err != nil:
			d.logger.Warn("geocoding failed", "id", l.ID, "address", l.Address, "error", err)
		case ok:
			l.Latitude, l.Longitude = &lat, &lon
		default:
			d.logger.Debug("address not found by geocoder", "id", l.ID, "address", l.Address)
		}
	}

	return l, nil
}

func (d *DetailScraper) parse(doc *goquery.Document, l *models.Listing) {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	bodyText := strings.ToLower(body.Text())
	for _, marker := range d.soldMarkers {
		if marker != "" && strings.Contains(bodyText, marker) {
			l.Sold = true
			l.OpenHouse = ""
			break
		}
	}

	if src := imageSource(doc.Find(d.selectors.GalleryImage).First()); src != "" {
		l.Image = src
	} else if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && og != "" {
		l.Image = og
	}

	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		key := strings.ToLower(collapseSpace(dt.Text()))
		dd := dt.NextFiltered("dd")
		if dd.Length() == 0 {
			return
		}
		value := collapseSpace(dd.Text())
		if value == "" {
			return
		}
		switch {
		case strings.Contains(key, "neliöhinta"):
			l.PricePerSqm = value
		case strings.Contains(key, "hoitovastike"):
			l.MaintenanceFee = value
		case strings.Contains(key, "huoneiston kokoonpano"):
			if t := ExtractToilets(value); t != "" {
				l.Toilets = t
			}
		}
	})

	if (l.Toilets == "" || l.Toilets == models.NotAvailable) && d.selectors.Description != "" {
		if t := ExtractToilets(doc.Find(d.selectors.Description).First().Text()); t != "" {
			l.Toilets = t
		}
	}

	ld := jsonLDItems(doc)

	if !l.Sold {
		if events := eventTimes(ld); len(events) > 0 {
			l.OpenHouse = strings.Join(events, ", ")
		} else if l.OpenHouse == "" || openhouse.IsGeneric(l.OpenHouse) {
			if viewings := d.viewings(doc); len(viewings) > 0 {
				l.OpenHouse = strings.Join(viewings, " | ")
			}
		}
	}

	if lat, lon, ok := geoFromLD(ld); ok {
		l.Latitude, l.Longitude = &lat, &lon
	}
}

func (d *DetailScraper) viewings(doc *goquery.Document) []string {
	if d.selectors.ViewingItem == "" {
		return nil
	}
	var out []string
	doc.Find(d.selectors.ViewingItem).Each(func(_ int, item *goquery.Selection) {
		date := collapseSpace(item.Find("b").First().Text())
		when := collapseSpace(item.Find(d.selectors.ViewingTime).First().Text())
		if date == "" || when == "" {
			return
		}
		out = append(out, date+" "+when)
	})
	return out
}

// jsonLDItems flattens every JSON-LD script on the page into a list of objects
func jsonLDItems(doc *goquery.Document) []map[string]any {
	var items []map[string]any
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return
		}
		items = append(items, flattenLD(data)...)
	})
	return items
}

func flattenLD(data any) []map[string]any {
	switch v := data.(type) {
	case []any:
		var out []map[string]any
		for _, item := range v {
			out = append(out, flattenLD(item)...)
		}
		return out
	case map[string]any:
		out := []map[string]any{v}
		if graph, ok := v["@graph"]; ok {
			out = append(out, flattenLD(graph)...)
		}
		return out
	}
	return nil
}

var eventLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

// eventTimes formats the start of every Event item as "02.01. klo 15:04".
// An unparseable start falls back to the event name.
func eventTimes(items []map[string]any) []string {
	var out []string
	for _, item := range items {
		if t, _ := item["@type"].(string); t != "Event" {
			continue
		}
		start, _ := item["startDate"].(string)
		if start == "" {
			continue
		}
		if when, ok := parseEventTime(start); ok {
			out = append(out, when.Format("02.01. klo 15:04"))
		} else if name, _ := item["name"].(string); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func parseEventTime(s string) (time.Time, bool) {
	for _, layout := range eventLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func geoFromLD(items []map[string]any) (float64, float64, bool) {
	for _, item := range items {
		geo, ok := item["geo"].(map[string]any)
		if !ok {
			continue
		}
		lat, latOK := number(geo["latitude"])
		lon, lonOK := number(geo["longitude"])
		if latOK && lonOK {
			return lat, lon, true
		}
	}
	return 0, 0, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
