package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"listing-tracker/internal/ratelimit"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Geocoder resolves a street address to coordinates
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lon float64, ok bool, err error)
}

// NominatimGeocoder queries an OpenStreetMap Nominatim search endpoint
type NominatimGeocoder struct {
	client       *http.Client
	endpoint     string
	countryCodes string
	userAgent    string
	limiter      *ratelimit.HostLimiter
	logger       *slog.Logger
}

// NewNominatimGeocoder creates a geocoder. Nominatim's usage policy allows
// one request per second, which the limiter enforces.
func NewNominatimGeocoder(endpoint, countryCodes, userAgent string, logger *slog.Logger) *NominatimGeocoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &NominatimGeocoder{
		client:       &http.Client{Timeout: 10 * time.Second},
		endpoint:     endpoint,
		countryCodes: countryCodes,
		userAgent:    userAgent,
		limiter:      ratelimit.NewHostLimiter(1, time.Second, 0),
		logger:       logger.With("component", "geocoder"),
	}
}

type nominatimPlace struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode looks up the address. Card addresses carry the building type
// after a '●' which is dropped; when the full address is not found the
// street and city alone are tried.
func (g *NominatimGeocoder) Geocode(ctx context.Context, address string) (float64, float64, bool, error) {
	addr := address
	if i := strings.Index(addr, "●"); i >= 0 {
		addr = addr[:i]
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return 0, 0, false, nil
	}

	lat, lon, ok, err := g.lookup(ctx, addr)
	if err != nil || ok {
		return lat, lon, ok, err
	}

	if strings.Contains(addr, ",") {
		parts := strings.Split(addr, ",")
		street := strings.TrimSpace(parts[0])
		city := strings.TrimSpace(parts[len(parts)-1])
		fallback := street + ", " + city
		if fallback != addr {
			g.logger.Debug("retrying with street and city", "address", fallback)
			return g.lookup(ctx, fallback)
		}
	}
	return 0, 0, false, nil
}

func (g *NominatimGeocoder) lookup(ctx context.Context, query string) (float64, float64, bool, error) {
	if err := g.limiter.Acquire(ctx); err != nil {
		return 0, 0, false, err
	}
	defer g.limiter.Release()

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	if g.countryCodes != "" {
		params.Set("countrycodes", g.countryCodes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return 0, 0, false, err
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, 0, false, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, 0, false, &StatusError{URL: g.endpoint, Code: resp.StatusCode}
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return 0, 0, false, fmt.Errorf("failed to decode geocode response: %w", err)
	}
	if len(places) == 0 {
		return 0, 0, false, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid longitude %q: %w", places[0].Lon, err)
	}
	return lat, lon, true, nil
}
