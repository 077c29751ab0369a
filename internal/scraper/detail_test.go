package scraper

import (
	"context"
	"errors"
	"listing-tracker/internal/config"
	"listing-tracker/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGeocoder struct {
	calls    int
	lat, lon float64
	ok       bool
	err      error
}

func (g *fakeGeocoder) Geocode(context.Context, string) (float64, float64, bool, error) {
	g.calls++
	return g.lat, g.lon, g.ok, g.err
}

const detailPage = `<html><head>
<meta property="og:image" content="https://cdn.example.com/og.jpg">
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"Residence","geo":{"@type":"GeoCoordinates","latitude":60.1951,"longitude":"25.0340"}},
  {"@type":"Event","name":"Esittely","startDate":"2024-05-12T14:00:00+03:00"},
  {"@type":"Event","name":"Esittely","startDate":"2024-05-19T12:30:00+03:00"}
]}
</script>
</head><body>
<div class="galleria-stage"><img src="https://cdn.example.com/galleria/big.jpg"></div>
<dl>
  <dt>Neliöhinta</dt><dd>6 199 €/m²</dd>
  <dt>Hoitovastike</dt><dd>250,00 € / kk</dd>
  <dt>Huoneiston kokoonpano</dt><dd>3h, k, kph, erillinen wc</dd>
</dl>
</body></html>`

const viewingsPage = `<html><body>
<dl><dt>Hoitovastike</dt><dd>180 € / kk</dd></dl>
<div class="paragraph--keep-formatting">Asunnossa on 2 wc:tä ja sauna.</div>
<ul class="public-viewings">
  <li class="public-viewings__item"><b>ma 13.5.</b><span class="public-viewings__item-content">17:00 - 17:30</span></li>
  <li class="public-viewings__item"><b>su 19.5.</b><span class="public-viewings__item-content">12:00 - 12:30</span></li>
</ul>
</body></html>`

const soldPage = `<html><body><h1>Kohde on poistunut myynnistä</h1>
<script type="application/ld+json">{"@type":"Event","startDate":"2024-05-12T14:00:00+03:00"}</script>
</body></html>`

func pendingListing(url string) models.Listing {
	return models.Listing{
		ID:             "101",
		Address:        "Hiihtäjäntie 5, Herttoniemi, Helsinki ● Kerrostalo",
		Price:          "468 000 €",
		URL:            url,
		Image:          "https://cdn.example.com/card.jpg",
		OpenHouse:      "Esittely",
		MaintenanceFee: models.NotAvailable,
		Toilets:        models.NotAvailable,
		PricePerSqm:    models.NotAvailable,
	}
}

func TestFetchDetails(t *testing.T) {
	geo := &fakeGeocoder{}
	d := NewDetailScraper(pageMap{"https://e.com/101": detailPage}, config.DefaultConfig().Scraper, geo, nil)

	l, err := d.FetchDetails(context.Background(), pendingListing("https://e.com/101"))
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/galleria/big.jpg", l.Image)
	assert.Equal(t, "6 199 €/m²", l.PricePerSqm)
	assert.Equal(t, "250,00 € / kk", l.MaintenanceFee)
	assert.Equal(t, "Erillinen WC", l.Toilets)
	assert.Equal(t, "12.05. klo 14:00, 19.05. klo 12:30", l.OpenHouse)
	require.True(t, l.HasCoordinates())
	assert.InDelta(t, 60.1951, *l.Latitude, 1e-9)
	assert.InDelta(t, 25.0340, *l.Longitude, 1e-9)
	assert.False(t, l.Sold)
	assert.Zero(t, geo.calls)
}

func TestFetchDetailsViewingsAndGeocoder(t *testing.T) {
	geo := &fakeGeocoder{lat: 60.2, lon: 25.1, ok: true}
	d := NewDetailScraper(pageMap{"https://e.com/101": viewingsPage}, config.DefaultConfig().Scraper, geo, nil)

	l, err := d.FetchDetails(context.Background(), pendingListing("https://e.com/101"))
	require.NoError(t, err)

	assert.Equal(t, "180 € / kk", l.MaintenanceFee)
	assert.Equal(t, "2 WC", l.Toilets)
	assert.Equal(t, "ma 13.5. 17:00 - 17:30 | su 19.5. 12:00 - 12:30", l.OpenHouse)
	assert.Equal(t, "https://cdn.example.com/card.jpg", l.Image)
	assert.Equal(t, 1, geo.calls)
	require.True(t, l.HasCoordinates())
	assert.Equal(t, 60.2, *l.Latitude)
}

func TestFetchDetailsGeocoderErrorIsNotFatal(t *testing.T) {
	geo := &fakeGeocoder{err: errors.New("timeout")}
	d := NewDetailScraper(pageMap{"https://e.com/101": viewingsPage}, config.DefaultConfig().Scraper, geo, nil)

	l, err := d.FetchDetails(context.Background(), pendingListing("https://e.com/101"))
	require.NoError(t, err)
	assert.False(t, l.HasCoordinates())
	assert.Equal(t, "180 € / kk", l.MaintenanceFee)
}

func TestFetchDetailsSoldMarker(t *testing.T) {
	d := NewDetailScraper(pageMap{"https://e.com/101": soldPage}, config.DefaultConfig().Scraper, nil, nil)

	l, err := d.FetchDetails(context.Background(), pendingListing("https://e.com/101"))
	require.NoError(t, err)
	assert.True(t, l.Sold)
	assert.Empty(t, l.OpenHouse)
}

func TestFetchDetailsGonePageMarksSold(t *testing.T) {
	d := NewDetailScraper(pageMap{}, config.DefaultConfig().Scraper, nil, nil)

	l, err := d.FetchDetails(context.Background(), pendingListing("https://e.com/missing"))
	require.NoError(t, err)
	assert.True(t, l.Sold)
	assert.Empty(t, l.OpenHouse)
	assert.Equal(t, models.NotAvailable, l.MaintenanceFee)
}

func TestFetchDetailsTransportErrorKeepsListing(t *testing.T) {
	failing := fetchFunc(func(context.Context, string) (string, error) {
		return "", errors.New("connection reset")
	})
	d := NewDetailScraper(failing, config.DefaultConfig().Scraper, nil, nil)

	in := pendingListing("https://e.com/101")
	l, err := d.FetchDetails(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, in, l)
}

type fetchFunc func(ctx context.Context, url string) (string, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) (string, error) { return f(ctx, url) }

func TestExtractToilets(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"3h+k+s", ""},
		{"4h, k, kph, erillinen wc", "Erillinen WC"},
		{"5h, k, 2 wc, s", "2 WC"},
		{"5h+k+kph+wc+erill. wc", "2 WC (sis. erillinen WC)"},
		{"Kolme wc:tä ja sauna", "3 WC"},
		{"wc:itä 2", "2 WC"},
		{"2 x WC, erillinen wc", "2 WC (sis. erillinen WC)"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractToilets(tt.in))
		})
	}
}
