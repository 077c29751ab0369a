package scraper

import (
	"context"
	"errors"
	"listing-tracker/internal/ratelimit"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Contains(t, r.Header.Get("Accept-Language"), "fi-FI")
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{
		UserAgent:  "test-agent",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		Limiter:    ratelimit.NewHostLimiter(1, 0, 0),
	})

	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", body)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcherDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{MaxRetries: 3, RetryDelay: time.Millisecond})

	_, err := f.Fetch(context.Background(), srv.URL+"/gone")
	require.Error(t, err)
	assert.True(t, IsGone(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcherCircuitOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	breaker := NewCircuitBreaker(2, time.Hour, nil)
	f := NewHTTPFetcher(HTTPFetcherConfig{RetryDelay: time.Millisecond, Breaker: breaker})

	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), srv.URL)
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusForbidden, se.Code)
	}

	_, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, breaker.Status().Open)
}

func TestCircuitBreakerResets(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, 30*time.Minute, nil)
	cb.now = func() time.Time { return now }

	cb.RecordFailure(http.StatusTooManyRequests)
	assert.False(t, cb.CanProceed())

	now = now.Add(31 * time.Minute)
	assert.True(t, cb.CanProceed())
	assert.Equal(t, BreakerStatus{}, cb.Status())
}

func TestCircuitBreakerIgnoresNonBlockingStatus(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, nil)
	cb.RecordFailure(http.StatusNotFound)
	assert.True(t, cb.CanProceed())
}

func TestNominatimGeocoderFallsBackToStreetAndCity(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		queries = append(queries, q)
		assert.Equal(t, "fi", r.URL.Query().Get("countrycodes"))
		if strings.Contains(q, "Herttoniemi") {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[{"lat":"60.1951","lon":"25.0340"}]`))
	}))
	defer srv.Close()

	g := NewNominatimGeocoder(srv.URL, "fi", "test-agent", nil)
	g.limiter = ratelimit.NewHostLimiter(1, 0, 0)

	lat, lon, ok, err := g.Geocode(context.Background(), "Hiihtäjäntie 5, Herttoniemi, Helsinki ● Kerrostalo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 60.1951, lat, 1e-9)
	assert.InDelta(t, 25.0340, lon, 1e-9)
	assert.Equal(t, []string{"Hiihtäjäntie 5, Herttoniemi, Helsinki", "Hiihtäjäntie 5, Helsinki"}, queries)
}

func TestNominatimGeocoderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	g := NewNominatimGeocoder(srv.URL, "", "", nil)
	g.limiter = ratelimit.NewHostLimiter(1, 0, 0)

	_, _, ok, err := g.Geocode(context.Background(), "Nowhere 1")
	require.NoError(t, err)
	assert.False(t, ok)
}
