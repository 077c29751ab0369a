package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"listing-tracker/internal/cleanup"
	"listing-tracker/internal/config"
	"listing-tracker/internal/database"
	"listing-tracker/internal/models"
	"listing-tracker/internal/ratelimit"
	"listing-tracker/internal/scheduler"
	"listing-tracker/internal/search"
	"listing-tracker/internal/stats"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeRunner struct {
	running  bool
	triggers int
	dryRuns  []bool
	cleanErr error
}

func (r *fakeRunner) Trigger(context.Context) (string, error) {
	if r.running {
		return "", scheduler.ErrCycleInProgress
	}
	r.triggers++
	return "run-1", nil
}

func (r *fakeRunner) Running() bool { return r.running }

func (r *fakeRunner) LastReport() *scheduler.CycleReport {
	return &scheduler.CycleReport{RunID: "run-0", Status: scheduler.StatusSuccess}
}

func (r *fakeRunner) Cleanup(dryRun bool) (*cleanup.CleanupResult, error) {
	r.dryRuns = append(r.dryRuns, dryRun)
	if r.cleanErr != nil {
		return nil, r.cleanErr
	}
	return &cleanup.CleanupResult{DryRun: dryRun, Configured: true, DeletedIDs: []string{}}, nil
}

type fakeSearcher struct {
	params  search.FilterParams
	deleted []string
}

func (s *fakeSearcher) Search(p search.FilterParams) (*search.SearchResult, error) {
	s.params = p
	return &search.SearchResult{Hits: []search.Document{{ID: "1"}}, TotalHits: 1}, nil
}

func (s *fakeSearcher) DeleteListings(ids []string) error {
	s.deleted = append(s.deleted, ids...)
	return nil
}

type testAPI struct {
	router   *gin.Engine
	store    *database.GormDB
	runner   *fakeRunner
	searcher *fakeSearcher
}

func newTestAPI(t *testing.T, perMinute int) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(config.DatabaseConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "tracker.db")},
	})
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	api := &testAPI{store: db, runner: &fakeRunner{}, searcher: &fakeSearcher{}}
	limiter := ratelimit.NewRateLimiter(perMinute, 100, true)

	api.router = gin.New()
	RegisterRoutes(api.router,
		NewListingHandler(db, stats.NewAggregator(db, nil), api.searcher, quiet),
		NewAdminHandler(db, api.runner, limiter, quiet),
		nil)
	return api
}

func (a *testAPI) seed(t *testing.T, id, price string, sold bool) {
	t.Helper()
	lat, lon := 60.2, 25.0
	_, err := a.store.SaveListing(&models.Listing{
		ID:             id,
		Address:        "Katu " + id + ", Helsinki",
		Price:          price,
		Size:           "50 m²",
		URL:            "https://example.test/" + id,
		MaintenanceFee: "200 € / kk",
		Toilets:        "1 WC",
		Latitude:       &lat,
		Longitude:      &lon,
		Sold:           sold,
	})
	require.NoError(t, err)
}

func (a *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, 5)
	w := api.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestListAndGetListings(t *testing.T) {
	api := newTestAPI(t, 5)
	api.seed(t, "1", "100 000 €", true)
	api.seed(t, "2", "200 000 €", false)

	w := api.do(http.MethodGet, "/api/listings", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(2), body["count"])
	first := body["listings"].([]any)[0].(map[string]any)
	assert.Equal(t, "2", first["id"], "active listings come before sold ones")

	w = api.do(http.MethodGet, "/api/listings/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100 000 €", decode(t, w)["price"])

	w = api.do(http.MethodGet, "/api/listings/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistoryAndChanges(t *testing.T) {
	api := newTestAPI(t, 5)
	api.seed(t, "1", "500 000 €", false)
	api.seed(t, "1", "480 000 €", false)

	w := api.do(http.MethodGet, "/api/listings/1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["count"])

	w = api.do(http.MethodGet, "/api/changes?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, float64(1), body["count"])
	change := body["changes"].([]any)[0].(map[string]any)
	assert.Equal(t, "-20 000 €", change["price_difference"])
}

func TestSetFlags(t *testing.T) {
	api := newTestAPI(t, 5)
	api.seed(t, "1", "100 000 €", false)

	w := api.do(http.MethodPost, "/api/listings/1/favorite", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	w = api.do(http.MethodPost, "/api/listings/1/visited", `{"visited":false}`)
	require.Equal(t, http.StatusOK, w.Code)

	l, err := api.store.GetListing("1")
	require.NoError(t, err)
	assert.True(t, l.Favorite)
	assert.False(t, l.Visited)

	w = api.do(http.MethodPost, "/api/listings/1/remove", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"1"}, api.searcher.deleted)

	w = api.do(http.MethodGet, "/api/listings", "")
	assert.Equal(t, float64(0), decode(t, w)["count"])
	w = api.do(http.MethodGet, "/api/listings?include_removed=true", "")
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = api.do(http.MethodPost, "/api/listings/missing/favorite", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"success":false}`, w.Body.String())

	w = api.do(http.MethodPost, "/api/listings/1/favorite", `{"favorite":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsAndAnalytics(t *testing.T) {
	api := newTestAPI(t, 5)
	api.seed(t, "1", "500 000 €", false)
	api.seed(t, "1", "480 000 €", false)
	api.seed(t, "2", "200 000 €", false)

	w := api.do(http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, float64(1), body["price_drops"])

	w = api.do(http.MethodGet, "/api/analytics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, float64(1), body["listings_with_price_drops"])
	assert.Equal(t, float64(1), body["total_price_changes"])
}

func TestLastUpdate(t *testing.T) {
	api := newTestAPI(t, 5)

	w := api.do(http.MethodGet, "/api/last-update", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"last_update":null}`, w.Body.String())

	at := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	require.NoError(t, api.store.SetLastUpdate(at))
	w = api.do(http.MethodGet, "/api/last-update", "")
	assert.NotNil(t, decode(t, w)["last_update"])
}

func TestRefresh(t *testing.T) {
	api := newTestAPI(t, 2)

	w := api.do(http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "run-1", decode(t, w)["run_id"])

	api.runner.running = true
	w = api.do(http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, 1, api.runner.triggers)

	w = api.do(http.MethodGet, "/api/ratelimit/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAdminCleanup(t *testing.T) {
	api := newTestAPI(t, 5)

	w := api.do(http.MethodPost, "/api/admin/cleanup", `{"dry_run":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["dry_run"])

	w = api.do(http.MethodPost, "/api/admin/cleanup", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []bool{true, false}, api.runner.dryRuns)

	api.runner.cleanErr = scheduler.ErrCycleInProgress
	w = api.do(http.MethodPost, "/api/admin/cleanup", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	api.runner.cleanErr = fmt.Errorf("%w: 600 listings", cleanup.ErrDeletionLimit)
	w = api.do(http.MethodPost, "/api/admin/cleanup", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAdminStatsAndCycle(t *testing.T) {
	api := newTestAPI(t, 5)
	api.seed(t, "1", "100 000 €", true)
	api.seed(t, "2", "200 000 €", false)
	_, err := api.store.SetField("2", models.FieldRemoved, true)
	require.NoError(t, err)

	w := api.do(http.MethodGet, "/api/admin/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	listings := decode(t, w)["listings"].(map[string]any)
	assert.Equal(t, float64(2), listings["total"])
	assert.Equal(t, float64(1), listings["removed"])
	assert.Equal(t, float64(1), listings["sold"])

	w = api.do(http.MethodGet, "/api/admin/cycle", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["running"])
	assert.Equal(t, "run-0", body["last_report"].(map[string]any)["run_id"])

	w = api.do(http.MethodGet, "/api/admin/cleanup/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["count"])
}

func TestSearch(t *testing.T) {
	api := newTestAPI(t, 5)

	w := api.do(http.MethodGet, "/api/search?q=herttoniemi&min_price=100000&sort=price_value:desc&favorites=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "herttoniemi", api.searcher.params.Query)
	require.NotNil(t, api.searcher.params.MinPrice)
	assert.Equal(t, 100000.0, *api.searcher.params.MinPrice)
	assert.True(t, api.searcher.params.FavoritesOnly)

	w = api.do(http.MethodGet, "/api/search?min_price=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/search?sort=address", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
