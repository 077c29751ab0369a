package scheduler

import (
	"context"
	"errors"
	"io"
	"listing-tracker/internal/cleanup"
	"listing-tracker/internal/config"
	"listing-tracker/internal/database"
	"listing-tracker/internal/models"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSource struct {
	mu        sync.Mutex
	snapshots []models.RawSnapshot
	err       error
}

func (s *fakeSource) set(snapshots ...models.RawSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = snapshots
}

func (s *fakeSource) FetchSnapshots(ctx context.Context) ([]models.RawSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots, s.err
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	block chan struct{}
	fail  map[string]bool
	sold  map[string]bool
}

func (f *fakeFetcher) FetchDetails(ctx context.Context, l models.Listing) (models.Listing, error) {
	f.mu.Lock()
	f.calls = append(f.calls, l.ID)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if f.fail[l.ID] {
		return l, errors.New("detail page unavailable")
	}
	lat, lon := 60.19, 25.03
	l.MaintenanceFee = "300 € / kk"
	l.Toilets = "1 WC"
	l.Latitude, l.Longitude = &lat, &lon
	if f.sold[l.ID] {
		l.Sold = true
	}
	return l, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestStore(t *testing.T) *database.GormDB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "tracker.db")},
	})
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })
	return db
}

func snap(id, address, price string) models.RawSnapshot {
	return models.RawSnapshot{
		ID:         id,
		Address:    address,
		Price:      price,
		Size:       "50 m²",
		URL:        "https://example.test/" + id,
		ObservedAt: time.Now(),
	}
}

func TestRunCycleEnrichesThenReusesDetails(t *testing.T) {
	store := newTestStore(t)
	source := &fakeSource{}
	source.set(
		snap("1", "Kettutie 3, Herttoniemi, Helsinki", "250 000 €"),
		snap("2", "Siilitie 8, Herttoniemi, Helsinki", "300 000 €"),
	)
	fetcher := &fakeFetcher{}
	runner := NewRunner(Deps{Source: source, Store: store, Fetcher: fetcher, Logger: quiet}, Options{EnrichmentWorkers: 2})

	report, err := runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)
	assert.Equal(t, 2, report.Pending)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 2, report.Saved)
	assert.Equal(t, 2, fetcher.callCount())

	stored, err := store.GetListing("1")
	require.NoError(t, err)
	assert.Equal(t, "300 € / kk", stored.MaintenanceFee)
	assert.Equal(t, "5 000,00 €/m²", stored.PricePerSqm)

	report, err = runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.UpToDate)
	assert.Equal(t, 0, report.Pending)
	assert.Equal(t, 0, report.HistoryAppends)
	assert.Equal(t, 2, fetcher.callCount(), "up-to-date listings are not fetched again")

	last, err := store.GetLastUpdate()
	require.NoError(t, err)
	assert.NotNil(t, last)
	assert.Same(t, report, runner.LastReport())
}

func TestRunCyclePriceChange(t *testing.T) {
	store := newTestStore(t)
	source := &fakeSource{}
	source.set(snap("1", "Kettutie 3, Herttoniemi", "500 000 €"))
	runner := NewRunner(Deps{Source: source, Store: store, Fetcher: &fakeFetcher{}, Logger: quiet}, Options{})

	_, err := runner.RunCycle(context.Background())
	require.NoError(t, err)

	source.set(snap("1", "Kettutie 3, Herttoniemi", "480 000 €"))
	report, err := runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pending)
	assert.Equal(t, 1, report.PriceChanges)

	stored, err := store.GetListing("1")
	require.NoError(t, err)
	assert.True(t, stored.PriceDrop)
}

func TestRunCycleSourceUnavailable(t *testing.T) {
	store := newTestStore(t)
	_, err := store.SaveListing(&models.Listing{ID: "keep", Address: "Kulosaari", Price: "1 €"})
	require.NoError(t, err)

	source := &fakeSource{err: errors.New("connection refused")}
	cleaner := cleanup.NewService(store, nil, nil, quiet)
	runner := NewRunner(Deps{Source: source, Store: store, Fetcher: &fakeFetcher{}, Cleaner: cleaner, Logger: quiet}, Options{
		CleanupAfterCycle: true,
		VerifyMissing:     true,
		AllowList:         cleanup.NewAllowList("Herttoniemi"),
	})

	report, err := runner.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, StatusSourceUnavailable, report.Status)

	source.err = nil
	_, err = runner.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable, "an empty result is unavailable too")

	_, err = store.GetListing("keep")
	assert.NoError(t, err, "nothing is deleted when the source is down")

	state, err := store.GetCycleState()
	require.NoError(t, err)
	assert.Equal(t, 2, state.FailureCount)
	assert.Nil(t, state.LastUpdate)
}

func TestRunCycleIsNotReentrant(t *testing.T) {
	store := newTestStore(t)
	source := &fakeSource{}
	source.set(snap("1", "Kettutie 3, Herttoniemi", "250 000 €"))
	fetcher := &fakeFetcher{block: make(chan struct{})}
	runner := NewRunner(Deps{Source: source, Store: store, Fetcher: fetcher, Logger: quiet}, Options{})

	runID, err := runner.Trigger(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, time.Second, 5*time.Millisecond)

	_, err = runner.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)
	_, err = runner.Trigger(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)
	_, err = runner.Cleanup(true)
	assert.Error(t, err)

	close(fetcher.block)
	require.Eventually(t, func() bool { return !runner.Running() }, 2*time.Second, 5*time.Millisecond)
	require.NotNil(t, runner.LastReport())
	assert.Equal(t, runID, runner.LastReport().RunID)
}

func TestRunCycleVerifiesMissingListings(t *testing.T) {
	store := newTestStore(t)
	source := &fakeSource{}
	source.set(
		snap("1", "Kettutie 3, Herttoniemi", "250 000 €"),
		snap("2", "Siilitie 8, Herttoniemi", "300 000 €"),
	)
	fetcher := &fakeFetcher{sold: map[string]bool{}}
	runner := NewRunner(Deps{Source: source, Store: store, Fetcher: fetcher, Logger: quiet}, Options{VerifyMissing: true})

	_, err := runner.RunCycle(context.Background())
	require.NoError(t, err)

	source.set(snap("1", "Kettutie 3, Herttoniemi", "250 000 €"))
	fetcher.sold["2"] = true
	report, err := runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Missing)
	assert.Equal(t, 1, report.MarkedSold)

	stored, err := store.GetListing("2")
	require.NoError(t, err)
	assert.True(t, stored.Sold)
}

func TestRunCycleEnrichmentFailureKeepsListing(t *testing.T) {
	store := newTestStore(t)
	source := &fakeSource{}
	source.set(
		snap("ok", "Kettutie 3, Herttoniemi", "250 000 €"),
		snap("bad", "Siilitie 8, Herttoniemi", "300 000 €"),
	)
	fetcher := &fakeFetcher{fail: map[string]bool{"bad": true}}
	runner := NewRunner(Deps{Source: source, Store: store, Fetcher: fetcher, Logger: quiet}, Options{EnrichmentWorkers: 2})

	report, err := runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.EnrichmentFailures)
	assert.Equal(t, 2, report.Saved)

	bad, err := store.GetListing("bad")
	require.NoError(t, err)
	assert.Equal(t, models.NotAvailable, bad.MaintenanceFee)
}

func TestRunCycleCleansUpOutOfBounds(t *testing.T) {
	store := newTestStore(t)
	source := &fakeSource{}
	source.set(
		snap("in", "Linnanrakentajantie 10, Herttoniemi, Helsinki", "250 000 €"),
		snap("out", "Kulosaarentie 5, Kulosaari, Helsinki", "300 000 €"),
	)
	cleaner := cleanup.NewService(store, nil, nil, quiet)
	runner := NewRunner(Deps{Source: source, Store: store, Fetcher: &fakeFetcher{}, Cleaner: cleaner, Logger: quiet}, Options{
		CleanupAfterCycle: true,
		AllowList:         cleanup.NewAllowList("Herttoniemi"),
	})

	report, err := runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Purged)

	_, err = store.GetListing("out")
	assert.ErrorIs(t, err, database.ErrNotFound)
	_, err = store.GetListing("in")
	assert.NoError(t, err)
}

func TestParseDailyRunTime(t *testing.T) {
	s := NewScheduler(nil, config.ScheduleConfig{}, time.UTC, quiet)

	assert.Equal(t, "30 7 * * *", s.parseDailyRunTime("07:30"))
	assert.Equal(t, "0 2 * * *", s.parseDailyRunTime("bogus"))
	assert.Equal(t, "0 2 * * *", s.parseDailyRunTime("25:00"))
}

func TestSchedulerStartDisabled(t *testing.T) {
	s := NewScheduler(nil, config.ScheduleConfig{Enabled: false}, time.UTC, quiet)
	require.NoError(t, s.Start())
	<-s.Stop().Done()
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(nil, config.ScheduleConfig{Enabled: true, RefreshCron: "not a cron expression"}, time.UTC, quiet)
	assert.Error(t, s.Start())
}
