package scheduler

import (
	"context"
	"errors"
	"fmt"
	"listing-tracker/internal/cleanup"
	"listing-tracker/internal/database"
	"listing-tracker/internal/metrics"
	"listing-tracker/internal/models"
	"listing-tracker/internal/reconcile"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrCycleInProgress is returned when a cycle or cleanup is already running
	ErrCycleInProgress = errors.New("reconciliation cycle already in progress")
	// ErrSourceUnavailable is returned when the source produced no snapshots
	ErrSourceUnavailable = errors.New("snapshot source unavailable")
)

// SnapshotSource produces the current observations of all listings
type SnapshotSource interface {
	FetchSnapshots(ctx context.Context) ([]models.RawSnapshot, error)
}

// Store is the persistence a cycle needs
type Store interface {
	reconcile.Lookup
	SaveListing(l *models.Listing) (*database.SaveResult, error)
	MissingActiveIDs(seen []string) ([]models.Listing, error)
	GetActiveListings() ([]models.Listing, error)
	SetLastUpdate(at time.Time) error
	RecordCycle(runID string, at time.Time, cycleErr error) error
}

// Indexer mirrors active listings into a search index
type Indexer interface {
	IndexListings(listings []models.Listing) error
}

// ReportPublisher writes derived reports after a cycle
type ReportPublisher interface {
	PublishAnalytics(ctx context.Context) error
}

// Deps are the collaborators of a Runner. Cleaner, Index, Reports and
// Metrics are optional.
type Deps struct {
	Source  SnapshotSource
	Store   Store
	Fetcher DetailFetcher
	Cleaner *cleanup.Service
	Index   Indexer
	Reports ReportPublisher
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// Options control the optional cycle steps
type Options struct {
	EnrichmentWorkers int
	EnrichmentTimeout time.Duration
	VerifyMissing     bool
	CleanupAfterCycle bool
	AllowList         cleanup.AllowList
	Cleanup           cleanup.CleanupConfig
}

// CycleReport summarises one cycle
type CycleReport struct {
	RunID              string    `json:"run_id"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	Status             string    `json:"status"`
	Error              string    `json:"error,omitempty"`
	Observed           int       `json:"observed"`
	UpToDate           int       `json:"up_to_date"`
	Pending            int       `json:"pending"`
	EnrichmentFailures int       `json:"enrichment_failures"`
	Saved              int       `json:"saved"`
	Created            int       `json:"created"`
	HistoryAppends     int       `json:"history_appends"`
	PriceChanges       int       `json:"price_changes"`
	Missing            int       `json:"missing"`
	Verified           int       `json:"verified"`
	MarkedSold         int       `json:"marked_sold"`
	Purged             int       `json:"purged"`
}

// Cycle statuses
const (
	StatusSuccess           = "success"
	StatusSourceUnavailable = "source_unavailable"
	StatusFailed            = "failed"
)

// Runner executes reconciliation cycles. At most one cycle or cleanup runs
// at a time.
type Runner struct {
	source  SnapshotSource
	store   Store
	pool    *EnrichmentPool
	cleaner *cleanup.Service
	index   Indexer
	reports ReportPublisher
	metrics *metrics.Recorder
	logger  *slog.Logger
	opts    Options
	now     func() time.Time

	running atomic.Bool

	mu         sync.RWMutex
	lastReport *CycleReport
}

// NewRunner creates a Runner
func NewRunner(d Deps, opts Options) *Runner {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		source:  d.Source,
		store:   d.Store,
		pool:    NewEnrichmentPool(d.Fetcher, opts.EnrichmentWorkers, opts.EnrichmentTimeout, d.Metrics, logger),
		cleaner: d.Cleaner,
		index:   d.Index,
		reports: d.Reports,
		metrics: d.Metrics,
		logger:  logger.With("component", "cycle"),
		opts:    opts,
		now:     time.Now,
	}
}

// Running reports whether a cycle or cleanup is in flight
func (r *Runner) Running() bool {
	return r.running.Load()
}

// LastReport returns the report of the most recent cycle, nil before the first
func (r *Runner) LastReport() *CycleReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastReport
}

// RunCycle runs one cycle and waits for it to finish
func (r *Runner) RunCycle(ctx context.Context) (*CycleReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer r.running.Store(false)

	return r.run(ctx, uuid.NewString())
}

// Trigger starts a cycle in the background and returns its run id. The cycle
// outlives ctx's cancellation.
func (r *Runner) Trigger(ctx context.Context) (string, error) {
	if !r.running.CompareAndSwap(false, true) {
		return "", ErrCycleInProgress
	}

	runID := uuid.NewString()
	go func() {
		defer r.running.Store(false)
		if _, err := r.run(context.WithoutCancel(ctx), runID); err != nil {
			r.logger.Error("background cycle failed", "run_id", runID, "error", err)
		}
	}()
	return runID, nil
}

// Cleanup applies the boundary policy outside a cycle. DryRun overrides the
// configured setting when set.
func (r *Runner) Cleanup(dryRun bool) (*cleanup.CleanupResult, error) {
	if r.cleaner == nil {
		return nil, errors.New("cleanup is not configured")
	}
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer r.running.Store(false)

	cfg := r.opts.Cleanup
	cfg.DryRun = cfg.DryRun || dryRun
	return r.cleaner.Cleanup(r.opts.AllowList, cfg)
}

func (r *Runner) run(ctx context.Context, runID string) (*CycleReport, error) {
	report := &CycleReport{RunID: runID, StartedAt: r.now()}
	logger := r.logger.With("run_id", runID)
	logger.Info("starting reconciliation cycle")

	err := r.execute(ctx, report, logger)
	r.finish(report, err, logger)
	return report, err
}

func (r *Runner) execute(ctx context.Context, report *CycleReport, logger *slog.Logger) error {
	snapshots, err := r.source.FetchSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if len(snapshots) == 0 {
		return fmt.Errorf("%w: no listings returned", ErrSourceUnavailable)
	}
	report.Observed = len(snapshots)

	result, err := reconcile.Reconcile(snapshots, r.store)
	if err != nil {
		return fmt.Errorf("failed to reconcile: %w", err)
	}
	report.UpToDate = len(result.UpToDate)
	report.Pending = len(result.Pending)
	r.metrics.Classified(reconcile.UpToDate.String(), report.UpToDate)
	r.metrics.Classified(reconcile.NeedsEnrichment.String(), report.Pending)
	logger.Info("classified listings", "observed", report.Observed, "up_to_date", report.UpToDate, "pending", report.Pending)

	toSave := append([]models.Listing(nil), result.UpToDate...)
	for _, res := range r.pool.Enrich(ctx, result.Pending) {
		if res.Err != nil {
			report.EnrichmentFailures++
		}
		toSave = append(toSave, res.Listing)
	}

	seen := make([]string, 0, len(toSave))
	for i := range toSave {
		seen = append(seen, toSave[i].ID)
		if err := r.save(&toSave[i], report); err != nil {
			return err
		}
	}

	if r.opts.VerifyMissing {
		if err := r.verifyMissing(ctx, seen, report, logger); err != nil {
			return err
		}
	}

	if r.opts.CleanupAfterCycle && r.cleaner != nil {
		res, err := r.cleaner.Cleanup(r.opts.AllowList, r.opts.Cleanup)
		if err != nil {
			logger.Warn("boundary cleanup skipped", "error", err)
		} else {
			report.Purged = res.DeletedCount
		}
	}

	if err := r.store.SetLastUpdate(r.now()); err != nil {
		return fmt.Errorf("failed to set last update: %w", err)
	}

	r.afterCycle(ctx, logger)
	return nil
}

func (r *Runner) save(l *models.Listing, report *CycleReport) error {
	res, err := r.store.SaveListing(l)
	if err != nil {
		return err
	}
	report.Saved++
	if res.Created {
		report.Created++
	}
	if res.HistoryAppended {
		report.HistoryAppends++
		r.metrics.HistoryAppended()
	}
	if res.PriceChange != nil {
		report.PriceChanges++
		r.metrics.PriceChanged()
	}
	return nil
}

// verifyMissing re-fetches active listings the source no longer returned so
// sold or withdrawn listings are noticed
func (r *Runner) verifyMissing(ctx context.Context, seen []string, report *CycleReport, logger *slog.Logger) error {
	missing, err := r.store.MissingActiveIDs(seen)
	if err != nil {
		return fmt.Errorf("failed to find missing listings: %w", err)
	}
	report.Missing = len(missing)
	if len(missing) == 0 {
		return nil
	}
	logger.Info("verifying listings missing from the source", "count", len(missing))

	for i, res := range r.pool.Enrich(ctx, missing) {
		if res.Err != nil {
			report.EnrichmentFailures++
			continue
		}
		report.Verified++
		if res.Listing.Sold && !missing[i].Sold {
			report.MarkedSold++
		}
		l := res.Listing
		if err := r.save(&l, report); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) afterCycle(ctx context.Context, logger *slog.Logger) {
	active, err := r.store.GetActiveListings()
	if err != nil {
		logger.Warn("failed to load active listings", "error", err)
		return
	}
	r.metrics.SetActiveListings(len(active))

	if r.index != nil {
		if err := r.index.IndexListings(active); err != nil {
			logger.Warn("failed to refresh search index", "error", err)
		}
	}
	if r.reports != nil {
		if err := r.reports.PublishAnalytics(ctx); err != nil {
			logger.Warn("failed to publish analytics", "error", err)
		}
	}
}

func (r *Runner) finish(report *CycleReport, cycleErr error, logger *slog.Logger) {
	report.FinishedAt = r.now()
	switch {
	case cycleErr == nil:
		report.Status = StatusSuccess
	case errors.Is(cycleErr, ErrSourceUnavailable):
		report.Status = StatusSourceUnavailable
		report.Error = cycleErr.Error()
	default:
		report.Status = StatusFailed
		report.Error = cycleErr.Error()
	}

	r.metrics.CycleFinished(report.Status, report.FinishedAt.Sub(report.StartedAt))
	if err := r.store.RecordCycle(report.RunID, report.FinishedAt, cycleErr); err != nil {
		logger.Error("failed to record cycle state", "error", err)
	}

	r.mu.Lock()
	r.lastReport = report
	r.mu.Unlock()

	if cycleErr != nil {
		logger.Warn("cycle finished with error", "status", report.Status, "error", cycleErr)
		return
	}
	logger.Info("cycle finished",
		"saved", report.Saved,
		"created", report.Created,
		"price_changes", report.PriceChanges,
		"enrichment_failures", report.EnrichmentFailures,
		"purged", report.Purged,
		"duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
}
