package scheduler

import (
	"context"
	"fmt"
	"listing-tracker/internal/metrics"
	"listing-tracker/internal/models"
	"log/slog"
	"sync"
	"time"
)

// DetailFetcher enriches one listing from its detail page
type DetailFetcher interface {
	FetchDetails(ctx context.Context, l models.Listing) (models.Listing, error)
}

// EnrichResult is the outcome for one listing. On error Listing is the
// listing as it was handed in.
type EnrichResult struct {
	Listing models.Listing
	Err     error
}

// EnrichmentPool fetches details for many listings with a bounded number of
// workers and a per-listing timeout
type EnrichmentPool struct {
	fetcher DetailFetcher
	workers int
	timeout time.Duration
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// NewEnrichmentPool creates a pool. workers below 1 means one worker; a zero
// timeout disables the per-listing deadline.
func NewEnrichmentPool(fetcher DetailFetcher, workers int, timeout time.Duration, rec *metrics.Recorder, logger *slog.Logger) *EnrichmentPool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrichmentPool{
		fetcher: fetcher,
		workers: workers,
		timeout: timeout,
		metrics: rec,
		logger:  logger.With("component", "enrichment"),
	}
}

// Enrich fetches details for every listing. Results keep the input order.
// A failing or hung fetch only affects its own listing.
func (p *EnrichmentPool) Enrich(ctx context.Context, listings []models.Listing) []EnrichResult {
	results := make([]EnrichResult, len(listings))
	if len(listings) == 0 {
		return results
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := p.workers
	if workers > len(listings) {
		workers = len(listings)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.enrichOne(ctx, listings[i])
			}
		}()
	}

	for i := range listings {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func (p *EnrichmentPool) enrichOne(ctx context.Context, l models.Listing) EnrichResult {
	if err := ctx.Err(); err != nil {
		return EnrichResult{Listing: l, Err: err}
	}

	fetchCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	done := make(chan EnrichResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- EnrichResult{Listing: l, Err: fmt.Errorf("detail fetch panicked: %v", r)}
			}
		}()
		enriched, err := p.fetcher.FetchDetails(fetchCtx, l)
		if err != nil {
			done <- EnrichResult{Listing: l, Err: err}
			return
		}
		done <- EnrichResult{Listing: enriched}
	}()

	select {
	case res := <-done:
		if res.Err != nil {
			p.failed(l, res.Err)
		}
		return res
	case <-fetchCtx.Done():
		err := fmt.Errorf("detail fetch for %s abandoned: %w", l.ID, fetchCtx.Err())
		p.failed(l, err)
		return EnrichResult{Listing: l, Err: err}
	}
}

func (p *EnrichmentPool) failed(l models.Listing, err error) {
	p.metrics.EnrichmentFailed()
	p.logger.Warn("keeping listing without fresh details", "id", l.ID, "error", err)
}
