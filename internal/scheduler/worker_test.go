package scheduler

import (
	"context"
	"errors"
	"listing-tracker/internal/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hangingFetcher struct {
	release chan struct{}
}

func (f *hangingFetcher) FetchDetails(ctx context.Context, l models.Listing) (models.Listing, error) {
	switch l.ID {
	case "hang":
		<-f.release // ignores ctx
	case "panic":
		panic("selector exploded")
	case "fail":
		return models.Listing{}, errors.New("status 500")
	}
	l.MaintenanceFee = "200 € / kk"
	return l, nil
}

func TestEnrichmentPoolIsolatesFailures(t *testing.T) {
	fetcher := &hangingFetcher{release: make(chan struct{})}
	t.Cleanup(func() { close(fetcher.release) })

	pool := NewEnrichmentPool(fetcher, 2, 50*time.Millisecond, nil, quiet)
	input := []models.Listing{
		{ID: "a", MaintenanceFee: models.NotAvailable},
		{ID: "hang", MaintenanceFee: models.NotAvailable},
		{ID: "panic", MaintenanceFee: models.NotAvailable},
		{ID: "fail", MaintenanceFee: models.NotAvailable},
		{ID: "b", MaintenanceFee: models.NotAvailable},
	}

	start := time.Now()
	results := pool.Enrich(context.Background(), input)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, results, len(input))
	for i, res := range results {
		assert.Equal(t, input[i].ID, res.Listing.ID, "order is kept")
	}

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "200 € / kk", results[0].Listing.MaintenanceFee)
	assert.NoError(t, results[4].Err)

	assert.ErrorIs(t, results[1].Err, context.DeadlineExceeded)
	assert.Error(t, results[2].Err)
	assert.Error(t, results[3].Err)
	for _, i := range []int{1, 2, 3} {
		assert.Equal(t, models.NotAvailable, results[i].Listing.MaintenanceFee, "failed listing keeps its values")
	}
}

func TestEnrichmentPoolCancelledContext(t *testing.T) {
	pool := NewEnrichmentPool(&hangingFetcher{}, 1, 0, nil, quiet)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := pool.Enrich(ctx, []models.Listing{{ID: "a"}})
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

func TestEnrichmentPoolEmpty(t *testing.T) {
	pool := NewEnrichmentPool(&hangingFetcher{}, 4, time.Second, nil, quiet)
	assert.Empty(t, pool.Enrich(context.Background(), nil))
}
