package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindows(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, 3, true)
	rl.SetClock(func() time.Time { return now })

	assert.True(t, rl.AllowRequest())
	assert.True(t, rl.AllowRequest())
	assert.False(t, rl.AllowRequest(), "minute limit")
	assert.Equal(t, time.Minute, rl.RetryAfter())

	now = now.Add(61 * time.Second)
	assert.True(t, rl.AllowRequest())
	assert.False(t, rl.AllowRequest(), "hour limit")

	stats := rl.GetStats()
	assert.Equal(t, 1, stats.RequestsLastMinute)
	assert.Equal(t, 3, stats.RequestsLastHour)
	assert.Equal(t, 0, stats.RemainingThisHour)

	now = now.Add(time.Hour)
	assert.True(t, rl.AllowRequest())

	rl.Reset()
	assert.Equal(t, 0, rl.GetStats().RequestsLastHour)
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(1, 1, false)
	for i := 0; i < 5; i++ {
		assert.True(t, rl.AllowRequest())
	}
	assert.False(t, rl.GetStats().Enabled)
	assert.Zero(t, rl.RetryAfter())
}

func TestHostLimiterBoundsInFlight(t *testing.T) {
	hl := NewHostLimiter(1, 0, 0)

	require.NoError(t, hl.Acquire(context.Background()))
	assert.Equal(t, 1, hl.InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, hl.Acquire(ctx), context.DeadlineExceeded)

	hl.Release()
	require.NoError(t, hl.Acquire(context.Background()))
	hl.Release()
	assert.Equal(t, 0, hl.InFlight())
}

func TestHostLimiterDelayRespectsContext(t *testing.T) {
	hl := NewHostLimiter(2, time.Hour, 0)
	require.NoError(t, hl.Acquire(context.Background()))
	hl.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, hl.Acquire(ctx), context.DeadlineExceeded)
	assert.Equal(t, 0, hl.InFlight(), "slot is returned on cancellation")
}
