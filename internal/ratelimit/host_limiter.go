package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// HostLimiter paces requests to the listing site: a bounded number in
// flight and a minimum randomised gap between request starts
type HostLimiter struct {
	slots     chan struct{}
	baseDelay time.Duration
	jitter    time.Duration

	mutex       sync.Mutex
	lastRequest time.Time
}

// NewHostLimiter creates a limiter allowing maxInFlight concurrent requests
func NewHostLimiter(maxInFlight int, baseDelay, jitter time.Duration) *HostLimiter {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &HostLimiter{
		slots:     make(chan struct{}, maxInFlight),
		baseDelay: baseDelay,
		jitter:    jitter,
	}
}

// Acquire waits until it's safe to make a request. Every successful Acquire
// must be paired with Release.
func (hl *HostLimiter) Acquire(ctx context.Context) error {
	select {
	case hl.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	hl.mutex.Lock()
	defer hl.mutex.Unlock()

	requiredDelay := hl.baseDelay
	if hl.jitter > 0 {
		requiredDelay += time.Duration(rand.Int63n(int64(hl.jitter)))
	}

	if wait := requiredDelay - time.Since(hl.lastRequest); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			<-hl.slots
			return ctx.Err()
		}
	}

	hl.lastRequest = time.Now()
	return nil
}

// Release marks a request as completed
func (hl *HostLimiter) Release() {
	<-hl.slots
}

// InFlight returns the current in-flight request count
func (hl *HostLimiter) InFlight() int {
	return len(hl.slots)
}
