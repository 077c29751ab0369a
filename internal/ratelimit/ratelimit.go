package ratelimit

import (
	"sync"
	"time"
)

// RateLimiter enforces sliding-window limits on manual cycle triggers
type RateLimiter struct {
	requestsPerMinute int
	requestsPerHour   int
	enabled           bool
	now               func() time.Time

	minuteWindow []time.Time
	hourWindow   []time.Time
	mu           sync.Mutex
}

// NewRateLimiter creates a new rate limiter with the given limits. A limit of
// zero is not enforced.
func NewRateLimiter(requestsPerMinute, requestsPerHour int, enabled bool) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		enabled:           enabled,
		now:               time.Now,
	}
}

// SetClock replaces the limiter's clock
func (rl *RateLimiter) SetClock(now func() time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.now = now
}

// AllowRequest records a request and reports whether it is within the limits
func (rl *RateLimiter) AllowRequest() bool {
	if !rl.enabled {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanup(now)

	if rl.requestsPerMinute > 0 && len(rl.minuteWindow) >= rl.requestsPerMinute {
		return false
	}
	if rl.requestsPerHour > 0 && len(rl.hourWindow) >= rl.requestsPerHour {
		return false
	}

	rl.minuteWindow = append(rl.minuteWindow, now)
	rl.hourWindow = append(rl.hourWindow, now)

	return true
}

// RetryAfter returns how long until the next request would be allowed
func (rl *RateLimiter) RetryAfter() time.Duration {
	if !rl.enabled {
		return 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanup(now)

	var wait time.Duration
	if rl.requestsPerMinute > 0 && len(rl.minuteWindow) >= rl.requestsPerMinute {
		wait = rl.minuteWindow[0].Add(time.Minute).Sub(now)
	}
	if rl.requestsPerHour > 0 && len(rl.hourWindow) >= rl.requestsPerHour {
		if w := rl.hourWindow[0].Add(time.Hour).Sub(now); w > wait {
			wait = w
		}
	}
	return wait
}

// cleanup removes expired entries from the time windows
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.minuteWindow = filterTimes(rl.minuteWindow, now.Add(-time.Minute))
	rl.hourWindow = filterTimes(rl.hourWindow, now.Add(-time.Hour))
}

// filterTimes keeps only times after the cutoff
func filterTimes(times []time.Time, cutoff time.Time) []time.Time {
	result := make([]time.Time, 0, len(times))
	for _, t := range times {
		if t.After(cutoff) {
			result = append(result, t)
		}
	}
	return result
}

// Stats contains rate limiter statistics
type Stats struct {
	Enabled             bool `json:"enabled"`
	RequestsLastMinute  int  `json:"requests_last_minute"`
	RequestsLastHour    int  `json:"requests_last_hour"`
	LimitPerMinute      int  `json:"limit_per_minute"`
	LimitPerHour        int  `json:"limit_per_hour"`
	RemainingThisMinute int  `json:"remaining_this_minute"`
	RemainingThisHour   int  `json:"remaining_this_hour"`
}

// GetStats returns current rate limiter statistics
func (rl *RateLimiter) GetStats() Stats {
	if !rl.enabled {
		return Stats{Enabled: false}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanup(rl.now())

	return Stats{
		Enabled:             true,
		RequestsLastMinute:  len(rl.minuteWindow),
		RequestsLastHour:    len(rl.hourWindow),
		LimitPerMinute:      rl.requestsPerMinute,
		LimitPerHour:        rl.requestsPerHour,
		RemainingThisMinute: max(0, rl.requestsPerMinute-len(rl.minuteWindow)),
		RemainingThisHour:   max(0, rl.requestsPerHour-len(rl.hourWindow)),
	}
}

// Reset clears all tracked requests
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.minuteWindow = nil
	rl.hourWindow = nil
}
