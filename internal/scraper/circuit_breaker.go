package scraper

import (
	"log/slog"
	"sync"
	"time"
)

// CircuitBreaker stops detail fetching when the site starts refusing us
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration
	logger           *slog.Logger
	now              func() time.Time

	failures            int
	successes           int
	totalRequests       int
	consecutiveFailures int
	isOpen              bool
	lastFailureTime     time.Time

	mutex sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker. It opens after
// failureThreshold consecutive blocking responses or when at least 40% of
// the last twenty or more requests failed.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, logger *slog.Logger) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		logger:           logger.With("component", "circuit_breaker"),
		now:              time.Now,
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.successes++
	cb.totalRequests++
	cb.consecutiveFailures = 0
}

// RecordFailure records a failed request. statusCode is zero for transport errors.
func (cb *CircuitBreaker) RecordFailure(statusCode int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.consecutiveFailures++
	cb.totalRequests++
	cb.lastFailureTime = cb.now()

	if cb.isOpen {
		return
	}

	if cb.consecutiveFailures >= cb.failureThreshold && isBlockingStatus(statusCode) {
		cb.isOpen = true
		cb.logger.Warn("circuit breaker open after consecutive blocking responses",
			"consecutive", cb.consecutiveFailures, "status", statusCode, "retry_after", cb.resetTimeout)
		return
	}

	if cb.totalRequests >= 20 {
		failureRate := float64(cb.failures) / float64(cb.totalRequests)
		if failureRate >= 0.40 {
			cb.isOpen = true
			cb.logger.Warn("circuit breaker open on failure rate",
				"failures", cb.failures, "total", cb.totalRequests, "retry_after", cb.resetTimeout)
		}
	}
}

func isBlockingStatus(statusCode int) bool {
	return statusCode == 403 || statusCode == 429 || statusCode >= 500
}

// CanProceed checks if requests are allowed
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	if cb.now().Sub(cb.lastFailureTime) > cb.resetTimeout {
		cb.logger.Info("circuit breaker half-open, allowing requests again")
		cb.isOpen = false
		cb.failures = 0
		cb.successes = 0
		cb.totalRequests = 0
		cb.consecutiveFailures = 0
		return true
	}

	return false
}

// BreakerStatus is a snapshot of the breaker counters
type BreakerStatus struct {
	Open     bool `json:"open"`
	Failures int  `json:"failures"`
	Total    int  `json:"total"`
}

// Status returns current circuit breaker status
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return BreakerStatus{Open: cb.isOpen, Failures: cb.failures, Total: cb.totalRequests}
}
