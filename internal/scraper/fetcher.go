package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"listing-tracker/internal/ratelimit"
	"log/slog"
	"net/http"
	"time"
)

// maxPageSize bounds how much of a response body is read
const maxPageSize = 10 << 20

// ErrCircuitOpen is returned while the circuit breaker refuses requests
var ErrCircuitOpen = errors.New("circuit breaker open")

// StatusError is returned for a non-200 response
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}

// IsGone reports whether err means the page no longer exists
func IsGone(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && (se.Code == http.StatusNotFound || se.Code == http.StatusGone)
}

// PageFetcher returns the HTML of a page
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcherConfig configures an HTTPFetcher
type HTTPFetcherConfig struct {
	Timeout    time.Duration
	UserAgent  string
	MaxRetries int
	RetryDelay time.Duration
	Limiter    *ratelimit.HostLimiter
	Breaker    *CircuitBreaker
	Logger     *slog.Logger
}

// HTTPFetcher fetches pages over plain HTTP with pacing, retries and a
// circuit breaker
type HTTPFetcher struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	retryDelay time.Duration
	limiter    *ratelimit.HostLimiter
	breaker    *CircuitBreaker
	logger     *slog.Logger
}

// NewHTTPFetcher creates an HTTPFetcher
func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPFetcher{
		client:     &http.Client{Timeout: cfg.Timeout},
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		limiter:    cfg.Limiter,
		breaker:    cfg.Breaker,
		logger:     cfg.Logger.With("component", "fetcher"),
	}
}

// Fetch returns the body of url. Server errors and 429 are retried with
// exponential backoff; other 4xx responses are returned at once.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.breaker != nil && !f.breaker.CanProceed() {
		return "", ErrCircuitOpen
	}

	if f.limiter != nil {
		if err := f.limiter.Acquire(ctx); err != nil {
			return "", err
		}
		defer f.limiter.Release()
	}

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: delay * 2^(attempt-1), max 60s
			backoff := f.retryDelay << (attempt - 1)
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
			f.logger.Debug("retrying request", "url", url, "attempt", attempt, "backoff", backoff)
			if err := sleepContext(ctx, backoff); err != nil {
				return "", err
			}
		}

		body, err := f.do(ctx, url)
		if err == nil {
			f.recordSuccess()
			return body, nil
		}
		lastErr = err

		var se *StatusError
		switch {
		case errors.As(err, &se):
			if isBlockingStatus(se.Code) {
				f.recordFailure(se.Code)
			}
			if se.Code < 500 && se.Code != http.StatusTooManyRequests {
				return "", err
			}
		case ctx.Err() != nil:
			return "", err
		default:
			f.recordFailure(0)
		}
		f.logger.Warn("request failed", "url", url, "attempt", attempt+1, "error", err)
	}

	return "", fmt.Errorf("request failed after %d retries: %w", f.maxRetries, lastErr)
}

func (f *HTTPFetcher) do(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	applyBrowserHeaders(req, f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageSize))
		return "", &StatusError{URL: url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", url, err)
	}
	return string(body), nil
}

func (f *HTTPFetcher) recordSuccess() {
	if f.breaker != nil {
		f.breaker.RecordSuccess()
	}
}

func (f *HTTPFetcher) recordFailure(status int) {
	if f.breaker != nil {
		f.breaker.RecordFailure(status)
	}
}

func applyBrowserHeaders(req *http.Request, userAgent string) {
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "fi-FI,fi;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
