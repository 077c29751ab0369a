package scraper

import (
	"context"
	"fmt"
	"listing-tracker/internal/ratelimit"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders pages in headless Chrome for sites that build
// their listings with JavaScript
type BrowserFetcher struct {
	execPath  string
	userAgent string
	timeout   time.Duration
	settle    time.Duration
	limiter   *ratelimit.HostLimiter
	logger    *slog.Logger
}

// NewBrowserFetcher creates a BrowserFetcher. An empty execPath lets
// chromedp find Chrome on its own.
func NewBrowserFetcher(execPath, userAgent string, timeout time.Duration, limiter *ratelimit.HostLimiter, logger *slog.Logger) *BrowserFetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserFetcher{
		execPath:  execPath,
		userAgent: userAgent,
		timeout:   timeout,
		settle:    2 * time.Second,
		limiter:   limiter,
		logger:    logger.With("component", "browser"),
	}
}

// Fetch returns the rendered HTML of url
func (b *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if b.limiter != nil {
		if err := b.limiter.Acquire(ctx); err != nil {
			return "", err
		}
		defer b.limiter.Release()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}
	if b.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.userAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, b.timeout)
	defer cancel()

	var htmlContent string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
		chromedp.Sleep(b.settle),
		chromedp.OuterHTML(`html`, &htmlContent, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp error: %w", err)
	}

	b.logger.Debug("rendered page", "url", url, "bytes", len(htmlContent))
	return htmlContent, nil
}
