package app

import (
	"context"
	"fmt"
	"listing-tracker/internal/cleanup"
	"listing-tracker/internal/config"
	"listing-tracker/internal/database"
	"listing-tracker/internal/export"
	"listing-tracker/internal/handlers"
	"listing-tracker/internal/metrics"
	"listing-tracker/internal/ratelimit"
	"listing-tracker/internal/scheduler"
	"listing-tracker/internal/scraper"
	"listing-tracker/internal/search"
	"listing-tracker/internal/stats"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const fetchRetries = 2

// App holds the wired components shared by the API server and the CLI
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *database.GormDB
	Metrics   *metrics.Recorder
	Index     *search.ListingIndex
	Fetcher   scraper.PageFetcher
	Source    *scraper.ListSource
	Details   *scraper.DetailScraper
	Stats     *stats.Aggregator
	Reports   *export.ReportPublisher
	Runner    *scheduler.Runner
	AllowList cleanup.AllowList
}

// New opens the store and builds every component from cfg
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logger.Info("database ready", "type", cfg.Database.Type)

	a := &App{
		Config: cfg,
		Logger: logger,
		Store:  store,
		Stats:  stats.NewAggregator(store, nil),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(reg)

	if host := cfg.Search.Meilisearch.Host; host != "" {
		a.Index = search.NewListingIndex(host, cfg.Search.Meilisearch.APIKey, cfg.Search.Meilisearch.Index)
		if err := a.Index.InitIndex(); err != nil {
			logger.Warn("failed to initialize search index", "host", host, "error", err)
		}
	}

	exporter, err := export.New(ctx, cfg.Export)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to configure export: %w", err)
	}
	a.Reports = export.NewReportPublisher(exporter, a.Stats, logger)

	a.AllowList = cleanup.AllowListFromConfig(cfg.Boundary, cfg.Scraper.SearchURL)
	logger.Info("location boundary", "allow_list", a.AllowList.String())

	a.Fetcher = newFetcher(cfg, logger)

	// the source only filters by explicit terms; exclude-all is applied by cleanup
	var filter scraper.AddressFilter
	if len(a.AllowList.Terms()) > 0 {
		filter = a.AllowList
	}
	a.Source = scraper.NewListSource(a.Fetcher, cfg.Scraper, filter, logger)

	var geocoder scraper.Geocoder
	if cfg.Scraper.Geocoder.Enabled && cfg.Scraper.Geocoder.URL != "" {
		geocoder = scraper.NewNominatimGeocoder(cfg.Scraper.Geocoder.URL, cfg.Scraper.Geocoder.CountryCodes, cfg.UserAgent, logger)
	}
	a.Details = scraper.NewDetailScraper(a.Fetcher, cfg.Scraper, geocoder, logger)

	deps := scheduler.Deps{
		Source:  a.Source,
		Store:   store,
		Fetcher: a.Details,
		Metrics: a.Metrics,
		Logger:  logger,
	}
	var deindexer cleanup.Deindexer
	if a.Index != nil {
		deps.Index = a.Index
		deindexer = a.Index
	}
	deps.Cleaner = cleanup.NewService(store, deindexer, a.Metrics, logger)
	if cfg.Export.AfterCycle {
		deps.Reports = a.Reports
	}

	a.Runner = scheduler.NewRunner(deps, scheduler.Options{
		EnrichmentWorkers: cfg.Scraper.EnrichmentWorkers,
		EnrichmentTimeout: cfg.Scraper.GetEnrichmentTimeout(),
		VerifyMissing:     cfg.Scraper.VerifyMissing,
		CleanupAfterCycle: cfg.Boundary.CleanupAfterCycle,
		AllowList:         a.AllowList,
		Cleanup: cleanup.CleanupConfig{
			MaxDeletionCount: cfg.Boundary.MaxDeletionCount,
			DryRun:           cfg.Boundary.DryRun,
		},
	})

	return a, nil
}

func newFetcher(cfg *config.Config, logger *slog.Logger) scraper.PageFetcher {
	limiter := ratelimit.NewHostLimiter(cfg.Scraper.MaxInFlight, cfg.Scraper.GetRequestDelay(), cfg.Scraper.GetJitter())

	if cfg.Scraper.Render {
		logger.Info("rendering pages with headless chrome")
		return scraper.NewBrowserFetcher("", cfg.UserAgent, cfg.Scraper.GetTimeout(), limiter, logger)
	}

	cb := cfg.Scraper.CircuitBreaker
	return scraper.NewHTTPFetcher(scraper.HTTPFetcherConfig{
		Timeout:    cfg.Scraper.GetTimeout(),
		UserAgent:  cfg.UserAgent,
		MaxRetries: fetchRetries,
		RetryDelay: 2 * time.Second,
		Limiter:    limiter,
		Breaker:    scraper.NewCircuitBreaker(cb.FailureThreshold, cb.GetResetTimeout(), logger),
		Logger:     logger,
	})
}

// Handlers builds the HTTP handlers
func (a *App) Handlers() (*handlers.ListingHandler, *handlers.AdminHandler) {
	var searcher handlers.Searcher
	if a.Index != nil {
		searcher = a.Index
	}
	rl := a.Config.RateLimit
	limiter := ratelimit.NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.Enabled)

	return handlers.NewListingHandler(a.Store, a.Stats, searcher, a.Logger),
		handlers.NewAdminHandler(a.Store, a.Runner, limiter, a.Logger)
}

// Scheduler builds the cron scheduler for the runner
func (a *App) Scheduler() *scheduler.Scheduler {
	return scheduler.NewScheduler(a.Runner, a.Config.Schedule, a.Config.Location(), a.Logger)
}

// Close releases the database connection
func (a *App) Close() error {
	return a.Store.Close()
}

// LoadConfig reads .env, the YAML file at path and the environment
// overrides, in that order
func LoadConfig(path string) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg)
	return cfg, nil
}
