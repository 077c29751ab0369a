package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Search    SearchConfig    `yaml:"search"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Boundary  BoundaryConfig  `yaml:"boundary"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Export    ExportConfig    `yaml:"export"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	UserAgent string          `yaml:"user_agent"`
	Timezone  string          `yaml:"timezone"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type       string         `yaml:"type"` // sqlite, mysql or postgres
	SQLite     SQLiteConfig   `yaml:"sqlite"`
	MySQL      MySQLConfig    `yaml:"mysql"`
	Postgres   PostgresConfig `yaml:"postgres"`
	LogQueries bool           `yaml:"log_queries"`
}

// SQLiteConfig contains the embedded database location
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings. An empty host
// disables indexing.
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
	Index  string `yaml:"index"`
}

// ScraperConfig contains source and detail fetching settings
type ScraperConfig struct {
	SearchURL                string               `yaml:"search_url"`
	PageParam                string               `yaml:"page_param"`
	MaxPages                 int                  `yaml:"max_pages"`
	LinkContains             string               `yaml:"link_contains"`
	SkipLabels               []string             `yaml:"skip_labels"`
	SoldMarkers              []string             `yaml:"sold_markers"`
	Selectors                SelectorConfig       `yaml:"selectors"`
	Render                   bool                 `yaml:"render"`
	TimeoutSeconds           int                  `yaml:"timeout_seconds"`
	RequestDelaySeconds      int                  `yaml:"request_delay_seconds"`
	JitterMillis             int                  `yaml:"jitter_millis"`
	MaxInFlight              int                  `yaml:"max_in_flight"`
	EnrichmentWorkers        int                  `yaml:"enrichment_workers"`
	EnrichmentTimeoutSeconds int                  `yaml:"enrichment_timeout_seconds"`
	VerifyMissing            bool                 `yaml:"verify_missing"`
	CircuitBreaker           CircuitBreakerConfig `yaml:"circuit_breaker"`
	Geocoder                 GeocoderConfig       `yaml:"geocoder"`
}

// SelectorConfig holds the CSS selectors used on search and detail pages
type SelectorConfig struct {
	Card         string `yaml:"card"`
	Badge        string `yaml:"badge"`
	GalleryImage string `yaml:"gallery_image"`
	Description  string `yaml:"description"`
	ViewingItem  string `yaml:"viewing_item"`
	ViewingTime  string `yaml:"viewing_time"`
}

// CircuitBreakerConfig contains the detail fetch circuit breaker settings
type CircuitBreakerConfig struct {
	FailureThreshold    int `yaml:"failure_threshold"`
	ResetTimeoutMinutes int `yaml:"reset_timeout_minutes"`
}

// GeocoderConfig contains Nominatim settings
type GeocoderConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	CountryCodes string `yaml:"country_codes"`
}

// Boundary modes
const (
	BoundaryUnconfigured = ""
	BoundaryAllowList    = "allow_list"
	BoundaryExcludeAll   = "exclude_all"
)

// BoundaryConfig contains the location allow-list used by cleanup
type BoundaryConfig struct {
	Mode              string   `yaml:"mode"`
	Locations         []string `yaml:"locations"`
	FromSearchURL     bool     `yaml:"from_search_url"`
	CleanupAfterCycle bool     `yaml:"cleanup_after_cycle"`
	DryRun            bool     `yaml:"dry_run"`
	MaxDeletionCount  int      `yaml:"max_deletion_count"`
}

// ScheduleConfig contains periodic job settings
type ScheduleConfig struct {
	Enabled      bool   `yaml:"enabled"`
	RefreshCron  string `yaml:"refresh_cron"`
	DailyRunTime string `yaml:"daily_run_time"`
	CleanupCron  string `yaml:"cleanup_cron"`
}

// RateLimitConfig contains rate limiting settings for manual triggers
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	RequestsPerHour   int  `yaml:"requests_per_hour"`
}

// ExportConfig controls where analytics reports are written
type ExportConfig struct {
	Driver     string   `yaml:"driver"` // "", file or s3
	Dir        string   `yaml:"dir"`
	AfterCycle bool     `yaml:"after_cycle"`
	S3         S3Config `yaml:"s3"`
}

// S3Config contains S3-compatible object storage settings
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         string   `yaml:"port"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Type:   "sqlite",
			SQLite: SQLiteConfig{Path: "data/tracker.db"},
			Postgres: PostgresConfig{
				SSLMode: "disable",
			},
		},
		Search: SearchConfig{
			Meilisearch: MeilisearchConfig{Index: "listings"},
		},
		Scraper: ScraperConfig{
			PageParam:    "pagination",
			MaxPages:     20,
			LinkContains: "myytavat-asunnot",
			SkipLabels:   []string{"Plus", "Uusi", "Uutuus", "Nostettu"},
			SoldMarkers:  []string{"kohde on poistunut", "myyty"},
			Selectors: SelectorConfig{
				Card:         ".cards__card, .ot-card, [data-test-id='card'], article[class*='card']",
				Badge:        ".card-badges badge, .ot-card__badge, [class*='badge']",
				GalleryImage: ".galleria-stage img",
				Description:  ".paragraph--keep-formatting",
				ViewingItem:  "ul.public-viewings li.public-viewings__item",
				ViewingTime:  ".public-viewings__item-content",
			},
			TimeoutSeconds:           30,
			RequestDelaySeconds:      1,
			JitterMillis:             500,
			MaxInFlight:              2,
			EnrichmentWorkers:        4,
			EnrichmentTimeoutSeconds: 45,
			VerifyMissing:            true,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:    5,
				ResetTimeoutMinutes: 30,
			},
			Geocoder: GeocoderConfig{
				Enabled:      true,
				URL:          "https://nominatim.openstreetmap.org/search",
				CountryCodes: "fi",
			},
		},
		Boundary: BoundaryConfig{
			CleanupAfterCycle: true,
			MaxDeletionCount:  500,
		},
		Schedule: ScheduleConfig{
			Enabled:      false,
			DailyRunTime: "07:00",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 2,
			RequestsPerHour:   30,
		},
		Export: ExportConfig{
			Dir: "data",
		},
		Server: ServerConfig{
			Port:         "8084",
			AllowOrigins: []string{"http://localhost:5176"},
		},
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Timezone: "Europe/Helsinki",
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "", "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	switch c.Boundary.Mode {
	case BoundaryUnconfigured, BoundaryAllowList, BoundaryExcludeAll:
	default:
		return fmt.Errorf("unsupported boundary mode %q", c.Boundary.Mode)
	}
	switch c.Export.Driver {
	case "", "file", "s3":
	default:
		return fmt.Errorf("unsupported export driver %q", c.Export.Driver)
	}
	if c.Export.Driver == "s3" && c.Export.S3.Bucket == "" {
		return fmt.Errorf("export.s3.bucket is required for the s3 driver")
	}
	return nil
}

// Location returns the configured timezone, falling back to local time
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// GetTimeout returns the page fetch timeout as a duration
func (c *ScraperConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetRequestDelay returns the delay between requests to the source
func (c *ScraperConfig) GetRequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds) * time.Second
}

// GetJitter returns the random extra delay added to each request
func (c *ScraperConfig) GetJitter() time.Duration {
	return time.Duration(c.JitterMillis) * time.Millisecond
}

// GetEnrichmentTimeout returns the per-listing enrichment timeout
func (c *ScraperConfig) GetEnrichmentTimeout() time.Duration {
	return time.Duration(c.EnrichmentTimeoutSeconds) * time.Second
}

// GetResetTimeout returns how long the circuit breaker stays open
func (c *CircuitBreakerConfig) GetResetTimeout() time.Duration {
	return time.Duration(c.ResetTimeoutMinutes) * time.Minute
}

// NewLogger builds the process logger
func (c LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.level()}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c LoggingConfig) level() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
