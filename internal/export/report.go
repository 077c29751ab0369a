package export

import (
	"context"
	"encoding/json"
	"fmt"
	"listing-tracker/internal/stats"
	"log/slog"
)

// AnalyticsFile is the name of the exported analytics report
const AnalyticsFile = "price_analytics.json"

// AnalyticsSource computes the analytics report
type AnalyticsSource interface {
	Analytics() (stats.Analytics, error)
}

// ReportPublisher computes and exports derived reports
type ReportPublisher struct {
	exporter Exporter
	source   AnalyticsSource
	logger   *slog.Logger
}

// NewReportPublisher creates a ReportPublisher
func NewReportPublisher(exporter Exporter, source AnalyticsSource, logger *slog.Logger) *ReportPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportPublisher{
		exporter: exporter,
		source:   source,
		logger:   logger.With("component", "export"),
	}
}

// PublishAnalytics writes the current price analytics as JSON
func (p *ReportPublisher) PublishAnalytics(ctx context.Context) error {
	report, err := p.source.Analytics()
	if err != nil {
		return fmt.Errorf("failed to compute analytics: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode analytics: %w", err)
	}

	location, err := p.exporter.Put(ctx, AnalyticsFile, data, "application/json")
	if err != nil {
		return err
	}

	p.logger.Info("analytics exported",
		"location", location,
		"listings", report.TotalListings,
		"price_changes", report.TotalPriceChanges)
	return nil
}
