package cleanup

import (
	"errors"
	"fmt"
	"listing-tracker/internal/metrics"
	"listing-tracker/internal/models"
	"log/slog"
	"time"
)

// ErrDeletionLimit is returned when a cleanup would purge more listings than allowed
var ErrDeletionLimit = errors.New("deletion limit exceeded")

// Repository is the storage the boundary policy works on
type Repository interface {
	GetAllListings() ([]models.Listing, error)
	PurgeListing(l *models.Listing, reason string) error
}

// Deindexer removes purged listings from a secondary index
type Deindexer interface {
	DeleteListings(ids []string) error
}

// Service purges listings whose address falls outside the allow-list
type Service struct {
	repo    Repository
	index   Deindexer
	metrics *metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a new cleanup service. index and rec may be nil.
func NewService(repo Repository, index Deindexer, rec *metrics.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		index:   index,
		metrics: rec,
		logger:  logger.With("component", "cleanup"),
		now:     time.Now,
	}
}

// CleanupConfig holds configuration for cleanup operations
type CleanupConfig struct {
	MaxDeletionCount int  // Maximum number of listings to delete in one run, 0 for no limit
	DryRun           bool // If true, only log what would be deleted without actually deleting
}

// CleanupResult holds the result of a cleanup operation
type CleanupResult struct {
	TargetCount  int       `json:"target_count"`
	DeletedCount int       `json:"deleted_count"`
	ErrorCount   int       `json:"error_count"`
	DryRun       bool      `json:"dry_run"`
	Configured   bool      `json:"configured"`
	ExecutedAt   time.Time `json:"executed_at"`
	DeletedIDs   []string  `json:"deleted_ids"`
	Errors       []string  `json:"errors,omitempty"`
}

// FindOutOfBounds returns every stored listing, removed ones included, whose
// address the allow-list does not permit
func (s *Service) FindOutOfBounds(allow AllowList) ([]models.Listing, error) {
	if !allow.Configured() {
		return nil, nil
	}

	listings, err := s.repo.GetAllListings()
	if err != nil {
		return nil, fmt.Errorf("failed to load listings: %w", err)
	}

	var out []models.Listing
	for _, l := range listings {
		if !allow.Permits(l.Address) {
			out = append(out, l)
		}
	}
	return out, nil
}

// Cleanup hard-deletes out-of-bounds listings together with their history.
// An unconfigured allow-list makes this a no-op.
func (s *Service) Cleanup(allow AllowList, cfg CleanupConfig) (*CleanupResult, error) {
	result := &CleanupResult{
		DryRun:     cfg.DryRun,
		Configured: allow.Configured(),
		ExecutedAt: s.now(),
		DeletedIDs: []string{},
	}

	if !allow.Configured() {
		s.logger.Info("no location allow-list configured, skipping cleanup")
		return result, nil
	}

	targets, err := s.FindOutOfBounds(allow)
	if err != nil {
		return nil, err
	}
	result.TargetCount = len(targets)

	if result.TargetCount == 0 {
		s.logger.Info("no out-of-bounds listings found", "allow_list", allow.String())
		return result, nil
	}

	// Safety check: abort if too many listings would be deleted
	if cfg.MaxDeletionCount > 0 && result.TargetCount > cfg.MaxDeletionCount {
		return nil, fmt.Errorf("%w: %d listings exceed max deletion limit of %d",
			ErrDeletionLimit, result.TargetCount, cfg.MaxDeletionCount)
	}

	s.logger.Info("starting cleanup", "targets", result.TargetCount, "allow_list", allow.String(), "dry_run", cfg.DryRun)

	for i := range targets {
		l := &targets[i]
		if cfg.DryRun {
			s.logger.Info("[DRY-RUN] would delete listing", "id", l.ID, "address", l.Address)
			result.DeletedIDs = append(result.DeletedIDs, l.ID)
			result.DeletedCount++
			continue
		}

		if err := s.repo.PurgeListing(l, models.DeleteReasonOutOfBounds); err != nil {
			msg := fmt.Sprintf("failed to delete listing %s: %v", l.ID, err)
			s.logger.Error(msg)
			result.Errors = append(result.Errors, msg)
			result.ErrorCount++
			continue
		}

		s.logger.Info("deleted out-of-bounds listing", "id", l.ID, "address", l.Address)
		result.DeletedIDs = append(result.DeletedIDs, l.ID)
		result.DeletedCount++
	}

	if !cfg.DryRun {
		s.metrics.Purged(result.DeletedCount)
		if s.index != nil && len(result.DeletedIDs) > 0 {
			if err := s.index.DeleteListings(result.DeletedIDs); err != nil {
				s.logger.Warn("failed to remove purged listings from search index", "error", err)
			}
		}
	}

	s.logger.Info("cleanup completed",
		"deleted", result.DeletedCount, "targets", result.TargetCount, "errors", result.ErrorCount, "dry_run", cfg.DryRun)

	return result, nil
}
