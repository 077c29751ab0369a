package handlers

import (
	"context"
	"errors"
	"listing-tracker/internal/cleanup"
	"listing-tracker/internal/database"
	"listing-tracker/internal/models"
	"listing-tracker/internal/ratelimit"
	"listing-tracker/internal/scheduler"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CycleRunner starts cycles and cleanups
type CycleRunner interface {
	Trigger(ctx context.Context) (string, error)
	Running() bool
	LastReport() *scheduler.CycleReport
	Cleanup(dryRun bool) (*cleanup.CleanupResult, error)
}

// AdminStore is the store surface the admin API needs
type AdminStore interface {
	CountListings() (int64, error)
	GetActiveListings() ([]models.Listing, error)
	CountPriceChanges() (int64, error)
	GetDeleteStats() (*database.DeleteStats, error)
	GetRecentDeleteLogs(limit int) ([]models.DeleteLog, error)
	GetCycleState() (*models.CycleState, error)
}

// AdminHandler handles admin-related requests
type AdminHandler struct {
	store   AdminStore
	runner  CycleRunner
	limiter *ratelimit.RateLimiter
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(store AdminStore, runner CycleRunner, limiter *ratelimit.RateLimiter, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		store:   store,
		runner:  runner,
		limiter: limiter,
		logger:  logger.With("component", "admin"),
	}
}

// Refresh starts a cycle in the background
func (h *AdminHandler) Refresh(c *gin.Context) {
	runID, err := h.runner.Trigger(c.Request.Context())
	if errors.Is(err, scheduler.ErrCycleInProgress) {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "A refresh is already running",
			"status": "running",
		})
		return
	}
	if err != nil {
		h.logger.Error("failed to start refresh", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("manual refresh triggered", "run_id", runID)
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Refresh started",
		"run_id":  runID,
		"status":  "running",
	})
}

// RunCleanup applies the location allow-list. The body may carry
// {"dry_run": true}.
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	var req struct {
		DryRun bool `json:"dry_run"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := h.runner.Cleanup(req.DryRun)
	switch {
	case errors.Is(err, scheduler.ErrCycleInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "A refresh is running, try again later"})
		return
	case errors.Is(err, cleanup.ErrDeletionLimit):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("cleanup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("cleanup completed",
		"deleted", result.DeletedCount, "targets", result.TargetCount, "dry_run", result.DryRun)
	c.JSON(http.StatusOK, result)
}

// GetDeleteLogs returns recent delete log entries
func (h *AdminHandler) GetDeleteLogs(c *gin.Context) {
	logs, err := h.store.GetRecentDeleteLogs(queryInt(c, "limit", 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// GetStats returns system statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	total, err := h.store.CountListings()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	active, err := h.store.GetActiveListings()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	changes, err := h.store.CountPriceChanges()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var sold, favorite int
	for _, l := range active {
		if l.Sold {
			sold++
		}
		if l.Favorite {
			favorite++
		}
	}

	stats := gin.H{
		"listings": gin.H{
			"total":    total,
			"visible":  len(active),
			"removed":  total - int64(len(active)),
			"sold":     sold,
			"favorite": favorite,
		},
		"price_changes": changes,
	}

	deleteStats, err := h.store.GetDeleteStats()
	if err != nil {
		h.logger.Warn("failed to get delete stats", "error", err)
	} else {
		stats["deletions"] = deleteStats
	}

	c.JSON(http.StatusOK, stats)
}

// GetCycle returns the persisted cycle state and the last run's report
func (h *AdminHandler) GetCycle(c *gin.Context) {
	state, err := h.store.GetCycleState()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"running":     h.runner.Running(),
		"state":       state,
		"last_report": h.runner.LastReport(),
	})
}

// GetRateLimitStats returns current rate limiter statistics
func (h *AdminHandler) GetRateLimitStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.limiter.GetStats())
}
