package handlers

import (
	"errors"
	"listing-tracker/internal/database"
	"listing-tracker/internal/models"
	"listing-tracker/internal/search"
	"listing-tracker/internal/stats"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// ListingStore is the store surface the read API needs
type ListingStore interface {
	GetActiveListings() ([]models.Listing, error)
	GetAllListings() ([]models.Listing, error)
	GetListing(id string) (*models.Listing, error)
	GetHistory(id string) ([]models.HistoryEntry, error)
	SetField(id, field string, value bool) (bool, error)
	GetRecentChanges(limit int) ([]models.PriceChange, error)
	GetLastUpdate() (*time.Time, error)
}

// StatsSource computes dashboard metrics and analytics
type StatsSource interface {
	Dashboard() (stats.Dashboard, error)
	Analytics() (stats.Analytics, error)
}

// Searcher is the search index surface the API uses
type Searcher interface {
	Search(params search.FilterParams) (*search.SearchResult, error)
	DeleteListings(ids []string) error
}

// ListingHandler serves listings, their history and the user flags
type ListingHandler struct {
	store  ListingStore
	stats  StatsSource
	search Searcher
	logger *slog.Logger
}

// NewListingHandler creates a ListingHandler. searcher may be nil when no
// search index is configured.
func NewListingHandler(store ListingStore, statsSource StatsSource, searcher Searcher, logger *slog.Logger) *ListingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListingHandler{
		store:  store,
		stats:  statsSource,
		search: searcher,
		logger: logger.With("component", "api"),
	}
}

// List returns the non-removed listings, active first and newest first.
// include_removed=true returns every stored listing.
func (h *ListingHandler) List(c *gin.Context) {
	var (
		listings []models.Listing
		err      error
	)
	if c.Query("include_removed") == "true" {
		listings, err = h.store.GetAllListings()
	} else {
		listings, err = h.store.GetActiveListings()
	}
	if err != nil {
		h.internalError(c, "failed to load listings", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"count":    len(listings),
	})
}

// Get returns one listing
func (h *ListingHandler) Get(c *gin.Context) {
	l, err := h.store.GetListing(c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		return
	}
	if err != nil {
		h.internalError(c, "failed to load listing", err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// History returns the timeline of a listing, oldest first
func (h *ListingHandler) History(c *gin.Context) {
	id := c.Param("id")
	history, err := h.store.GetHistory(id)
	if err != nil {
		h.internalError(c, "failed to load history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      id,
		"history": history,
		"count":   len(history),
	})
}

// SetVisited sets the visited flag; the body may carry {"visited": false}
func (h *ListingHandler) SetVisited(c *gin.Context) {
	h.setFlag(c, models.FieldVisited)
}

// SetFavorite sets the favorite flag; the body may carry {"favorite": false}
func (h *ListingHandler) SetFavorite(c *gin.Context) {
	h.setFlag(c, models.FieldFavorite)
}

// Remove hides a listing from the dashboard and the search index
func (h *ListingHandler) Remove(c *gin.Context) {
	h.setFlag(c, models.FieldRemoved)
}

func (h *ListingHandler) setFlag(c *gin.Context, field string) {
	id := c.Param("id")

	value := true
	if c.Request.ContentLength != 0 {
		var body map[string]bool
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		if v, ok := body[field]; ok {
			value = v
		}
	}

	found, err := h.store.SetField(id, field, value)
	if err != nil {
		h.internalError(c, "failed to update listing", err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"success": false})
		return
	}

	if field == models.FieldRemoved && value && h.search != nil {
		if err := h.search.DeleteListings([]string{id}); err != nil {
			h.logger.Warn("failed to remove listing from search index", "id", id, "error", err)
		}
	}

	h.logger.Info("listing flag updated", "id", id, "field", field, "value", value)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Stats returns the dashboard metrics
func (h *ListingHandler) Stats(c *gin.Context) {
	d, err := h.stats.Dashboard()
	if err != nil {
		h.internalError(c, "failed to compute stats", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Analytics returns the price analytics report
func (h *ListingHandler) Analytics(c *gin.Context) {
	a, err := h.stats.Analytics()
	if err != nil {
		h.internalError(c, "failed to compute analytics", err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Changes returns the most recent price changes, newest first
func (h *ListingHandler) Changes(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	changes, err := h.store.GetRecentChanges(limit)
	if err != nil {
		h.internalError(c, "failed to load price changes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"changes": changes,
		"count":   len(changes),
	})
}

// LastUpdate returns when the last successful cycle finished, null if never
func (h *ListingHandler) LastUpdate(c *gin.Context) {
	at, err := h.store.GetLastUpdate()
	if err != nil {
		h.internalError(c, "failed to load last update", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"last_update": at})
}

// Search queries the search index
func (h *ListingHandler) Search(c *gin.Context) {
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Search is not configured"})
		return
	}

	params := search.FilterParams{
		Query:         c.Query("q"),
		IncludeSold:   c.Query("include_sold") == "true",
		FavoritesOnly: c.Query("favorites") == "true",
		PriceDropOnly: c.Query("price_drop") == "true",
		OpenHouseOnly: c.Query("open_house") == "true",
		SortBy:        c.Query("sort"),
		Limit:         int64(queryInt(c, "limit", 20)),
		Offset:        int64(queryInt(c, "offset", 0)),
	}
	for key, dst := range map[string]**float64{
		"min_price": &params.MinPrice,
		"max_price": &params.MaxPrice,
		"min_size":  &params.MinSize,
		"max_size":  &params.MaxSize,
	} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
			return
		}
		*dst = &f
	}
	if _, err := params.Sort(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.search.Search(params)
	if err != nil {
		h.internalError(c, "search failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ListingHandler) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
