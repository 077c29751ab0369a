package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the API on r. metrics may be nil.
func RegisterRoutes(r *gin.Engine, listings *ListingHandler, admin *AdminHandler, metrics http.Handler) {
	r.GET("/health", healthCheck)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	api := r.Group("/api")
	{
		api.GET("/listings", listings.List)
		api.GET("/listings/:id", listings.Get)
		api.GET("/listings/:id/history", listings.History)
		api.POST("/listings/:id/visited", listings.SetVisited)
		api.POST("/listings/:id/favorite", listings.SetFavorite)
		api.POST("/listings/:id/remove", listings.Remove)

		api.GET("/stats", listings.Stats)
		api.GET("/analytics", listings.Analytics)
		api.GET("/changes", listings.Changes)
		api.GET("/last-update", listings.LastUpdate)
		api.GET("/search", listings.Search)

		api.POST("/refresh", RateLimitMiddleware(admin.limiter), admin.Refresh)
		api.GET("/ratelimit/stats", admin.GetRateLimitStats)
	}

	// Admin API routes (requires authentication in production)
	adminGroup := r.Group("/api/admin")
	{
		adminGroup.POST("/cleanup", admin.RunCleanup)
		adminGroup.GET("/cleanup/logs", admin.GetDeleteLogs)
		adminGroup.GET("/stats", admin.GetStats)
		adminGroup.GET("/cycle", admin.GetCycle)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
