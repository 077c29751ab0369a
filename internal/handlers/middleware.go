package handlers

import (
	"listing-tracker/internal/ratelimit"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware rejects requests beyond the limiter's windows with 429
func RateLimitMiddleware(rl *ratelimit.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.AllowRequest() {
			retry := rl.RetryAfter()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please try again later.",
				"stats":   rl.GetStats(),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
