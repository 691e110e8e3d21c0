package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/vhvplatform/go-hotel-notification-service/internal/metrics"
)

// OrganizationRateLimiter manages a token bucket per organization
type OrganizationRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewOrganizationRateLimiter creates a new per-organization rate limiter
func NewOrganizationRateLimiter(rps float64, burst int) *OrganizationRateLimiter {
	return &OrganizationRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

// GetLimiter returns the rate limiter of an organization
func (rl *OrganizationRateLimiter) GetLimiter(orgID string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[orgID]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		// Double-check after acquiring write lock
		limiter, exists = rl.limiters[orgID]
		if !exists {
			limiter = rate.NewLimiter(rl.rate, rl.burst)
			rl.limiters[orgID] = limiter
		}
		rl.mu.Unlock()
	}

	return limiter
}

// RateLimitMiddleware rejects requests above the organization's rate with 429.
// It must run after TenancyMiddleware; requests without an organization pass through.
func RateLimitMiddleware(rl *OrganizationRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := GetOrganizationID(c)
		if orgID == "" {
			c.Next()
			return
		}

		if !rl.GetLimiter(orgID).Allow() {
			metrics.RateLimitExceeded.WithLabelValues(orgID).Inc()
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
