package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	limiterCacheSize = 10000
	limiterIdleTTL   = 10 * time.Minute
)

// actorLimiter keeps one token bucket per actor; idle buckets expire.
type actorLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
}

func newActorLimiter(perSecond float64, burst int) *actorLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &actorLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: expirable.NewLRU[string, *rate.Limiter](limiterCacheSize, nil, limiterIdleTTL),
	}
}

func (l *actorLimiter) allow(actorID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters.Get(actorID)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
	}
	// Add refreshes the idle TTL.
	l.limiters.Add(actorID, lim)
	l.mu.Unlock()
	return lim.Allow()
}

// RateLimitMiddleware rejects actors exceeding their send rate with 429.
func RateLimitMiddleware(l *actorLimiter, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.Next()
			return
		}
		if !l.allow(actor.ID) {
			logger.Debug().Str("actor_id", actor.ID).Msg("rate limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
			return
		}
		c.Next()
	}
}
