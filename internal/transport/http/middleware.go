package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/myconnect-server/internal/auth"
)

// ContextKeyActor is the gin context key holding the verified *auth.Actor.
const ContextKeyActor = "actor"

// AuthMiddleware verifies the bearer token and syncs the caller's identity.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			logger.Debug().Msg("missing or malformed authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			return
		}

		actor, err := authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrInvalidActor) {
				logger.Debug().Err(err).Msg("invalid token")
				c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
				return
			}
			logger.Error().Err(err).Msg("identity sync failed")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "service temporarily unavailable"})
			return
		}

		c.Set(ContextKeyActor, actor)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// actorFrom returns the actor set by AuthMiddleware.
func actorFrom(c *gin.Context) (*auth.Actor, bool) {
	v, ok := c.Get(ContextKeyActor)
	if !ok {
		return nil, false
	}
	actor, ok := v.(*auth.Actor)
	return actor, ok
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		evt := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			evt = logger.Warn()
		}
		if actor, ok := actorFrom(c); ok {
			evt = evt.Str("actor_id", actor.ID)
		}
		evt.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
