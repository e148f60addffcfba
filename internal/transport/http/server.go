package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/myconnect-server/internal/auth"
	"github.com/vovakirdan/myconnect-server/internal/config"
	"github.com/vovakirdan/myconnect-server/internal/core"
	"github.com/vovakirdan/myconnect-server/internal/metrics"
	"github.com/vovakirdan/myconnect-server/internal/service/chats"
	"github.com/vovakirdan/myconnect-server/internal/service/notify"
	"github.com/vovakirdan/myconnect-server/internal/store"
)

// Deps are the services the HTTP surface exposes.
type Deps struct {
	Auth       *auth.Service
	Chats      *chats.Service
	Dispatcher *notify.Dispatcher
	Inbox      *notify.Inbox
	Identities store.IdentityStore
	Hub        *core.Hub
	Metrics    *metrics.Metrics
}

// NewServer builds an HTTP server with REST API, WebSocket and ops routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	chatHandlers := NewChatHandlers(deps.Chats, logger)
	notificationHandlers := NewNotificationHandlers(deps.Inbox, deps.Dispatcher, logger)
	deviceHandlers := NewDeviceHandlers(deps.Identities, logger)
	sendLimit := RateLimitMiddleware(newActorLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst), logger)

	api := router.Group("/api")
	api.Use(AuthMiddleware(deps.Auth, logger))
	{
		api.GET("/chats", chatHandlers.ListChats)
		api.GET("/chats/with/:userId", chatHandlers.ResolveDirect)
		api.GET("/chats/public", chatHandlers.ResolvePublic)
		api.GET("/chats/public/default", chatHandlers.ResolveDefaultPublic)
		api.GET("/chats/:chatId/messages", chatHandlers.ListMessages)
		api.POST("/chats/:chatId/messages", sendLimit, chatHandlers.SendMessage)

		api.GET("/notifications", notificationHandlers.List)
		api.GET("/notifications/unread-count", notificationHandlers.UnreadCount)
		api.PUT("/notifications/read-all", notificationHandlers.MarkAllRead)
		api.PUT("/notifications/:id/read", notificationHandlers.MarkRead)
		api.DELETE("/notifications/:id", notificationHandlers.Delete)
		api.DELETE("/notifications", notificationHandlers.DeleteAll)
		api.POST("/notifications/test", notificationHandlers.SendTest)

		api.PUT("/me/device-token", deviceHandlers.Register)
		api.DELETE("/me/device-token", deviceHandlers.Clear)
	}

	// /ws bypasses gin: the handler owns the hijacked connection.
	mux := http.NewServeMux()
	mux.Handle("/ws", NewWSHandler(deps.Hub, deps.Auth, cfg.Server.WSBuffer, deps.Metrics, logger))
	mux.Handle("/", router)

	return &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
}
