package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/myconnect-server/internal/core"
	"github.com/vovakirdan/myconnect-server/internal/store"
)

// DeviceHandlers manages the caller's push registration.
type DeviceHandlers struct {
	handlerBase
	identities store.IdentityStore
}

// NewDeviceHandlers creates a new device handlers instance.
func NewDeviceHandlers(identities store.IdentityStore, logger *zerolog.Logger) *DeviceHandlers {
	return &DeviceHandlers{handlerBase: handlerBase{log: logger}, identities: identities}
}

// DeviceTokenRequest represents the register device token request body.
type DeviceTokenRequest struct {
	Token string `json:"token" binding:"required,max=4096"`
}

// Register stores the caller's push token.
// PUT /api/me/device-token
func (h *DeviceHandlers) Register(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req DeviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token := strings.TrimSpace(req.Token)
	if err := h.identities.SetDeviceToken(c.Request.Context(), actor.ID, &token); err != nil {
		h.respondError(c, core.UpstreamError("set device token", err), "failed to register device token")
		return
	}
	h.log.Debug().Str("actor_id", actor.ID).Msg("device token registered")
	c.Status(http.StatusNoContent)
}

// Clear removes the caller's push token.
// DELETE /api/me/device-token
func (h *DeviceHandlers) Clear(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	if err := h.identities.SetDeviceToken(c.Request.Context(), actor.ID, nil); err != nil {
		h.respondError(c, core.UpstreamError("clear device token", err), "failed to clear device token")
		return
	}
	c.Status(http.StatusNoContent)
}
