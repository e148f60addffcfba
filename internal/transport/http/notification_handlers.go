package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/myconnect-server/internal/service/notify"
	"github.com/vovakirdan/myconnect-server/internal/store"
)

// NotificationHandlers provides HTTP handlers for the notification inbox.
type NotificationHandlers struct {
	handlerBase
	inbox      *notify.Inbox
	dispatcher *notify.Dispatcher
}

// NewNotificationHandlers creates a new notification handlers instance.
func NewNotificationHandlers(inbox *notify.Inbox, dispatcher *notify.Dispatcher, logger *zerolog.Logger) *NotificationHandlers {
	return &NotificationHandlers{
		handlerBase: handlerBase{log: logger},
		inbox:       inbox,
		dispatcher:  dispatcher,
	}
}

// List returns the newest notifications of the caller.
// GET /api/notifications?limit=
func (h *NotificationHandlers) List(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	list, err := h.inbox.List(c.Request.Context(), actor.ID, limit)
	if err != nil {
		h.respondError(c, err, "failed to list notifications")
		return
	}
	c.JSON(http.StatusOK, lo.Map(list, func(n *store.Notification, _ int) NotificationResponse {
		return notificationResponse(n)
	}))
}

// UnreadCount returns how many notifications are unread.
// GET /api/notifications/unread-count
func (h *NotificationHandlers) UnreadCount(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	count, err := h.inbox.UnreadCount(c.Request.Context(), actor.ID)
	if err != nil {
		h.respondError(c, err, "failed to count unread notifications")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkRead marks one notification as read.
// PUT /api/notifications/:id/read
func (h *NotificationHandlers) MarkRead(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	n, err := h.inbox.MarkRead(c.Request.Context(), c.Param("id"), actor.ID)
	if err != nil {
		h.respondError(c, err, "failed to mark notification read")
		return
	}
	c.JSON(http.StatusOK, notificationResponse(n))
}

// MarkAllRead marks every notification of the caller as read.
// PUT /api/notifications/read-all
func (h *NotificationHandlers) MarkAllRead(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	count, err := h.inbox.MarkAllRead(c.Request.Context(), actor.ID)
	if err != nil {
		h.respondError(c, err, "failed to mark notifications read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": count})
}

// Delete removes one notification.
// DELETE /api/notifications/:id
func (h *NotificationHandlers) Delete(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	if err := h.inbox.Delete(c.Request.Context(), c.Param("id"), actor.ID); err != nil {
		h.respondError(c, err, "failed to delete notification")
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAll clears the caller's inbox.
// DELETE /api/notifications
func (h *NotificationHandlers) DeleteAll(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	count, err := h.inbox.DeleteAll(c.Request.Context(), actor.ID)
	if err != nil {
		h.respondError(c, err, "failed to delete notifications")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": count})
}

// SendTest pushes a test notification to the caller's device.
// POST /api/notifications/test
func (h *NotificationHandlers) SendTest(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	result, err := h.dispatcher.SendTest(c.Request.Context(), actor.ID)
	if err != nil {
		h.respondError(c, err, "test notification failed")
		return
	}
	c.JSON(http.StatusOK, result)
}
