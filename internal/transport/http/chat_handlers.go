package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/myconnect-server/internal/service/chats"
	"github.com/vovakirdan/myconnect-server/internal/store"
)

// handlerBase carries what every handler group needs.
type handlerBase struct {
	log *zerolog.Logger
}

// ChatHandlers provides HTTP handlers for chat endpoints.
type ChatHandlers struct {
	handlerBase
	chats *chats.Service
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(svc *chats.Service, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{handlerBase: handlerBase{log: logger}, chats: svc}
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// ListChats lists the caller's direct chats.
// GET /api/chats
func (h *ChatHandlers) ListChats(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	list, err := h.chats.ListDirect(c.Request.Context(), actor.ID)
	if err != nil {
		h.respondError(c, err, "failed to list chats")
		return
	}
	c.JSON(http.StatusOK, lo.Map(list, func(chat *store.Chat, _ int) ChatResponse { return chatResponse(chat) }))
}

// ResolveDirect returns the direct chat with another user, creating it on first contact.
// GET /api/chats/with/:userId
func (h *ChatHandlers) ResolveDirect(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	chat, err := h.chats.ResolveDirect(c.Request.Context(), actor.ID, c.Param("userId"))
	if err != nil {
		h.respondError(c, err, "failed to resolve direct chat")
		return
	}
	c.JSON(http.StatusOK, chatWithMessages(chat))
}

// ResolvePublic returns the public chat of the caller's community.
// GET /api/chats/public
func (h *ChatHandlers) ResolvePublic(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	h.resolvePublic(c, actor.ID, actor.Scope())
}

// ResolveDefaultPublic returns the public chat of the default scope.
// GET /api/chats/public/default
func (h *ChatHandlers) ResolveDefaultPublic(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	h.resolvePublic(c, actor.ID, nil)
}

func (h *ChatHandlers) resolvePublic(c *gin.Context, actorID string, scope *string) {
	chat, err := h.chats.ResolveScopedPublic(c.Request.Context(), actorID, scope)
	if err != nil {
		h.respondError(c, err, "failed to resolve public chat")
		return
	}
	c.JSON(http.StatusOK, chatWithMessages(chat))
}

// ListMessages returns a chat with its messages.
// GET /api/chats/:chatId/messages
func (h *ChatHandlers) ListMessages(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	chat, err := h.chats.Messages(c.Request.Context(), c.Param("chatId"), actor.ID)
	if err != nil {
		h.respondError(c, err, "failed to load messages")
		return
	}
	c.JSON(http.StatusOK, chatWithMessages(chat))
}

// SendMessage appends a message and fans it out.
// POST /api/chats/:chatId/messages
func (h *ChatHandlers) SendMessage(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, chat, err := h.chats.SendMessage(c.Request.Context(), c.Param("chatId"), actor.ID, req.Text)
	if err != nil {
		h.respondError(c, err, "failed to send message")
		return
	}

	h.log.Debug().Str("chat_id", chat.ID).Str("actor_id", actor.ID).Str("message_id", msg.ID).Msg("message sent")
	c.JSON(http.StatusCreated, messageResponse(chat.ID, *msg))
}
