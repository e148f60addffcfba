package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/vovakirdan/myconnect-server/internal/core"
	"github.com/vovakirdan/myconnect-server/internal/proto"
	"github.com/vovakirdan/myconnect-server/internal/store"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ChatResponse represents a chat in API responses.
type ChatResponse struct {
	ID              string     `json:"id"`
	Participants    []string   `json:"participants"`
	IsPublic        bool       `json:"is_public"`
	TenantScope     *string    `json:"tenant_scope"`
	DisplayName     string     `json:"display_name"`
	LastMessageText *string    `json:"last_message_text"`
	LastMessageAt   *time.Time `json:"last_message_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ChatWithMessagesResponse is a chat with its full message log.
type ChatWithMessagesResponse struct {
	ChatResponse
	Messages []proto.Message `json:"messages"`
}

// NotificationResponse represents an inbox record in API responses.
type NotificationResponse struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Type      string            `json:"type"`
	Payload   map[string]string `json:"payload"`
	IsRead    bool              `json:"is_read"`
	CreatedAt time.Time         `json:"created_at"`
}

func chatResponse(c *store.Chat) ChatResponse {
	participants := c.Participants
	if participants == nil {
		participants = []string{}
	}
	return ChatResponse{
		ID:              c.ID,
		Participants:    participants,
		IsPublic:        c.IsPublic,
		TenantScope:     c.TenantScope,
		DisplayName:     c.DisplayName,
		LastMessageText: c.LastMessageText,
		LastMessageAt:   c.LastMessageAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func chatWithMessages(c *store.Chat) ChatWithMessagesResponse {
	return ChatWithMessagesResponse{
		ChatResponse: chatResponse(c),
		Messages: lo.Map(c.Messages, func(m store.Message, _ int) proto.Message {
			return messageResponse(c.ID, m)
		}),
	}
}

func messageResponse(chatID string, m store.Message) proto.Message {
	return proto.Message{
		ID:       m.ID,
		ChatID:   chatID,
		SenderID: m.SenderID,
		Text:     m.Text,
		SentAt:   m.SentAt,
	}
}

func notificationResponse(n *store.Notification) NotificationResponse {
	payload := n.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	return NotificationResponse{
		ID:        n.ID,
		Title:     n.Title,
		Body:      n.Body,
		Type:      n.Type,
		Payload:   payload,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

// httpStatus maps a core error code to its HTTP status.
func httpStatus(code string) int {
	switch code {
	case core.ErrCodeNotFound:
		return http.StatusNotFound
	case core.ErrCodeForbidden:
		return http.StatusForbidden
	case core.ErrCodeBadRequest:
		return http.StatusBadRequest
	case core.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case core.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error, logging server-side failures.
func (h *handlerBase) respondError(c *gin.Context, err error, msg string) {
	ce := core.ToCoreError(err)
	status := httpStatus(ce.Code)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
	} else {
		h.log.Debug().Err(err).Str("path", c.FullPath()).Msg(msg)
	}
	c.JSON(status, ErrorResponse{Error: ce.Message, Code: ce.Code})
}

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	var kind core.CommandKind
	switch inbound.Type {
	case proto.InboundTypeJoin:
		kind = core.CommandJoinChat
	case proto.InboundTypeLeave:
		kind = core.CommandLeaveChat
	default:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown message type"}
	}

	var data proto.ChatData
	if len(inbound.Data) > 0 {
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "invalid data"}
		}
	}
	if data.ChatID == "" {
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "chat_id is required"}
	}
	return &core.Command{Kind: kind, ChatID: data.ChatID}, nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessageCreated:
		out := proto.Outbound{Type: proto.OutboundTypeEvent, Event: proto.EventMessageCreated}
		if event.Message != nil {
			m := event.Message
			out.Data = proto.MessageCreatedData{
				ChatID: event.ChatID,
				Message: proto.Message{
					ID:       m.ID,
					ChatID:   m.ChatID,
					SenderID: m.SenderID,
					Text:     m.Text,
					SentAt:   m.SentAt,
				},
			}
		}
		return out
	case core.EventSummaryUpdated:
		summary := proto.Summary{}
		if event.Summary != nil {
			summary = proto.Summary{
				LastMessageText: event.Summary.LastMessageText,
				LastMessageAt:   event.Summary.LastMessageAt,
			}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventSummaryUpdated,
			Data:  proto.SummaryUpdatedData{ChatID: event.ChatID, Summary: summary},
		}
	case core.EventJoined:
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: proto.EventJoined, Data: proto.ChatData{ChatID: event.ChatID}}
	case core.EventLeft:
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: proto.EventLeft, Data: proto.ChatData{ChatID: event.ChatID}}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error", ChatID: event.ChatID}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message, ChatID: event.ChatID},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
