package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin  = "join"
	InboundTypeLeave = "leave"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventJoined         = "joined"
	EventLeft           = "left"
	EventMessageCreated = "message_created"
	EventSummaryUpdated = "summary_updated"
)

// ChatData names the chat a join or leave refers to.
type ChatData struct {
	ChatID string `json:"chat_id"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Message is a chat message as delivered to clients.
type Message struct {
	ID       string    `json:"id"`
	ChatID   string    `json:"chat_id"`
	SenderID string    `json:"sender_id"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
}

// Summary is the last-message summary of a chat.
type Summary struct {
	LastMessageText *string    `json:"last_message_text"`
	LastMessageAt   *time.Time `json:"last_message_at"`
}

// MessageCreatedData announces a new message.
type MessageCreatedData struct {
	ChatID  string  `json:"chat_id"`
	Message Message `json:"message"`
}

// SummaryUpdatedData announces a new chat summary.
type SummaryUpdatedData struct {
	ChatID  string  `json:"chat_id"`
	Summary Summary `json:"summary"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code   string `json:"code"`
	Msg    string `json:"msg"`
	ChatID string `json:"chat_id,omitempty"`
}
