package core

import "time"

// Message is a persisted chat message as delivered to subscribers.
type Message struct {
	ID       string    `json:"id"`
	ChatID   string    `json:"chat_id"`
	SenderID string    `json:"sender_id"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
}

// Summary is the last-message summary of a chat. Both fields are nil for an empty log.
type Summary struct {
	LastMessageText *string    `json:"last_message_text"`
	LastMessageAt   *time.Time `json:"last_message_at"`
}
