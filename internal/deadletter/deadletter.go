// Package deadletter records dispatch work that could not be completed.
package deadletter

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Reasons a letter was written.
const (
	ReasonQueueFull     = "queue_full"
	ReasonPushFailed    = "push_failed"
	ReasonPersistFailed = "persist_failed"
	ReasonLookupFailed  = "lookup_failed"
)

// Letter describes one failed unit of notification work.
type Letter struct {
	Reason      string            `json:"reason"`
	ChatID      string            `json:"chat_id,omitempty"`
	MessageID   string            `json:"message_id,omitempty"`
	RecipientID string            `json:"recipient_id,omitempty"`
	Title       string            `json:"title,omitempty"`
	Body        string            `json:"body,omitempty"`
	Error       string            `json:"error,omitempty"`
	Payload     map[string]string `json:"payload,omitempty"`
	At          time.Time         `json:"at"`
}

// Sink receives dead letters.
type Sink interface {
	Write(ctx context.Context, l Letter) error
	Close() error
}

// LogSink writes letters to the structured log.
type LogSink struct {
	log *zerolog.Logger
}

// NewLogSink builds a log-backed sink.
func NewLogSink(logger *zerolog.Logger) *LogSink {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LogSink{log: logger}
}

func (s *LogSink) Write(_ context.Context, l Letter) error {
	s.log.Warn().
		Str("reason", l.Reason).
		Str("chat_id", l.ChatID).
		Str("message_id", l.MessageID).
		Str("recipient_id", l.RecipientID).
		Str("error", l.Error).
		Time("at", l.At).
		Msg("dead letter")
	return nil
}

func (s *LogSink) Close() error { return nil }

var _ Sink = (*LogSink)(nil)
