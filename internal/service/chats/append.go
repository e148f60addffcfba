package chats

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vovakirdan/myconnect-server/internal/core"
	"github.com/vovakirdan/myconnect-server/internal/service/notify"
	"github.com/vovakirdan/myconnect-server/internal/store"
)

// NormalizeText trims text and checks it against the length limit.
func (s *Service) NormalizeText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: message text is required", core.ErrValidation)
	}
	if n := utf8.RuneCountInString(text); n > s.cfg.MaxMessageLength {
		return "", fmt.Errorf("%w: message is %d characters, limit is %d", core.ErrValidation, n, s.cfg.MaxMessageLength)
	}
	return text, nil
}

// Append persists a message from senderID. The caller has already authorized
// the sender. SentAt is assigned by the store.
func (s *Service) Append(ctx context.Context, chatID, senderID, text string) (*store.Message, *store.Chat, error) {
	text, err := s.NormalizeText(text)
	if err != nil {
		return nil, nil, err
	}

	msg := &store.Message{ID: s.newID(), SenderID: senderID, Text: text}
	chat, err := s.store.AppendMessage(ctx, chatID, msg)
	if err != nil {
		return nil, nil, storeErr("append message", err)
	}
	s.metrics.MessageAppended()
	return msg, chat, nil
}

// RecomputeSummary rebuilds the chat summary from its log tail.
func (s *Service) RecomputeSummary(ctx context.Context, chatID string) (*store.Chat, error) {
	chat, err := s.store.RecomputeSummary(ctx, chatID)
	if err != nil {
		return nil, storeErr("recompute summary", err)
	}
	return chat, nil
}

// SendMessage runs the full pipeline: authorize, append, publish both events,
// then hand the chat to the notifier. Publishing and dispatch never fail the call.
func (s *Service) SendMessage(ctx context.Context, chatID, actorID, text string) (*store.Message, *store.Chat, error) {
	if _, err := s.NormalizeText(text); err != nil {
		return nil, nil, err
	}
	if _, err := s.Authorize(ctx, chatID, actorID); err != nil {
		return nil, nil, err
	}

	unlock := s.locks.lock(chatID)
	msg, chat, err := s.Append(ctx, chatID, actorID, text)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	s.publish(core.NewMessageCreated(ToCoreMessage(chat.ID, *msg)))
	s.publish(core.NewSummaryUpdated(chat.ID, SummaryOf(chat)))
	unlock()

	s.log.Debug().Str("chat_id", chat.ID).Str("actor_id", actorID).Str("message_id", msg.ID).Msg("message appended")

	if s.notifier != nil {
		if !s.notifier.Enqueue(notify.Job{Chat: chat, Message: *msg, ActorID: actorID}) {
			s.log.Warn().Str("chat_id", chat.ID).Str("message_id", msg.ID).Msg("dispatch not accepted")
		}
	}
	return msg, chat, nil
}

// RemoveMessages deletes messages by id, recomputes the summary and publishes it.
// It is an administrative path with no membership check.
func (s *Service) RemoveMessages(ctx context.Context, chatID string, messageIDs []string) (*store.Chat, error) {
	unlock := s.locks.lock(chatID)
	defer unlock()

	if err := s.store.RemoveMessages(ctx, chatID, messageIDs); err != nil {
		return nil, storeErr("remove messages", err)
	}
	chat, err := s.RecomputeSummary(ctx, chatID)
	if err != nil {
		return nil, err
	}
	s.publish(core.NewSummaryUpdated(chat.ID, SummaryOf(chat)))
	return chat, nil
}
