package chats

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/myconnect-server/internal/core"
	"github.com/vovakirdan/myconnect-server/internal/store"
)

// ResolveDirect returns the direct chat between actorID and otherID,
// creating it on first contact.
func (s *Service) ResolveDirect(ctx context.Context, actorID, otherID string) (*store.Chat, error) {
	actorID = strings.TrimSpace(actorID)
	otherID = strings.TrimSpace(otherID)
	if actorID == "" || otherID == "" {
		return nil, fmt.Errorf("%w: both participants are required", core.ErrValidation)
	}
	if actorID == otherID {
		return nil, fmt.Errorf("%w: cannot open a chat with yourself", core.ErrValidation)
	}

	chat, created, err := s.store.FindOrCreateChat(ctx, &store.NewChat{
		ID:           s.newID(),
		Key:          store.DirectKey(actorID, otherID),
		Participants: []string{actorID, otherID},
	})
	if err != nil {
		return nil, storeErr("resolve direct chat", err)
	}
	if created {
		s.log.Debug().Str("chat_id", chat.ID).Str("actor_id", actorID).Str("other_id", otherID).Msg("direct chat created")
	}
	return chat, nil
}

// ResolveScopedPublic returns the public chat of scope (nil or blank for the
// default scope), creating it if needed, and makes actorID a participant.
func (s *Service) ResolveScopedPublic(ctx context.Context, actorID string, scope *string) (*store.Chat, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, fmt.Errorf("%w: actor is required", core.ErrValidation)
	}
	scope = store.NormalizeScope(scope)
	key := store.ScopeKey(scope)

	chat, err := s.store.GetChatByKey(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		chat, _, err = s.store.FindOrCreateChat(ctx, &store.NewChat{
			ID:          s.newID(),
			Key:         key,
			IsPublic:    true,
			TenantScope: scope,
			DisplayName: s.publicDisplayName(ctx, scope),
		})
		if err != nil {
			return nil, storeErr("resolve public chat", err)
		}
	default:
		return nil, storeErr("resolve public chat", err)
	}

	return s.ensureMember(ctx, chat, actorID)
}

// publicDisplayName names a new public chat after the scope owner. Lookup
// failures fall back to the configured label.
func (s *Service) publicDisplayName(ctx context.Context, scope *string) string {
	if scope == nil {
		return s.cfg.PublicFallbackName
	}
	owner, err := s.store.GetScopeOwner(ctx, *scope)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn().Err(err).Str("scope", *scope).Msg("scope owner lookup failed, using fallback name")
		}
		return s.cfg.PublicFallbackName
	}
	if strings.TrimSpace(owner.DisplayName) == "" {
		return s.cfg.PublicFallbackName
	}
	return owner.DisplayName
}

func (s *Service) ensureMember(ctx context.Context, chat *store.Chat, userID string) (*store.Chat, error) {
	if chat.HasParticipant(userID) {
		return chat, nil
	}
	updated, err := s.store.AddParticipant(ctx, chat.ID, userID)
	if err != nil {
		return nil, storeErr("add participant", err)
	}
	return updated, nil
}

// Authorize loads a chat for actorID. Public chats admit everyone and record
// membership; direct chats admit only their two participants.
func (s *Service) Authorize(ctx context.Context, chatID, actorID string) (*store.Chat, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, fmt.Errorf("%w: chat id is required", core.ErrValidation)
	}
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, storeErr("load chat", err)
	}
	if chat.IsPublic {
		return s.ensureMember(ctx, chat, actorID)
	}
	if !chat.HasParticipant(actorID) {
		return nil, fmt.Errorf("chat %s: %w", chatID, core.ErrForbidden)
	}
	return chat, nil
}

// CanJoin reports whether userID may subscribe to chatID's events.
func (s *Service) CanJoin(ctx context.Context, chatID, userID string) error {
	_, err := s.Authorize(ctx, chatID, userID)
	return err
}

// ListDirect returns the actor's direct chats, newest activity first, without message bodies.
func (s *Service) ListDirect(ctx context.Context, actorID string) ([]*store.Chat, error) {
	chats, err := s.store.ListDirectChats(ctx, actorID)
	if err != nil {
		return nil, storeErr("list chats", err)
	}
	for _, c := range chats {
		c.Messages = nil
	}
	return chats, nil
}

// Messages returns a chat with its full log if actorID may access it.
func (s *Service) Messages(ctx context.Context, chatID, actorID string) (*store.Chat, error) {
	return s.Authorize(ctx, chatID, actorID)
}
