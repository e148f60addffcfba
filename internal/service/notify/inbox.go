package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/myconnect-server/internal/core"
	"github.com/vovakirdan/myconnect-server/internal/store"
)

// Inbox list limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Inbox serves a recipient's own notifications. Every operation is scoped
// to the recipient; foreign ids look like missing ones.
type Inbox struct {
	store store.NotificationStore
}

// NewInbox creates an inbox over st.
func NewInbox(st store.NotificationStore) *Inbox {
	return &Inbox{store: st}
}

// List returns the newest notifications. limit <= 0 selects the default and
// larger values are capped.
func (i *Inbox) List(ctx context.Context, recipientID string, limit int) ([]*store.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	list, err := i.store.ListNotifications(ctx, recipientID, limit)
	if err != nil {
		return nil, inboxErr("list notifications", err)
	}
	return list, nil
}

func (i *Inbox) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	count, err := i.store.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, inboxErr("count unread", err)
	}
	return count, nil
}

func (i *Inbox) MarkRead(ctx context.Context, id, recipientID string) (*store.Notification, error) {
	n, err := i.store.MarkRead(ctx, id, recipientID)
	if err != nil {
		return nil, inboxErr("mark read", err)
	}
	return n, nil
}

func (i *Inbox) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	count, err := i.store.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, inboxErr("mark all read", err)
	}
	return count, nil
}

func (i *Inbox) Delete(ctx context.Context, id, recipientID string) error {
	if err := i.store.DeleteNotification(ctx, id, recipientID); err != nil {
		return inboxErr("delete notification", err)
	}
	return nil
}

func (i *Inbox) DeleteAll(ctx context.Context, recipientID string) (int64, error) {
	count, err := i.store.DeleteAllNotifications(ctx, recipientID)
	if err != nil {
		return 0, inboxErr("delete notifications", err)
	}
	return count, nil
}

func inboxErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrUpstreamUnavailable, err)
}
