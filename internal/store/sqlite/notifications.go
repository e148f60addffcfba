package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vovakirdan/myconnect-server/internal/store"
)

// ==== NotificationStore implementation ====

// CreateNotification persists a new notification.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *store.Notification) error {
	payload := n.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}

	query := `
		INSERT INTO notifications (id, recipient_id, title, body, type, payload, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		n.ID,
		n.RecipientID,
		n.Title,
		n.Body,
		n.Type,
		string(raw),
		n.IsRead,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the newest notifications of a recipient.
func (s *SQLiteStore) ListNotifications(ctx context.Context, recipientID string, limit int) ([]*store.Notification, error) {
	query := `
		SELECT id, recipient_id, title, body, type, payload, is_read, created_at
		FROM notifications
		WHERE recipient_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	notifications := []*store.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// CountUnread counts unread notifications of a recipient.
func (s *SQLiteStore) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`,
		recipientID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// MarkRead marks a recipient's notification as read and returns it.
func (s *SQLiteStore) MarkRead(ctx context.Context, id, recipientID string) (*store.Notification, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND recipient_id = ?`,
		id, recipientID,
	)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
	}

	query := `
		SELECT id, recipient_id, title, body, type, payload, is_read, created_at
		FROM notifications
		WHERE id = ? AND recipient_id = ?
	`
	n, err := scanNotification(s.db.QueryRowContext(ctx, query, id, recipientID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query notification: %w", err)
	}
	return n, nil
}

// MarkAllRead marks all notifications of a recipient as read.
func (s *SQLiteStore) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0`,
		recipientID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return result.RowsAffected()
}

// DeleteNotification removes a recipient's notification.
func (s *SQLiteStore) DeleteNotification(ctx context.Context, id, recipientID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = ? AND recipient_id = ?`,
		id, recipientID,
	)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// DeleteAllNotifications removes all notifications of a recipient.
func (s *SQLiteStore) DeleteAllNotifications(ctx context.Context, recipientID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE recipient_id = ?`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return result.RowsAffected()
}

func scanNotification(row rowScanner) (*store.Notification, error) {
	var n store.Notification
	var payload string
	if err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.Title,
		&n.Body,
		&n.Type,
		&payload,
		&n.IsRead,
		&n.CreatedAt,
	); err != nil {
		return nil, err
	}
	n.CreatedAt = n.CreatedAt.UTC()
	n.Payload = map[string]string{}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &n.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	return &n, nil
}
