package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/vovakirdan/myconnect-server/internal/store"
)

// ==== ChatStore implementation ====

const chatColumns = `id, is_public, tenant_scope, display_name, last_message_text, last_message_at, created_at, updated_at`

// FindOrCreateChat returns the chat stored under nc.Key, inserting nc if absent.
// The unique chat_key constraint makes concurrent first contact produce one row.
func (s *SQLiteStore) FindOrCreateChat(ctx context.Context, nc *store.NewChat) (*store.Chat, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // Rollback after Commit is a no-op
	}()

	now := s.now().UTC()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, chat_key, is_public, tenant_scope, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_key) DO NOTHING
	`, nc.ID, nc.Key, nc.IsPublic, nc.TenantScope, nc.DisplayName, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("insert chat: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	created := affected == 1

	if created {
		for _, userID := range nc.Participants {
			if err := addParticipantTx(ctx, tx, nc.ID, userID); err != nil {
				return nil, false, err
			}
		}
	}

	var chatID string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM chats WHERE chat_key = ?`, nc.Key).Scan(&chatID); err != nil {
		return nil, false, fmt.Errorf("query chat by key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}

	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, false, err
	}
	return chat, created, nil
}

// GetChat retrieves a chat with its full message log.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*store.Chat, error) {
	chat, err := s.getChatRow(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	if chat.Participants, err = s.loadParticipants(ctx, id); err != nil {
		return nil, err
	}
	if chat.Messages, err = s.loadMessages(ctx, id); err != nil {
		return nil, err
	}
	return chat, nil
}

// GetChatByKey retrieves the chat stored under a DirectKey or ScopeKey.
func (s *SQLiteStore) GetChatByKey(ctx context.Context, key string) (*store.Chat, error) {
	var chatID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM chats WHERE chat_key = ?`, key).Scan(&chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat %s: %w", key, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query chat by key: %w", err)
	}
	return s.GetChat(ctx, chatID)
}

// ListDirectChats lists direct chats of a user without messages, newest activity first.
func (s *SQLiteStore) ListDirectChats(ctx context.Context, userID string) ([]*store.Chat, error) {
	query := `
		SELECT c.id, c.is_public, c.tenant_scope, c.display_name, c.last_message_text, c.last_message_at, c.created_at, c.updated_at
		FROM chats c
		JOIN chat_participants p ON p.chat_id = c.id
		WHERE p.user_id = ? AND c.is_public = 0
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}

	var chats []*store.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, chat := range chats {
		if chat.Participants, err = s.loadParticipants(ctx, chat.ID); err != nil {
			return nil, err
		}
	}
	return chats, nil
}

// AddParticipant appends userID to the participant list; a present participant is a no-op.
func (s *SQLiteStore) AddParticipant(ctx context.Context, chatID, userID string) (*store.Chat, error) {
	if _, err := s.getChatRow(ctx, s.db, chatID); err != nil {
		return nil, err
	}
	if err := addParticipantTx(ctx, s.db, chatID, userID); err != nil {
		return nil, err
	}
	return s.GetChat(ctx, chatID)
}

// AppendMessage stores a message and the chat summary in one transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, chatID string, msg *store.Message) (*store.Chat, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // Rollback after Commit is a no-op
	}()

	if _, err := s.getChatRow(ctx, tx, chatID); err != nil {
		return nil, err
	}

	var lastSeq int64
	var lastSentAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT seq, sent_at FROM chat_messages
		WHERE chat_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, chatID).Scan(&lastSeq, &lastSentAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query log tail: %w", err)
	}

	sentAt := s.now().UTC()
	if lastSentAt.Valid && sentAt.Before(lastSentAt.Time) {
		sentAt = lastSentAt.Time.UTC()
	}
	msg.SentAt = sentAt

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, chat_id, seq, sender_id, text, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, chatID, lastSeq+1, msg.SenderID, msg.Text, sentAt); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE chats
		SET last_message_text = ?, last_message_at = ?, updated_at = ?
		WHERE id = ?
	`, msg.Text, sentAt, sentAt, chatID); err != nil {
		return nil, fmt.Errorf("update summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetChat(ctx, chatID)
}

// RemoveMessages deletes messages by id from a chat log.
func (s *SQLiteStore) RemoveMessages(ctx context.Context, chatID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	for _, chunk := range lo.Chunk(messageIDs, maxBindVars) {
		query := `DELETE FROM chat_messages WHERE chat_id = ? AND id IN (` + placeholders(len(chunk)) + `)`
		args := append([]any{chatID}, stringArgs(chunk)...)
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
	}
	return nil
}

// RecomputeSummary rebuilds the last-message summary from the log tail.
func (s *SQLiteStore) RecomputeSummary(ctx context.Context, chatID string) (*store.Chat, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // Rollback after Commit is a no-op
	}()

	if _, err := s.getChatRow(ctx, tx, chatID); err != nil {
		return nil, err
	}

	var text sql.NullString
	var sentAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT text, sent_at FROM chat_messages
		WHERE chat_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, chatID).Scan(&text, &sentAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query log tail: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE chats
		SET last_message_text = ?, last_message_at = ?, updated_at = ?
		WHERE id = ?
	`, text, sentAt, s.now().UTC(), chatID); err != nil {
		return nil, fmt.Errorf("update summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetChat(ctx, chatID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) getChatRow(ctx context.Context, q queryer, id string) (*store.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE id = ?`
	chat, err := scanChat(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query chat: %w", err)
	}
	return chat, nil
}

// addParticipantTx appends userID at the next position unless already present.
func addParticipantTx(ctx context.Context, q queryer, chatID, userID string) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO chat_participants (chat_id, user_id, position)
		SELECT ?, ?, COALESCE(MAX(position), 0) + 1
		FROM chat_participants
		WHERE chat_id = ?
	`, chatID, userID, chatID)
	if err != nil {
		return fmt.Errorf("add participant %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) loadParticipants(ctx context.Context, chatID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM chat_participants
		WHERE chat_id = ?
		ORDER BY position ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	participants := []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, userID)
	}
	return participants, rows.Err()
}

func (s *SQLiteStore) loadMessages(ctx context.Context, chatID string) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, text, sent_at FROM chat_messages
		WHERE chat_id = ?
		ORDER BY seq ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []store.Message{}
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.Text, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.SentAt = msg.SentAt.UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func scanChat(row rowScanner) (*store.Chat, error) {
	var chat store.Chat
	var scope sql.NullString
	var lastText sql.NullString
	var lastAt sql.NullTime
	if err := row.Scan(
		&chat.ID,
		&chat.IsPublic,
		&scope,
		&chat.DisplayName,
		&lastText,
		&lastAt,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if scope.Valid {
		chat.TenantScope = &scope.String
	}
	if lastText.Valid {
		chat.LastMessageText = &lastText.String
	}
	if lastAt.Valid {
		t := lastAt.Time.UTC()
		chat.LastMessageAt = &t
	}
	return &chat, nil
}
