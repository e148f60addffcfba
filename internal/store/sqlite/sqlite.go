package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Schema creates every table the store needs. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS identities (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	role         TEXT NOT NULL DEFAULT 'user',
	tenant_scope TEXT NOT NULL DEFAULT '',
	device_token TEXT,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_identities_scope ON identities(tenant_scope, role);

CREATE TABLE IF NOT EXISTS chats (
	id                TEXT PRIMARY KEY,
	chat_key          TEXT NOT NULL UNIQUE,
	is_public         BOOLEAN NOT NULL DEFAULT 0,
	tenant_scope      TEXT,
	display_name      TEXT NOT NULL DEFAULT '',
	last_message_text TEXT,
	last_message_at   DATETIME,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_participants (
	chat_id   TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	position  INTEGER NOT NULL,
	joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (chat_id, user_id),
	FOREIGN KEY (chat_id) REFERENCES chats(id)
);

CREATE INDEX IF NOT EXISTS idx_chat_participants_user ON chat_participants(user_id);

CREATE TABLE IF NOT EXISTS chat_messages (
	id        TEXT PRIMARY KEY,
	chat_id   TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	sender_id TEXT NOT NULL,
	text      TEXT NOT NULL,
	sent_at   DATETIME NOT NULL,
	UNIQUE (chat_id, seq),
	FOREIGN KEY (chat_id) REFERENCES chats(id)
);

CREATE TABLE IF NOT EXISTS notifications (
	id           TEXT PRIMARY KEY,
	recipient_id TEXT NOT NULL,
	title        TEXT NOT NULL,
	body         TEXT NOT NULL,
	type         TEXT NOT NULL,
	payload      TEXT NOT NULL DEFAULT '{}',
	is_read      BOOLEAN NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at DESC);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema on an in-memory database.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection serializes writers, which the per-chat
	// ordering relies on, and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// ApplySchema creates the store tables on db.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// maxBindVars caps the ids bound into one IN list.
const maxBindVars = 500

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	return args
}
