package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by every store when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Role is the community role carried by an identity.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

// Identity is the locally known view of an authenticated member.
type Identity struct {
	ID          string
	DisplayName string
	Role        Role
	TenantScope string  // referral id of the owning community, empty for none
	DeviceToken *string // push registration, nil when the device never registered
	UpdatedAt   time.Time
}

// OwnsScope reports whether the identity is the administrator of the given scope.
func (i *Identity) OwnsScope(scope string) bool {
	if scope == "" || i.TenantScope != scope {
		return false
	}
	return i.Role == RoleAdmin || i.Role == RoleSuperAdmin
}

// Message is a single entry in a chat log.
type Message struct {
	ID       string
	SenderID string
	Text     string
	SentAt   time.Time
}

// Chat is a direct or public conversation with its message log.
type Chat struct {
	ID              string
	Participants    []string
	Messages        []Message
	IsPublic        bool
	TenantScope     *string // public chats only, nil for the default scope
	DisplayName     string
	LastMessageText *string
	LastMessageAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasParticipant reports whether userID is in the participant list.
func (c *Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// NewChat describes a chat to insert when its key is not taken yet.
type NewChat struct {
	ID           string
	Key          string // DirectKey or ScopeKey
	Participants []string
	IsPublic     bool
	TenantScope  *string
	DisplayName  string
}

// Notification is an in-app inbox record.
type Notification struct {
	ID          string
	RecipientID string
	Title       string
	Body        string
	Type        string
	Payload     map[string]string
	IsRead      bool
	CreatedAt   time.Time
}

// Notification types.
const (
	NotificationTypeChat         = "chat"
	NotificationTypeStatusChange = "status_change"
	NotificationTypeTest         = "test"
	NotificationTypeEvent        = "event"
	NotificationTypeOther        = "other"
)

// IdentityStore handles identity persistence.
type IdentityStore interface {
	// UpsertIdentity stores profile fields, leaving the device token untouched.
	UpsertIdentity(ctx context.Context, identity *Identity) error

	// GetIdentity retrieves an identity by ID.
	GetIdentity(ctx context.Context, id string) (*Identity, error)

	// ListIdentities returns the identities found among ids; unknown ids are skipped.
	ListIdentities(ctx context.Context, ids []string) ([]*Identity, error)

	// GetScopeOwner returns the admin identity owning the given tenant scope.
	GetScopeOwner(ctx context.Context, scope string) (*Identity, error)

	// SetDeviceToken registers or clears (nil) the push token of an identity.
	SetDeviceToken(ctx context.Context, id string, token *string) error
}

// ChatStore handles chat and message persistence.
type ChatStore interface {
	// FindOrCreateChat returns the chat stored under key, inserting nc atomically if absent.
	// created is true only for the caller whose insert won.
	FindOrCreateChat(ctx context.Context, nc *NewChat) (chat *Chat, created bool, err error)

	// GetChat retrieves a chat with its full message log.
	GetChat(ctx context.Context, id string) (*Chat, error)

	// GetChatByKey retrieves the chat stored under a DirectKey or ScopeKey.
	GetChatByKey(ctx context.Context, key string) (*Chat, error)

	// ListDirectChats lists direct chats of a user without messages, newest activity first.
	ListDirectChats(ctx context.Context, userID string) ([]*Chat, error)

	// AddParticipant appends userID to the participant list; a present participant is a no-op.
	AddParticipant(ctx context.Context, chatID, userID string) (*Chat, error)

	// AppendMessage stores a message and the chat summary in one atomic update.
	// SentAt is assigned by the store and never precedes the previous message.
	AppendMessage(ctx context.Context, chatID string, msg *Message) (*Chat, error)

	// RemoveMessages deletes messages by id from a chat log.
	RemoveMessages(ctx context.Context, chatID string, messageIDs []string) error

	// RecomputeSummary rebuilds the last-message summary from the log tail.
	RecomputeSummary(ctx context.Context, chatID string) (*Chat, error)
}

// NotificationStore handles inbox persistence.
type NotificationStore interface {
	// CreateNotification persists a new notification.
	CreateNotification(ctx context.Context, n *Notification) error

	// ListNotifications returns the newest notifications of a recipient.
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]*Notification, error)

	// CountUnread counts unread notifications of a recipient.
	CountUnread(ctx context.Context, recipientID string) (int64, error)

	// MarkRead marks a recipient's notification as read and returns it.
	MarkRead(ctx context.Context, id, recipientID string) (*Notification, error)

	// MarkAllRead marks all notifications of a recipient as read.
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)

	// DeleteNotification removes a recipient's notification.
	DeleteNotification(ctx context.Context, id, recipientID string) error

	// DeleteAllNotifications removes all notifications of a recipient.
	DeleteAllNotifications(ctx context.Context, recipientID string) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	IdentityStore
	ChatStore
	NotificationStore

	// Close closes the underlying database connection.
	Close() error
}
