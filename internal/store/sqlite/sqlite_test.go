package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/myconnect-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewWithSetup(":memory:", ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func directChat(a, b string) *store.NewChat {
	return &store.NewChat{
		ID:           fmt.Sprintf("chat-%s-%s-%d", a, b, time.Now().UnixNano()),
		Key:          store.DirectKey(a, b),
		Participants: []string{a, b},
	}
}

func TestFindOrCreateChatConcurrentFirstContact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	ids := make([]string, workers)
	createdCount := make([]bool, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nc := directChat("alice", "bob")
			if i%2 == 1 {
				nc = directChat("bob", "alice")
			}
			nc.ID = fmt.Sprintf("candidate-%d", i)
			chat, created, err := s.FindOrCreateChat(ctx, nc)
			errs[i] = err
			if chat != nil {
				ids[i] = chat.ID
			}
			createdCount[i] = created
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i], "all callers must observe the same chat")
		if createdCount[i] {
			winners++
		}
	}
	require.Equal(t, 1, winners)

	chat, err := s.GetChat(ctx, ids[0])
	require.NoError(t, err)
	require.Len(t, chat.Participants, 2)
	require.False(t, chat.IsPublic)
}

func TestAddParticipantIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat, created, err := s.FindOrCreateChat(ctx, &store.NewChat{
		ID:          "pub-1",
		Key:         store.ScopeKey(nil),
		IsPublic:    true,
		DisplayName: "My Connect",
	})
	require.NoError(t, err)
	require.True(t, created)
	require.Empty(t, chat.Participants)

	for i := 0; i < 3; i++ {
		chat, err = s.AddParticipant(ctx, "pub-1", "carol")
		require.NoError(t, err)
	}
	chat, err = s.AddParticipant(ctx, "pub-1", "dave")
	require.NoError(t, err)
	require.Equal(t, []string{"carol", "dave"}, chat.Participants)

	_, err = s.AddParticipant(ctx, "missing", "carol")
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func TestAppendMessageOrderingAndSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat, _, err := s.FindOrCreateChat(ctx, directChat("alice", "bob"))
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	step := 0
	s.now = func() time.Time {
		now := clock[step]
		step++
		return now
	}

	texts := []string{"first", "second", "third"}
	for i, text := range texts {
		msg := &store.Message{ID: fmt.Sprintf("m%d", i), SenderID: "alice", Text: text}
		chat, err = s.AppendMessage(ctx, chat.ID, msg)
		require.NoError(t, err)
		require.False(t, msg.SentAt.IsZero())
	}

	require.Len(t, chat.Messages, 3)
	for i, text := range texts {
		require.Equal(t, text, chat.Messages[i].Text)
	}
	// The clock went backwards for the second append; its timestamp is clamped.
	require.True(t, chat.Messages[1].SentAt.Equal(base))
	require.False(t, chat.Messages[2].SentAt.Before(chat.Messages[1].SentAt))

	require.NotNil(t, chat.LastMessageText)
	require.Equal(t, "third", *chat.LastMessageText)
	require.NotNil(t, chat.LastMessageAt)
	require.True(t, chat.LastMessageAt.Equal(chat.Messages[2].SentAt))
}

func TestRecomputeSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat, _, err := s.FindOrCreateChat(ctx, directChat("alice", "bob"))
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, chat.ID, &store.Message{ID: "a", SenderID: "alice", Text: "one"})
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, chat.ID, &store.Message{ID: "b", SenderID: "bob", Text: "two"})
	require.NoError(t, err)

	require.NoError(t, s.RemoveMessages(ctx, chat.ID, []string{"b"}))
	chat, err = s.RecomputeSummary(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, chat.Messages, 1)
	require.Equal(t, "one", *chat.LastMessageText)

	require.NoError(t, s.RemoveMessages(ctx, chat.ID, []string{"a"}))
	chat, err = s.RecomputeSummary(ctx, chat.ID)
	require.NoError(t, err)
	require.Empty(t, chat.Messages)
	require.Nil(t, chat.LastMessageText)
	require.Nil(t, chat.LastMessageAt)
}

func TestListDirectChats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older, _, err := s.FindOrCreateChat(ctx, directChat("alice", "bob"))
	require.NoError(t, err)
	newer, _, err := s.FindOrCreateChat(ctx, directChat("alice", "carol"))
	require.NoError(t, err)
	_, _, err = s.FindOrCreateChat(ctx, directChat("bob", "carol"))
	require.NoError(t, err)

	pub, _, err := s.FindOrCreateChat(ctx, &store.NewChat{ID: "pub", Key: store.ScopeKey(nil), IsPublic: true})
	require.NoError(t, err)
	_, err = s.AddParticipant(ctx, pub.ID, "alice")
	require.NoError(t, err)

	base := time.Now().UTC()
	s.now = func() time.Time { return base }
	_, err = s.AppendMessage(ctx, older.ID, &store.Message{ID: "x", SenderID: "bob", Text: "hi"})
	require.NoError(t, err)
	s.now = func() time.Time { return base.Add(time.Minute) }
	_, err = s.AppendMessage(ctx, newer.ID, &store.Message{ID: "y", SenderID: "carol", Text: "hey"})
	require.NoError(t, err)

	chats, err := s.ListDirectChats(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	require.Equal(t, newer.ID, chats[0].ID)
	require.Equal(t, older.ID, chats[1].ID)
	for _, c := range chats {
		require.Empty(t, c.Messages)
		require.True(t, c.HasParticipant("alice"))
	}
}

func TestIdentities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token := "device-1"
	require.NoError(t, s.SetDeviceToken(ctx, "admin-1", &token))
	require.NoError(t, s.UpsertIdentity(ctx, &store.Identity{
		ID: "admin-1", DisplayName: "Ada", Role: store.RoleAdmin, TenantScope: "REF42",
	}))
	require.NoError(t, s.UpsertIdentity(ctx, &store.Identity{
		ID: "user-1", DisplayName: "Bo", Role: store.RoleUser, TenantScope: "REF42",
	}))

	admin, err := s.GetIdentity(ctx, "admin-1")
	require.NoError(t, err)
	require.Equal(t, "Ada", admin.DisplayName)
	require.NotNil(t, admin.DeviceToken, "profile upsert must keep the device token")
	require.Equal(t, token, *admin.DeviceToken)

	owner, err := s.GetScopeOwner(ctx, "REF42")
	require.NoError(t, err)
	require.Equal(t, "admin-1", owner.ID)

	_, err = s.GetScopeOwner(ctx, "NOPE")
	require.True(t, errors.Is(err, store.ErrNotFound))

	require.NoError(t, s.SetDeviceToken(ctx, "admin-1", nil))
	admin, err = s.GetIdentity(ctx, "admin-1")
	require.NoError(t, err)
	require.Nil(t, admin.DeviceToken)

	list, err := s.ListIdentities(ctx, []string{"admin-1", "user-1", "ghost"})
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestListIdentitiesBeyondBindLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertIdentity(ctx, &store.Identity{ID: "u5", DisplayName: "Five", Role: store.RoleUser}))
	require.NoError(t, s.UpsertIdentity(ctx, &store.Identity{ID: "u33000", DisplayName: "Last", Role: store.RoleUser}))

	ids := make([]string, 33001)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%d", i)
	}
	list, err := s.ListIdentities(ctx, ids)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestNotificationsScopedToRecipient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateNotification(ctx, &store.Notification{
			ID:          fmt.Sprintf("n%d", i),
			RecipientID: "alice",
			Title:       "t",
			Body:        "b",
			Type:        store.NotificationTypeChat,
			Payload:     map[string]string{"chatId": "c1"},
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.CreateNotification(ctx, &store.Notification{
		ID: "other", RecipientID: "bob", Title: "t", Body: "b", Type: store.NotificationTypeTest,
	}))

	list, err := s.ListNotifications(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "n2", list[0].ID)
	require.Equal(t, "c1", list[0].Payload["chatId"])

	unread, err := s.CountUnread(ctx, "alice")
	require.NoError(t, err)
	require.EqualValues(t, 3, unread)

	_, err = s.MarkRead(ctx, "other", "alice")
	require.True(t, errors.Is(err, store.ErrNotFound), "cross-recipient mark must look like not found")

	n, err := s.MarkRead(ctx, "n0", "alice")
	require.NoError(t, err)
	require.True(t, n.IsRead)

	changed, err := s.MarkAllRead(ctx, "alice")
	require.NoError(t, err)
	require.EqualValues(t, 2, changed)

	require.True(t, errors.Is(s.DeleteNotification(ctx, "other", "alice"), store.ErrNotFound))
	require.NoError(t, s.DeleteNotification(ctx, "n1", "alice"))

	removed, err := s.DeleteAllNotifications(ctx, "alice")
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	bobUnread, err := s.CountUnread(ctx, "bob")
	require.NoError(t, err)
	require.EqualValues(t, 1, bobUnread)
}
