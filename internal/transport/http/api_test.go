package http

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/myconnect-server/internal/proto"
	"github.com/vovakirdan/myconnect-server/internal/store"
)

func TestHealthAndMetrics(t *testing.T) {
	env := startTestServer(t, testConfig())

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = env.ts.Client().Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "myconnect_")
}

func TestAPIRequiresToken(t *testing.T) {
	env := startTestServer(t, testConfig())

	require.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/chats", "", nil, nil))
	require.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/chats", "not-a-jwt", nil, nil))
}

func TestDirectChatFlow(t *testing.T) {
	env := startTestServer(t, testConfig())
	alice := env.token(t, "alice", "Alice", store.RoleUser, "")
	bob := env.token(t, "bob", "Bob", store.RoleUser, "")
	mallory := env.token(t, "mallory", "Mallory", store.RoleUser, "")

	var chat ChatWithMessagesResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/chats/with/bob", alice, nil, &chat))
	require.ElementsMatch(t, []string{"alice", "bob"}, chat.Participants)
	require.Empty(t, chat.Messages)

	var again ChatWithMessagesResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/chats/with/alice", bob, nil, &again))
	require.Equal(t, chat.ID, again.ID)

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/chats/with/alice", alice, nil, nil))

	var msg proto.Message
	path := "/api/chats/" + chat.ID + "/messages"
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, path, alice, SendMessageRequest{Text: " hi "}, &msg))
	require.Equal(t, "hi", msg.Text)
	require.Equal(t, "alice", msg.SenderID)

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, path, alice, map[string]string{"text": "   "}, nil))
	require.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, path, mallory, SendMessageRequest{Text: "let me in"}, nil))
	require.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, path, mallory, nil, nil))
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/chats/nope/messages", alice, nil, nil))

	var withMessages ChatWithMessagesResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, path, bob, nil, &withMessages))
	require.Len(t, withMessages.Messages, 1)
	require.Equal(t, "hi", *withMessages.LastMessageText)

	var list []ChatResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/chats", bob, nil, &list))
	require.Len(t, list, 1)
	require.Equal(t, chat.ID, list[0].ID)
}

func TestPublicChatRoutes(t *testing.T) {
	env := startTestServer(t, testConfig())
	owner := env.token(t, "owner", "Temple of Light", store.RoleAdmin, "ref-1")
	member := env.token(t, "member", "Member", store.RoleUser, "ref-1")
	outsider := env.token(t, "outsider", "Outsider", store.RoleUser, "")

	// The owner's identity is synced by its first request.
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/chats", owner, nil, nil))

	var scoped ChatWithMessagesResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/chats/public", member, nil, &scoped))
	require.True(t, scoped.IsPublic)
	require.Equal(t, "Temple of Light", scoped.DisplayName)
	require.Equal(t, []string{"member"}, scoped.Participants)

	var def ChatWithMessagesResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/chats/public", outsider, nil, &def))
	require.Equal(t, "My Connect", def.DisplayName)
	require.NotEqual(t, scoped.ID, def.ID)

	var folded ChatWithMessagesResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/chats/public/default", member, nil, &folded))
	require.Equal(t, def.ID, folded.ID)
	require.ElementsMatch(t, []string{"outsider", "member"}, folded.Participants)

	// Anyone may post to a public chat and becomes a member by doing so.
	path := "/api/chats/" + scoped.ID + "/messages"
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, path, outsider, SendMessageRequest{Text: "hello"}, nil))
}

func TestNotificationsFlow(t *testing.T) {
	env := startTestServer(t, testConfig())
	alice := env.token(t, "alice", "Alice", store.RoleUser, "")
	bob := env.token(t, "bob", "Bob", store.RoleUser, "")

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodPut, "/api/me/device-token", bob, DeviceTokenRequest{Token: "bob-device-token"}, nil))
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, "/api/me/device-token", bob, map[string]string{}, nil))

	var chat ChatWithMessagesResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/chats/with/bob", alice, nil, &chat))
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/chats/"+chat.ID+"/messages", alice, SendMessageRequest{Text: "hi bob"}, nil))

	var inbox []NotificationResponse
	require.Eventually(t, func() bool {
		inbox = nil
		return env.do(t, http.MethodGet, "/api/notifications", bob, nil, &inbox) == http.StatusOK && len(inbox) == 1
	}, 2*time.Second, 20*time.Millisecond)

	n := inbox[0]
	require.Equal(t, "Alice", n.Title)
	require.Equal(t, "hi bob", n.Body)
	require.Equal(t, store.NotificationTypeChat, n.Type)
	require.Equal(t, chat.ID, n.Payload["chatId"])

	var count struct {
		Count int64 `json:"count"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/notifications/unread-count", bob, nil, &count))
	require.EqualValues(t, 1, count.Count)

	// Another recipient's notification looks missing.
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, "/api/notifications/"+n.ID+"/read", alice, nil, nil))
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/notifications/"+n.ID, alice, nil, nil))

	var read NotificationResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/notifications/"+n.ID+"/read", bob, nil, &read))
	require.True(t, read.IsRead)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/notifications/unread-count", bob, nil, &count))
	require.Zero(t, count.Count)

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/notifications?limit=abc", bob, nil, nil))

	var sent struct {
		Pushed    bool `json:"pushed"`
		Persisted bool `json:"persisted"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/notifications/test", bob, nil, &sent))
	require.True(t, sent.Pushed)
	require.True(t, sent.Persisted)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/notifications/test", alice, nil, nil))

	var deleted struct {
		Deleted int64 `json:"deleted"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/notifications", bob, nil, &deleted))
	require.EqualValues(t, 2, deleted.Deleted)

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/me/device-token", bob, nil, nil))
	identity, err := env.store.GetIdentity(context.Background(), "bob")
	require.NoError(t, err)
	require.Nil(t, identity.DeviceToken)
}

func TestSendMessageRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.PerSecond = 0.001
	cfg.RateLimit.Burst = 2
	env := startTestServer(t, cfg)
	alice := env.token(t, "alice", "Alice", store.RoleUser, "")
	bob := env.token(t, "bob", "Bob", store.RoleUser, "")

	var chat ChatWithMessagesResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/chats/with/bob", alice, nil, &chat))
	path := "/api/chats/" + chat.ID + "/messages"

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, path, alice, SendMessageRequest{Text: "msg"}, nil))
	}
	require.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodPost, path, alice, SendMessageRequest{Text: "msg"}, nil))

	// Buckets are per actor.
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, path, bob, SendMessageRequest{Text: strings.Repeat("b", 3)}, nil))
}
