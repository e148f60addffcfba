package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/myconnect-server/internal/auth"
	"github.com/vovakirdan/myconnect-server/internal/config"
	"github.com/vovakirdan/myconnect-server/internal/core"
	"github.com/vovakirdan/myconnect-server/internal/metrics"
	"github.com/vovakirdan/myconnect-server/internal/push"
	"github.com/vovakirdan/myconnect-server/internal/service/chats"
	"github.com/vovakirdan/myconnect-server/internal/service/notify"
	"github.com/vovakirdan/myconnect-server/internal/store"
	"github.com/vovakirdan/myconnect-server/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	store *sqlite.SQLiteStore
	auth  *auth.Service
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Server.Addr = ":0"
	cfg.RateLimit.PerSecond = 1000
	cfg.RateLimit.Burst = 1000
	return cfg
}

// startTestServer wires the full stack over an in-memory store.
func startTestServer(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	m := metrics.New()

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})

	dispatcher := notify.NewDispatcher(st, push.NewLogProvider(nil), nil, notify.Config{Workers: 2}, &logger, m)
	dispatcher.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = dispatcher.Stop(ctx)
	})

	var chatService *chats.Service
	hub := core.NewHub(core.AuthorizerFunc(func(ctx context.Context, chatID, userID string) error {
		return chatService.CanJoin(ctx, chatID, userID)
	}), &logger, core.WithMetrics(m))
	chatService = chats.New(st, hub, dispatcher, chats.Config{}, &logger, m)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	server := NewServer(Deps{
		Auth:       authService,
		Chats:      chatService,
		Dispatcher: dispatcher,
		Inbox:      notify.NewInbox(st),
		Identities: st,
		Hub:        hub,
		Metrics:    m,
	}, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st, auth: authService}
}

func (e *testEnv) token(t *testing.T, id, name string, role store.Role, scope string) string {
	t.Helper()
	token, err := e.auth.IssueToken(auth.Actor{ID: id, DisplayName: name, Role: role, TenantScope: scope})
	require.NoError(t, err)
	return token
}

// do sends a request and decodes a JSON response into out when out is non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}
