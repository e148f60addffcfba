package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/myconnect-server/internal/core"
	"github.com/vovakirdan/myconnect-server/internal/proto"
	"github.com/vovakirdan/myconnect-server/internal/store"
)

type wireOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func dialWS(ctx context.Context, t *testing.T, env *testEnv, token string) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, typ, chatID string) {
	t.Helper()
	data, err := json.Marshal(proto.ChatData{ChatID: chatID})
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: data}))
}

func read(ctx context.Context, t *testing.T, conn *websocket.Conn) wireOutbound {
	t.Helper()
	var out wireOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	return out
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	env := startTestServer(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws"
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketReceivesChatEvents(t *testing.T) {
	env := startTestServer(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := env.token(t, "alice", "Alice", store.RoleUser, "")
	bob := env.token(t, "bob", "Bob", store.RoleUser, "")
	mallory := env.token(t, "mallory", "Mallory", store.RoleUser, "")

	var chat ChatWithMessagesResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/chats/with/bob", alice, nil, &chat))

	bobConn := dialWS(ctx, t, env, bob)
	send(ctx, t, bobConn, proto.InboundTypeJoin, chat.ID)
	joined := read(ctx, t, bobConn)
	require.Equal(t, proto.OutboundTypeEvent, joined.Type)
	require.Equal(t, proto.EventJoined, joined.Event)

	malloryConn := dialWS(ctx, t, env, mallory)
	send(ctx, t, malloryConn, proto.InboundTypeJoin, chat.ID)
	denied := read(ctx, t, malloryConn)
	require.Equal(t, proto.OutboundTypeError, denied.Type)
	require.Equal(t, core.ErrCodeForbidden, denied.Error.Code)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/chats/"+chat.ID+"/messages", alice, SendMessageRequest{Text: "ping"}, nil))

	created := read(ctx, t, bobConn)
	require.Equal(t, proto.EventMessageCreated, created.Event)
	var payload proto.MessageCreatedData
	require.NoError(t, json.Unmarshal(created.Data, &payload))
	require.Equal(t, chat.ID, payload.ChatID)
	require.Equal(t, "ping", payload.Message.Text)
	require.Equal(t, "alice", payload.Message.SenderID)

	updated := read(ctx, t, bobConn)
	require.Equal(t, proto.EventSummaryUpdated, updated.Event)
	var summary proto.SummaryUpdatedData
	require.NoError(t, json.Unmarshal(updated.Data, &summary))
	require.Equal(t, "ping", *summary.Summary.LastMessageText)

	send(ctx, t, bobConn, proto.InboundTypeLeave, chat.ID)
	left := read(ctx, t, bobConn)
	require.Equal(t, proto.EventLeft, left.Event)
}

func TestWebSocketRejectsBadInbound(t *testing.T) {
	env := startTestServer(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, env, env.token(t, "alice", "Alice", store.RoleUser, ""))

	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: "msg"}))
	out := read(ctx, t, conn)
	require.Equal(t, proto.OutboundTypeError, out.Type)
	require.Equal(t, core.ErrCodeBadRequest, out.Error.Code)

	send(ctx, t, conn, proto.InboundTypeJoin, "")
	out = read(ctx, t, conn)
	require.Equal(t, core.ErrCodeBadRequest, out.Error.Code)

	send(ctx, t, conn, proto.InboundTypeJoin, "missing-chat")
	out = read(ctx, t, conn)
	require.Equal(t, core.ErrCodeNotFound, out.Error.Code)
	require.Equal(t, "missing-chat", out.Error.ChatID)
}
