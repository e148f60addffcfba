package chats

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/myconnect-server/internal/core"
	"github.com/vovakirdan/myconnect-server/internal/service/notify"
	"github.com/vovakirdan/myconnect-server/internal/store"
	"github.com/vovakirdan/myconnect-server/internal/store/sqlite"
)

type recordingHub struct {
	mu     sync.Mutex
	events []*core.Event
}

func (h *recordingHub) Publish(ev *core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHub) kinds() []core.EventKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]core.EventKind, 0, len(h.events))
	for _, ev := range h.events {
		out = append(out, ev.Kind)
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	jobs   []notify.Job
	reject bool
}

func (n *recordingNotifier) Enqueue(job notify.Job) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
	return !n.reject
}

type testService struct {
	*Service
	store    *sqlite.SQLiteStore
	hub      *recordingHub
	notifier *recordingNotifier
}

func newTestService(t *testing.T, cfg Config) *testService {
	t.Helper()
	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	hub := &recordingHub{}
	notifier := &recordingNotifier{}
	return &testService{
		Service:  New(st, hub, notifier, cfg, nil, nil),
		store:    st,
		hub:      hub,
		notifier: notifier,
	}
}

func strPtr(s string) *string { return &s }

func TestResolveDirectConcurrentIsSingleChat(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()

	const workers = 10
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			chat, err := s.ResolveDirect(ctx, a, b)
			errs[i] = err
			if err == nil {
				ids[i] = chat.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
	}

	chat, err := s.store.GetChat(ctx, ids[0])
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice", "bob"}, chat.Participants)
	require.False(t, chat.IsPublic)
}

func TestResolveDirectValidation(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()

	_, err := s.ResolveDirect(ctx, "alice", "alice")
	require.True(t, errors.Is(err, core.ErrValidation))

	_, err = s.ResolveDirect(ctx, "alice", "  ")
	require.True(t, errors.Is(err, core.ErrValidation))
}

func TestResolveScopedPublicDisplayName(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()
	require.NoError(t, s.store.UpsertIdentity(ctx, &store.Identity{
		ID: "owner", DisplayName: "Temple of Light", Role: store.RoleAdmin, TenantScope: "ref-1",
	}))

	owned, err := s.ResolveScopedPublic(ctx, "alice", strPtr("ref-1"))
	require.NoError(t, err)
	require.True(t, owned.IsPublic)
	require.Equal(t, "Temple of Light", owned.DisplayName)
	require.Equal(t, []string{"alice"}, owned.Participants)

	orphan, err := s.ResolveScopedPublic(ctx, "alice", strPtr("ref-unknown"))
	require.NoError(t, err)
	require.Equal(t, DefaultPublicFallbackName, orphan.DisplayName)
	require.NotEqual(t, owned.ID, orphan.ID)

	def, err := s.ResolveScopedPublic(ctx, "alice", nil)
	require.NoError(t, err)
	require.Equal(t, DefaultPublicFallbackName, def.DisplayName)
	require.Nil(t, def.TenantScope)

	blank, err := s.ResolveScopedPublic(ctx, "bob", strPtr("  "))
	require.NoError(t, err)
	require.Equal(t, def.ID, blank.ID, "a blank scope is the default scope")
	require.Equal(t, []string{"alice", "bob"}, blank.Participants)
}

func TestResolveScopedPublicMembershipIsIdempotent(t *testing.T) {
	s := newTestService(t, Config{PublicFallbackName: "Community"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		chat, err := s.ResolveScopedPublic(ctx, "alice", nil)
		require.NoError(t, err)
		require.Equal(t, []string{"alice"}, chat.Participants)
		require.Equal(t, "Community", chat.DisplayName)
	}
}

func TestAuthorize(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()

	direct, err := s.ResolveDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = s.Authorize(ctx, direct.ID, "bob")
	require.NoError(t, err)

	_, err = s.Authorize(ctx, direct.ID, "mallory")
	require.True(t, errors.Is(err, core.ErrForbidden))

	_, err = s.Authorize(ctx, "missing", "alice")
	require.True(t, errors.Is(err, core.ErrNotFound))

	_, err = s.Authorize(ctx, "", "alice")
	require.True(t, errors.Is(err, core.ErrValidation))

	public, err := s.ResolveScopedPublic(ctx, "alice", nil)
	require.NoError(t, err)
	joined, err := s.Authorize(ctx, public.ID, "mallory")
	require.NoError(t, err)
	require.True(t, joined.HasParticipant("mallory"))
}

func TestSendMessagePipeline(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()

	chat, err := s.ResolveDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	msg, updated, err := s.SendMessage(ctx, chat.ID, "alice", "  hello  ")
	require.NoError(t, err)
	require.Equal(t, "hello", msg.Text)
	require.False(t, msg.SentAt.IsZero())
	require.NotNil(t, updated.LastMessageText)
	require.Equal(t, "hello", *updated.LastMessageText)

	require.Equal(t, []core.EventKind{core.EventMessageCreated, core.EventSummaryUpdated}, s.hub.kinds())
	created := s.hub.events[0]
	require.Equal(t, chat.ID, created.ChatID)
	require.Equal(t, msg.ID, created.Message.ID)
	require.Equal(t, "hello", *s.hub.events[1].Summary.LastMessageText)

	require.Len(t, s.notifier.jobs, 1)
	require.Equal(t, "alice", s.notifier.jobs[0].ActorID)
	require.Equal(t, msg.ID, s.notifier.jobs[0].Message.ID)
}

func TestSendMessageRejectedByNotifierStillSucceeds(t *testing.T) {
	s := newTestService(t, Config{})
	s.notifier.reject = true
	ctx := context.Background()

	chat, err := s.ResolveDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	_, _, err = s.SendMessage(ctx, chat.ID, "bob", "hi")
	require.NoError(t, err)
	require.Len(t, s.notifier.jobs, 1)
}

func TestSendMessageRejections(t *testing.T) {
	s := newTestService(t, Config{MaxMessageLength: 5})
	ctx := context.Background()

	chat, err := s.ResolveDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	_, _, err = s.SendMessage(ctx, chat.ID, "alice", "   ")
	require.True(t, errors.Is(err, core.ErrValidation))

	_, _, err = s.SendMessage(ctx, chat.ID, "alice", strings.Repeat("é", 6))
	require.True(t, errors.Is(err, core.ErrValidation))

	_, _, err = s.SendMessage(ctx, chat.ID, "mallory", "hi")
	require.True(t, errors.Is(err, core.ErrForbidden))

	require.Empty(t, s.hub.kinds())
	require.Empty(t, s.notifier.jobs)

	stored, err := s.store.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Empty(t, stored.Messages)
}

func TestRemoveMessagesRecomputesSummary(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()

	chat, err := s.ResolveDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	first, _, err := s.SendMessage(ctx, chat.ID, "alice", "one")
	require.NoError(t, err)
	second, _, err := s.SendMessage(ctx, chat.ID, "bob", "two")
	require.NoError(t, err)

	updated, err := s.RemoveMessages(ctx, chat.ID, []string{second.ID})
	require.NoError(t, err)
	require.Equal(t, "one", *updated.LastMessageText)

	updated, err = s.RemoveMessages(ctx, chat.ID, []string{first.ID})
	require.NoError(t, err)
	require.Nil(t, updated.LastMessageText)
	require.Nil(t, updated.LastMessageAt)

	kinds := s.hub.kinds()
	require.Equal(t, core.EventSummaryUpdated, kinds[len(kinds)-1])
	require.Nil(t, s.hub.events[len(kinds)-1].Summary.LastMessageText)
}

func TestListDirectOmitsMessages(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()

	older, err := s.ResolveDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	newer, err := s.ResolveDirect(ctx, "alice", "carol")
	require.NoError(t, err)
	_, err = s.ResolveScopedPublic(ctx, "alice", nil)
	require.NoError(t, err)

	_, _, err = s.SendMessage(ctx, older.ID, "bob", "ping")
	require.NoError(t, err)

	list, err := s.ListDirect(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, older.ID, list[0].ID)
	require.Equal(t, newer.ID, list[1].ID)
	for _, c := range list {
		require.Nil(t, c.Messages)
	}
}
