package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-ch:
		if ev != nil {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(wait):
	}
}

// allowList admits joins listed as chatID -> userIDs.
type allowList map[string][]string

func (a allowList) Authorize(_ context.Context, chatID, userID string) error {
	users, ok := a[chatID]
	if !ok {
		return ErrNotFound
	}
	for _, u := range users {
		if u == userID {
			return nil
		}
	}
	return ErrForbidden
}

// memRelay connects hubs in one process.
type memRelay struct {
	mu   sync.Mutex
	subs []func(*Event)
}

func (r *memRelay) Publish(_ context.Context, ev *Event) error {
	r.mu.Lock()
	subs := append([]func(*Event){}, r.subs...)
	r.mu.Unlock()
	for _, deliver := range subs {
		cp := *ev
		deliver(&cp)
	}
	return nil
}

func (r *memRelay) Subscribe(ctx context.Context, deliver func(*Event)) error {
	r.mu.Lock()
	r.subs = append(r.subs, deliver)
	r.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}
