package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/myconnect-server/internal/deadletter"
)

func TestEncodeStampsTime(t *testing.T) {
	raw, err := encode(deadletter.Letter{
		Reason:      deadletter.ReasonPushFailed,
		ChatID:      "c1",
		RecipientID: "u2",
		Error:       "timeout",
	})
	require.NoError(t, err)

	var decoded deadletter.Letter
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, deadletter.ReasonPushFailed, decoded.Reason)
	require.Equal(t, "u2", decoded.RecipientID)
	require.False(t, decoded.At.IsZero())
}

func TestWriteDoesNotWaitForBrokers(t *testing.T) {
	// Nothing listens on this port; an async writer still returns at once.
	sink := New([]string{"127.0.0.1:1"}, "myconnect.deadletters", nil)
	t.Cleanup(func() { _ = sink.Close() })

	require.True(t, sink.writer.Async)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, sink.Write(ctx, deadletter.Letter{Reason: deadletter.ReasonQueueFull, ChatID: "c1"}))
	require.Less(t, time.Since(start), 500*time.Millisecond)
}
