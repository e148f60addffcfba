// Package redis relays hub events between server instances over Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/myconnect-server/internal/core"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "myconnect:events"

// Relay implements core.Relay.
type Relay struct {
	client  *redis.Client
	channel string
	log     *zerolog.Logger
}

// Connect dials addr and verifies the connection with a ping.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// New wraps a connected client.
func New(client *redis.Client, channel string, logger *zerolog.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Relay{client: client, channel: channel, log: logger}
}

// Publish sends ev to every subscribed instance, including this one.
func (r *Relay) Publish(ctx context.Context, ev *core.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe delivers decoded events until ctx is done. Undecodable payloads are skipped.
func (r *Relay) Subscribe(ctx context.Context, deliver func(*core.Event)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev core.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.Warn().Err(err).Msg("skip malformed relay payload")
				continue
			}
			deliver(&ev)
		}
	}
}

// Close closes the underlying client.
func (r *Relay) Close() error {
	return r.client.Close()
}

var _ core.Relay = (*Relay)(nil)
