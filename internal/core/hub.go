package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/myconnect-server/internal/metrics"
)

const defaultQueueSize = 1024

// Authorizer decides whether a user may subscribe to a chat.
type Authorizer interface {
	Authorize(ctx context.Context, chatID, userID string) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, chatID, userID string) error

func (f AuthorizerFunc) Authorize(ctx context.Context, chatID, userID string) error {
	return f(ctx, chatID, userID)
}

// Relay carries events between hub instances.
type Relay interface {
	// Publish sends a locally published event to the other instances.
	Publish(ctx context.Context, ev *Event) error
	// Subscribe delivers remote events until ctx is done.
	Subscribe(ctx context.Context, deliver func(*Event)) error
}

// Option configures a Hub.
type Option func(*Hub)

// WithRelay enables cross-instance fan-out.
func WithRelay(r Relay) Option {
	return func(h *Hub) { h.relay = r }
}

// WithMetrics records publish and drop counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithQueueSize sets the capacity of the publish queue.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithInstanceID overrides the generated instance id used to tag relayed events.
func WithInstanceID(id string) Option {
	return func(h *Hub) { h.instanceID = id }
}

type clientCommand struct {
	client *Client
	cmd    *Command
	err    error
}

// Hub owns chat subscriptions. All state is confined to the Run goroutine;
// other goroutines talk to it through channels.
type Hub struct {
	authz      Authorizer
	relay      Relay
	metrics    *metrics.Metrics
	log        *zerolog.Logger
	instanceID string
	queueSize  int

	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	events     chan *Event
	outbound   chan *Event

	rooms   map[string]*Room
	clients map[*Client]struct{}
}

// NewHub creates a hub. A nil authz admits every join.
func NewHub(authz Authorizer, logger *zerolog.Logger, opts ...Option) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	h := &Hub{
		authz:      authz,
		log:        logger,
		instanceID: uuid.NewString(),
		queueSize:  defaultQueueSize,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, 64),
		rooms:      make(map[string]*Room),
		clients:    make(map[*Client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.events = make(chan *Event, h.queueSize)
	h.outbound = make(chan *Event, h.queueSize)
	return h
}

// InstanceID identifies this hub among relayed instances.
func (h *Hub) InstanceID() string {
	return h.instanceID
}

// RegisterClient adds a client to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.register <- c
}

// UnregisterClient removes a client from every chat and closes its Events channel.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-c.done:
	}
}

// Publish enqueues an event for delivery without blocking. Events published
// from one goroutine are delivered in order; a full queue drops the event.
func (h *Hub) Publish(ev *Event) {
	if ev == nil {
		return
	}
	if ev.Origin == "" {
		ev.Origin = h.instanceID
	}

	select {
	case h.events <- ev:
		h.metrics.EventPublished(ev.Kind.String())
	default:
		h.metrics.EventDropped("queue_full")
		h.log.Warn().Str("chat_id", ev.ChatID).Str("kind", ev.Kind.String()).Msg("hub queue full, event dropped")
	}

	if h.relay == nil || ev.Origin != h.instanceID {
		return
	}
	select {
	case h.outbound <- ev:
	default:
		h.metrics.EventDropped("relay_full")
	}
}

// Run processes registrations, commands and events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	if h.relay != nil {
		go h.relayOut(ctx)
		go h.relayIn(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.removeClient(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			go h.pump(ctx, c)
		case c := <-h.unregister:
			h.removeClient(c)
		case cc := <-h.commands:
			h.handleCommand(cc)
		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

// pump forwards client commands to the hub loop. Join authorization runs
// here so store lookups never stall the loop.
func (h *Hub) pump(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			if cmd == nil {
				continue
			}
			cc := clientCommand{client: c, cmd: cmd}
			switch {
			case cmd.ChatID == "":
				cc.err = coreError(ErrCodeBadRequest, "chat_id is required")
			case cmd.Kind == CommandJoinChat && h.authz != nil:
				if err := h.authz.Authorize(ctx, cmd.ChatID, c.UserID); err != nil {
					cc.err = err
				}
			}
			select {
			case h.commands <- cc:
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) handleCommand(cc clientCommand) {
	c := cc.client
	if _, ok := h.clients[c]; !ok {
		return
	}
	if cc.err != nil {
		h.sendError(c, cc.cmd.ChatID, ToCoreError(cc.err))
		return
	}

	switch cc.cmd.Kind {
	case CommandJoinChat:
		h.join(c, cc.cmd.ChatID)
	case CommandLeaveChat:
		h.leave(c, cc.cmd.ChatID)
	default:
		h.sendError(c, cc.cmd.ChatID, coreError(ErrCodeBadRequest, fmt.Sprintf("unknown command %d", cc.cmd.Kind)))
	}
}

func (h *Hub) join(c *Client, chatID string) {
	room, ok := h.rooms[chatID]
	if !ok {
		room = NewRoom(chatID)
		h.rooms[chatID] = room
	}
	if !room.AddClient(c) {
		h.sendError(c, chatID, coreError(ErrCodeAlreadyJoined, "already joined"))
		return
	}
	c.chats[chatID] = struct{}{}
	h.send(c, &Event{Kind: EventJoined, ChatID: chatID})
}

func (h *Hub) leave(c *Client, chatID string) {
	room, ok := h.rooms[chatID]
	if !ok || !room.RemoveClient(c) {
		h.sendError(c, chatID, coreError(ErrCodeNotJoined, "not joined"))
		return
	}
	delete(c.chats, chatID)
	if room.Empty() {
		delete(h.rooms, chatID)
	}
	h.send(c, &Event{Kind: EventLeft, ChatID: chatID})
}

func (h *Hub) deliver(ev *Event) {
	room, ok := h.rooms[ev.ChatID]
	if !ok {
		return
	}
	if dropped := room.Broadcast(ev); dropped > 0 {
		h.log.Debug().Str("chat_id", ev.ChatID).Int("dropped", dropped).Msg("slow subscribers skipped")
		for i := 0; i < dropped; i++ {
			h.metrics.EventDropped("slow_consumer")
		}
	}
}

func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	for chatID := range c.chats {
		if room, ok := h.rooms[chatID]; ok {
			room.RemoveClient(c)
			if room.Empty() {
				delete(h.rooms, chatID)
			}
		}
	}
	delete(h.clients, c)
	close(c.done)
	close(c.Events)
}

func (h *Hub) send(c *Client, ev *Event) {
	select {
	case c.Events <- ev:
	default:
		h.metrics.EventDropped("slow_consumer")
	}
}

func (h *Hub) sendError(c *Client, chatID string, err *CoreError) {
	h.send(c, &Event{Kind: EventError, ChatID: chatID, Error: err})
}

func (h *Hub) relayOut(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.outbound:
			if err := h.relay.Publish(ctx, ev); err != nil {
				h.metrics.EventDropped("relay_error")
				h.log.Warn().Err(err).Str("chat_id", ev.ChatID).Msg("relay publish failed")
			}
		}
	}
}

func (h *Hub) relayIn(ctx context.Context) {
	err := h.relay.Subscribe(ctx, func(ev *Event) {
		if ev == nil || ev.Origin == h.instanceID {
			return
		}
		select {
		case h.events <- ev:
		default:
			h.metrics.EventDropped("queue_full")
		}
	})
	if err != nil && ctx.Err() == nil {
		h.log.Error().Err(err).Msg("relay subscription ended")
	}
}
