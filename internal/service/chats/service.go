package chats

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/myconnect-server/internal/core"
	"github.com/vovakirdan/myconnect-server/internal/metrics"
	"github.com/vovakirdan/myconnect-server/internal/service/notify"
	"github.com/vovakirdan/myconnect-server/internal/store"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultPublicFallbackName = "My Connect"
	DefaultMaxMessageLength   = 4000
)

// Config tunes chat behavior.
type Config struct {
	PublicFallbackName string
	MaxMessageLength   int // in runes
}

// Publisher receives real-time events. core.Hub implements it.
type Publisher interface {
	Publish(ev *core.Event)
}

// Notifier accepts dispatch work without blocking. notify.Dispatcher implements it.
type Notifier interface {
	Enqueue(job notify.Job) bool
}

// Service provides chat resolution and the send pipeline.
type Service struct {
	store    store.Store
	hub      Publisher
	notifier Notifier
	metrics  *metrics.Metrics
	log      *zerolog.Logger
	cfg      Config
	locks    *chatLocks
	newID    func() string
}

// New creates a chat service. hub and notifier may be nil.
func New(st store.Store, hub Publisher, notifier Notifier, cfg Config, logger *zerolog.Logger, m *metrics.Metrics) *Service {
	if cfg.PublicFallbackName == "" {
		cfg.PublicFallbackName = DefaultPublicFallbackName
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:    st,
		hub:      hub,
		notifier: notifier,
		metrics:  m,
		log:      logger,
		cfg:      cfg,
		locks:    &chatLocks{},
		newID:    uuid.NewString,
	}
}

// storeErr translates a store failure into the core taxonomy.
func storeErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrUpstreamUnavailable, err)
}

func (s *Service) publish(ev *core.Event) {
	if s.hub != nil {
		s.hub.Publish(ev)
	}
}

// ToCoreMessage converts a stored message for delivery.
func ToCoreMessage(chatID string, m store.Message) core.Message {
	return core.Message{
		ID:       m.ID,
		ChatID:   chatID,
		SenderID: m.SenderID,
		Text:     m.Text,
		SentAt:   m.SentAt,
	}
}

// SummaryOf extracts the last-message summary of a chat.
func SummaryOf(chat *store.Chat) core.Summary {
	return core.Summary{
		LastMessageText: chat.LastMessageText,
		LastMessageAt:   chat.LastMessageAt,
	}
}

const lockStripes = 64

// chatLocks serializes append+publish per chat without a global lock.
type chatLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *chatLocks) lock(chatID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(chatID))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
