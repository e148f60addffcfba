package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/myconnect-server/internal/core"
	"github.com/vovakirdan/myconnect-server/internal/deadletter"
	"github.com/vovakirdan/myconnect-server/internal/metrics"
	"github.com/vovakirdan/myconnect-server/internal/push"
	"github.com/vovakirdan/myconnect-server/internal/store"
)

// Config tunes the background dispatcher.
type Config struct {
	Workers       int
	QueueSize     int
	PushTimeout   time.Duration
	LetterTimeout time.Duration // bounds one dead-letter write
}

// Job is one appended message waiting for dispatch.
type Job struct {
	Chat    *store.Chat
	Message store.Message
	ActorID string
}

// RecipientResult is the dispatch outcome for one participant.
type RecipientResult struct {
	RecipientID string `json:"recipient_id"`
	Pushed      bool   `json:"pushed"`
	Persisted   bool   `json:"persisted"`
}

// DispatchResult aggregates a NotifyParticipants call. The counts cover push
// attempts only; recipients without a device token are in neither.
type DispatchResult struct {
	PerRecipient []RecipientResult `json:"per_recipient"`
	SuccessCount int               `json:"success_count"`
	FailureCount int               `json:"failure_count"`
}

// Dispatcher pushes and persists notifications for chat participants.
type Dispatcher struct {
	store   store.Store
	push    push.Provider
	sink    deadletter.Sink
	metrics *metrics.Metrics
	log     *zerolog.Logger
	cfg     Config
	newID   func() string

	mu     sync.RWMutex
	closed bool
	jobs   chan Job
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Call Start to run the workers.
func NewDispatcher(st store.Store, provider push.Provider, sink deadletter.Sink, cfg Config, logger *zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 10 * time.Second
	}
	if cfg.LetterTimeout <= 0 {
		cfg.LetterTimeout = 2 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if sink == nil {
		sink = deadletter.NewLogSink(logger)
	}
	return &Dispatcher{
		store:   st,
		push:    provider,
		sink:    sink,
		metrics: m,
		log:     logger,
		cfg:     cfg,
		newID:   uuid.NewString,
		jobs:    make(chan Job, cfg.QueueSize),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.log.Info().Int("workers", d.cfg.Workers).Int("queue", d.cfg.QueueSize).Msg("dispatcher started")
}

// Enqueue hands a job to the workers without blocking. A rejected job is
// written to the dead-letter sink and false is returned.
func (d *Dispatcher) Enqueue(job Job) bool {
	if d.tryEnqueue(job) {
		return true
	}

	chatID := ""
	if job.Chat != nil {
		chatID = job.Chat.ID
	}
	d.deadLetter(context.Background(), deadletter.Letter{
		Reason:    deadletter.ReasonQueueFull,
		ChatID:    chatID,
		MessageID: job.Message.ID,
		Error:     "dispatch queue full or closed",
	})
	return false
}

func (d *Dispatcher) tryEnqueue(job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}
	select {
	case d.jobs <- job:
		d.metrics.SetDispatchQueueDepth(len(d.jobs))
		return true
	default:
		return false
	}
}

// Stop refuses new jobs and waits for queued ones to drain or ctx to end.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.metrics.SetDispatchQueueDepth(len(d.jobs))
		// Jobs outlive the request that produced them.
		if _, err := d.NotifyParticipants(context.Background(), job.Chat, job.Message, job.ActorID); err != nil {
			d.log.Error().Err(err).Str("message_id", job.Message.ID).Msg("dispatch failed")
		}
	}
}

// NotifyParticipants pushes to every other participant with a device token
// and persists one inbox record per other participant regardless of push outcome.
func (d *Dispatcher) NotifyParticipants(ctx context.Context, chat *store.Chat, msg store.Message, actorID string) (*DispatchResult, error) {
	if chat == nil {
		return nil, fmt.Errorf("%w: chat is required", core.ErrValidation)
	}
	recipients := lo.Without(lo.Uniq(chat.Participants), actorID)
	result := &DispatchResult{PerRecipient: make([]RecipientResult, 0, len(recipients))}
	if len(recipients) == 0 {
		return result, nil
	}

	identities, err := d.store.ListIdentities(ctx, append([]string{actorID}, recipients...))
	if err != nil {
		// The push leg needs tokens; the inbox leg does not.
		d.log.Warn().Err(err).Str("chat_id", chat.ID).Msg("identity lookup failed, skipping push")
		d.deadLetter(ctx, deadletter.Letter{Reason: deadletter.ReasonLookupFailed, ChatID: chat.ID, MessageID: msg.ID, Error: err.Error()})
		identities = nil
	}
	byID := lo.KeyBy(identities, func(i *store.Identity) string { return i.ID })

	senderName := ""
	if sender, ok := byID[actorID]; ok {
		senderName = sender.DisplayName
	}

	var title, body string
	if chat.IsPublic {
		title, body = GroupContent(chat.DisplayName, senderName, msg.Text)
	} else {
		title, body = DirectContent(senderName, msg.Text)
	}
	data := map[string]string{
		"type":        store.NotificationTypeChat,
		"chatId":      chat.ID,
		"messageId":   msg.ID,
		"senderId":    actorID,
		"isGroupChat": strconv.FormatBool(chat.IsPublic),
	}
	n := push.Notification{Title: title, Body: body, Data: data}

	pushed := d.pushAll(ctx, chat, msg, recipients, byID, n, result)

	for _, recipientID := range recipients {
		rr := RecipientResult{RecipientID: recipientID, Pushed: pushed[recipientID]}
		rr.Persisted = d.persist(ctx, &store.Notification{
			ID:          d.newID(),
			RecipientID: recipientID,
			Title:       title,
			Body:        body,
			Type:        store.NotificationTypeChat,
			Payload: map[string]string{
				"chatId":      chat.ID,
				"messageId":   msg.ID,
				"isGroupChat": data["isGroupChat"],
			},
		}, chat.ID, msg.ID)
		result.PerRecipient = append(result.PerRecipient, rr)
	}

	d.log.Debug().
		Str("chat_id", chat.ID).
		Str("message_id", msg.ID).
		Int("recipients", len(recipients)).
		Int("push_success", result.SuccessCount).
		Int("push_failure", result.FailureCount).
		Msg("dispatch complete")
	return result, nil
}

// pushAll sends n to the recipients holding a token and returns who received it.
func (d *Dispatcher) pushAll(ctx context.Context, chat *store.Chat, msg store.Message, recipients []string,
	byID map[string]*store.Identity, n push.Notification, result *DispatchResult) map[string]bool {
	pushed := make(map[string]bool, len(recipients))
	if d.push == nil {
		return pushed
	}

	eligible := lo.Filter(recipients, func(id string, _ int) bool {
		identity, ok := byID[id]
		return ok && identity.DeviceToken != nil && *identity.DeviceToken != ""
	})
	if len(eligible) == 0 {
		return pushed
	}
	tokens := lo.Map(eligible, func(id string, _ int) string { return *byID[id].DeviceToken })

	pushCtx, cancel := context.WithTimeout(ctx, d.cfg.PushTimeout)
	defer cancel()

	var outcomes []push.Result
	if !chat.IsPublic && len(eligible) == 1 {
		outcomes = []push.Result{{Token: tokens[0], Err: d.push.SendOne(pushCtx, tokens[0], n)}}
	} else {
		res, err := d.push.SendMany(pushCtx, tokens, n)
		if err != nil {
			res = push.FailAll(tokens, err)
		}
		outcomes = res.Results
	}

	for i, recipientID := range eligible {
		var err error
		if i < len(outcomes) {
			err = outcomes[i].Err
		} else {
			err = errors.New("missing push result")
		}
		if err != nil {
			result.FailureCount++
			d.log.Warn().Err(err).Str("chat_id", chat.ID).Str("recipient_id", recipientID).Msg("push failed")
			d.deadLetter(ctx, deadletter.Letter{
				Reason:      deadletter.ReasonPushFailed,
				ChatID:      chat.ID,
				MessageID:   msg.ID,
				RecipientID: recipientID,
				Title:       n.Title,
				Body:        n.Body,
				Error:       err.Error(),
			})
			continue
		}
		result.SuccessCount++
		pushed[recipientID] = true
	}
	d.metrics.PushResult(result.SuccessCount, result.FailureCount)
	return pushed
}

func (d *Dispatcher) persist(ctx context.Context, n *store.Notification, chatID, messageID string) bool {
	err := d.store.CreateNotification(ctx, n)
	d.metrics.NotificationPersisted(err == nil)
	if err == nil {
		return true
	}
	d.log.Error().Err(err).Str("recipient_id", n.RecipientID).Msg("persist notification failed")
	d.deadLetter(ctx, deadletter.Letter{
		Reason:      deadletter.ReasonPersistFailed,
		ChatID:      chatID,
		MessageID:   messageID,
		RecipientID: n.RecipientID,
		Title:       n.Title,
		Body:        n.Body,
		Error:       err.Error(),
		Payload:     n.Payload,
	})
	return false
}

func (d *Dispatcher) deadLetter(ctx context.Context, l deadletter.Letter) {
	if l.At.IsZero() {
		l.At = time.Now().UTC()
	}
	d.metrics.DeadLetter(l.Reason)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.LetterTimeout)
	defer cancel()
	if err := d.sink.Write(ctx, l); err != nil {
		d.log.Error().Err(err).Str("reason", l.Reason).Msg("dead letter write failed")
	}
}
