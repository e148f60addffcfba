package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/myconnect-server/internal/core"
	"github.com/vovakirdan/myconnect-server/internal/deadletter"
	"github.com/vovakirdan/myconnect-server/internal/push"
	"github.com/vovakirdan/myconnect-server/internal/store"
)

// Notify pushes a non-chat notification to one identity when it has a device
// token and persists the inbox record. Only a persistence failure is an error.
func (d *Dispatcher) Notify(ctx context.Context, recipientID, title, body, typ string, payload map[string]string) (*RecipientResult, error) {
	if recipientID == "" || title == "" {
		return nil, fmt.Errorf("%w: recipient and title are required", core.ErrValidation)
	}
	if typ == "" {
		typ = store.NotificationTypeOther
	}

	rr := &RecipientResult{RecipientID: recipientID}
	identity, err := d.store.GetIdentity(ctx, recipientID)
	switch {
	case err == nil:
		rr.Pushed = d.pushOne(ctx, identity, push.Notification{Title: title, Body: body, Data: withType(payload, typ)}) == nil
	case errors.Is(err, store.ErrNotFound):
	default:
		d.log.Warn().Err(err).Str("recipient_id", recipientID).Msg("identity lookup failed, skipping push")
	}

	n := &store.Notification{
		ID:          d.newID(),
		RecipientID: recipientID,
		Title:       title,
		Body:        body,
		Type:        typ,
		Payload:     payload,
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		d.metrics.NotificationPersisted(false)
		return rr, fmt.Errorf("persist notification: %w: %w", core.ErrUpstreamUnavailable, err)
	}
	d.metrics.NotificationPersisted(true)
	rr.Persisted = true
	return rr, nil
}

// SendTest pushes a test notification to the actor's own device and records it.
func (d *Dispatcher) SendTest(ctx context.Context, actorID string) (*RecipientResult, error) {
	identity, err := d.store.GetIdentity(ctx, actorID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load identity: %w: %w", core.ErrUpstreamUnavailable, err)
	}
	if identity == nil || identity.DeviceToken == nil {
		return nil, fmt.Errorf("%w: no device token registered", core.ErrValidation)
	}

	now := time.Now().UTC()
	title := "Test Notification"
	body := "This is a test notification sent at " + now.Format(time.RFC1123)
	payload := map[string]string{"timestamp": now.Format(time.RFC3339)}

	rr := &RecipientResult{RecipientID: actorID}
	pushErr := d.pushOne(ctx, identity, push.Notification{Title: title, Body: body, Data: withType(payload, store.NotificationTypeTest)})
	rr.Pushed = pushErr == nil

	if err := d.store.CreateNotification(ctx, &store.Notification{
		ID:          d.newID(),
		RecipientID: actorID,
		Title:       title,
		Body:        body,
		Type:        store.NotificationTypeTest,
		Payload:     payload,
	}); err != nil {
		d.log.Error().Err(err).Str("recipient_id", actorID).Msg("persist test notification failed")
	} else {
		rr.Persisted = true
	}

	if pushErr != nil {
		return rr, fmt.Errorf("test push: %w: %w", core.ErrUpstreamUnavailable, pushErr)
	}
	return rr, nil
}

func (d *Dispatcher) pushOne(ctx context.Context, identity *store.Identity, n push.Notification) error {
	if d.push == nil {
		return errors.New("no push provider")
	}
	if identity.DeviceToken == nil || *identity.DeviceToken == "" {
		return errors.New("no device token")
	}

	pushCtx, cancel := context.WithTimeout(ctx, d.cfg.PushTimeout)
	defer cancel()

	err := d.push.SendOne(pushCtx, *identity.DeviceToken, n)
	if err != nil {
		d.metrics.PushResult(0, 1)
		d.log.Warn().Err(err).Str("recipient_id", identity.ID).Msg("push failed")
		d.deadLetter(ctx, deadletter.Letter{
			Reason:      deadletter.ReasonPushFailed,
			RecipientID: identity.ID,
			Title:       n.Title,
			Body:        n.Body,
			Error:       err.Error(),
		})
		return err
	}
	d.metrics.PushResult(1, 0)
	return nil
}

func withType(payload map[string]string, typ string) map[string]string {
	data := make(map[string]string, len(payload)+1)
	for k, v := range payload {
		data[k] = v
	}
	data["type"] = typ
	return data
}
