// Package fcm implements push.Provider on Firebase Cloud Messaging.
package fcm

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/vovakirdan/myconnect-server/internal/push"
)

// ClickAction is the intent the mobile client registers for notification taps.
const ClickAction = "FLUTTER_NOTIFICATION_CLICK"

// maxMulticastTokens is the FCM limit per multicast request.
const maxMulticastTokens = 500

// Config selects the Firebase project and credentials.
type Config struct {
	ProjectID       string
	CredentialsFile string
}

// Provider sends through an FCM messaging client.
type Provider struct {
	client *messaging.Client
}

// New initializes a Firebase app and its messaging client.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init messaging client: %w", err)
	}
	return &Provider{client: client}, nil
}

func (p *Provider) SendOne(ctx context.Context, token string, n push.Notification) error {
	if token == "" {
		return errors.New("empty device token")
	}
	if _, err := p.client.Send(ctx, buildMessage(token, n)); err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}

func (p *Provider) SendMany(ctx context.Context, tokens []string, n push.Notification) (*push.MulticastResult, error) {
	res := &push.MulticastResult{Results: make([]push.Result, 0, len(tokens))}
	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := min(start+maxMulticastTokens, len(tokens))
		batch := tokens[start:end]

		resp, err := p.client.SendEachForMulticast(ctx, buildMulticast(batch, n))
		if err != nil {
			if start == 0 {
				return nil, fmt.Errorf("fcm multicast: %w", err)
			}
			failed := push.FailAll(batch, err)
			res.FailureCount += failed.FailureCount
			res.Results = append(res.Results, failed.Results...)
			continue
		}
		mergeBatch(res, batch, resp)
	}
	return res, nil
}

func mergeBatch(res *push.MulticastResult, batch []string, resp *messaging.BatchResponse) {
	for i, token := range batch {
		var err error
		if i < len(resp.Responses) && resp.Responses[i] != nil && !resp.Responses[i].Success {
			err = resp.Responses[i].Error
			if err == nil {
				err = errors.New("fcm: delivery failed")
			}
		}
		if err != nil {
			res.FailureCount++
		} else {
			res.SuccessCount++
		}
		res.Results = append(res.Results, push.Result{Token: token, Err: err})
	}
}

func androidConfig() *messaging.AndroidConfig {
	return &messaging.AndroidConfig{
		Priority: "high",
		Notification: &messaging.AndroidNotification{
			ChannelID:   "default",
			Sound:       "default",
			ClickAction: ClickAction,
		},
	}
}

func apnsConfig() *messaging.APNSConfig {
	return &messaging.APNSConfig{
		Payload: &messaging.APNSPayload{
			Aps: &messaging.Aps{Sound: "default"},
		},
	}
}

func buildMessage(token string, n push.Notification) *messaging.Message {
	return &messaging.Message{
		Token:        token,
		Notification: &messaging.Notification{Title: n.Title, Body: n.Body},
		Data:         n.Data,
		Android:      androidConfig(),
		APNS:         apnsConfig(),
	}
}

func buildMulticast(tokens []string, n push.Notification) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Tokens:       tokens,
		Notification: &messaging.Notification{Title: n.Title, Body: n.Body},
		Data:         n.Data,
		Android:      androidConfig(),
		APNS:         apnsConfig(),
	}
}

var _ push.Provider = (*Provider)(nil)
