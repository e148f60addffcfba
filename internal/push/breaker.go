package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures the circuit breaker around a provider.
type BreakerSettings struct {
	MaxFailures uint32        // consecutive failures that open the circuit
	Interval    time.Duration // closed-state counter reset period
	Timeout     time.Duration // open-state duration before a half-open probe
}

// Breaker guards a Provider with a circuit breaker. While open every call
// fails fast with ErrUnavailable.
type Breaker struct {
	next Provider
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next.
func NewBreaker(next Provider, settings BreakerSettings, logger *zerolog.Logger) *Breaker {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	st := gobreaker.Settings{
		Name:        "push",
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info().Str("name", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state")
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// State reports the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) SendOne(ctx context.Context, token string, n Notification) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.SendOne(ctx, token, n)
	})
	return translate(err)
}

// SendMany counts a call as failed only when no token was delivered.
func (b *Breaker) SendMany(ctx context.Context, tokens []string, n Notification) (*MulticastResult, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		res, err := b.next.SendMany(ctx, tokens, n)
		if err != nil {
			return nil, err
		}
		if len(tokens) > 0 && res.SuccessCount == 0 {
			return res, fmt.Errorf("all %d tokens failed", len(tokens))
		}
		return res, nil
	})
	if res, ok := out.(*MulticastResult); ok && res != nil {
		return res, nil
	}
	return nil, translate(err)
}

func translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

var _ Provider = (*Breaker)(nil)
