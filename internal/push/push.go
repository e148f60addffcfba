// Package push delivers device notifications through a pluggable provider.
package push

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the provider is short-circuited.
var ErrUnavailable = errors.New("push provider unavailable")

// Notification is the provider-neutral push payload.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Result is the outcome for one device token.
type Result struct {
	Token string
	Err   error
}

// MulticastResult aggregates the outcome of a SendMany call. Results follow
// the order of the tokens passed in.
type MulticastResult struct {
	SuccessCount int
	FailureCount int
	Results      []Result
}

// Provider sends notifications to device tokens.
type Provider interface {
	// SendOne pushes n to a single device.
	SendOne(ctx context.Context, token string, n Notification) error
	// SendMany pushes n to every token. A non-nil error means the call as a
	// whole failed; per-token failures are reported in the result.
	SendMany(ctx context.Context, tokens []string, n Notification) (*MulticastResult, error)
}

// FailAll builds a result marking every token failed with err.
func FailAll(tokens []string, err error) *MulticastResult {
	res := &MulticastResult{FailureCount: len(tokens), Results: make([]Result, len(tokens))}
	for i, token := range tokens {
		res.Results[i] = Result{Token: token, Err: err}
	}
	return res
}
