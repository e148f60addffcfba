package push

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds concurrent sends in FanOut.
const DefaultParallelism = 8

// FanOut calls send for every token with at most limit calls in flight and
// collects per-token outcomes. It is the SendMany of providers without a
// native multicast API.
func FanOut(ctx context.Context, tokens []string, limit int, send func(ctx context.Context, token string) error) *MulticastResult {
	if limit <= 0 {
		limit = DefaultParallelism
	}
	res := &MulticastResult{Results: make([]Result, len(tokens))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, token := range tokens {
		g.Go(func() error {
			// Recorded, never returned: one bad token must not cancel gctx.
			res.Results[i] = Result{Token: token, Err: send(gctx, token)}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range res.Results {
		if r.Err != nil {
			res.FailureCount++
		} else {
			res.SuccessCount++
		}
	}
	return res
}
