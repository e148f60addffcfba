package push

import (
	"context"

	"github.com/rs/zerolog"
)

// LogProvider records pushes in the log instead of delivering them. It is
// used when no push backend is configured.
type LogProvider struct {
	log *zerolog.Logger
}

// NewLogProvider builds a log-only provider.
func NewLogProvider(logger *zerolog.Logger) *LogProvider {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LogProvider{log: logger}
}

func (p *LogProvider) SendOne(_ context.Context, token string, n Notification) error {
	p.log.Info().Str("token", redact(token)).Str("title", n.Title).Msg("push (log only)")
	return nil
}

func (p *LogProvider) SendMany(ctx context.Context, tokens []string, n Notification) (*MulticastResult, error) {
	return FanOut(ctx, tokens, DefaultParallelism, func(ctx context.Context, token string) error {
		return p.SendOne(ctx, token, n)
	}), nil
}

func redact(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

var _ Provider = (*LogProvider)(nil)
