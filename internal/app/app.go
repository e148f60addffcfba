package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/myconnect-server/internal/auth"
	"github.com/vovakirdan/myconnect-server/internal/config"
	"github.com/vovakirdan/myconnect-server/internal/core"
	"github.com/vovakirdan/myconnect-server/internal/deadletter"
	dlkafka "github.com/vovakirdan/myconnect-server/internal/deadletter/kafka"
	"github.com/vovakirdan/myconnect-server/internal/metrics"
	"github.com/vovakirdan/myconnect-server/internal/push"
	"github.com/vovakirdan/myconnect-server/internal/push/fcm"
	redisrelay "github.com/vovakirdan/myconnect-server/internal/relay/redis"
	"github.com/vovakirdan/myconnect-server/internal/service/chats"
	"github.com/vovakirdan/myconnect-server/internal/service/notify"
	"github.com/vovakirdan/myconnect-server/internal/store"
	"github.com/vovakirdan/myconnect-server/internal/store/mongo"
	"github.com/vovakirdan/myconnect-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/myconnect-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	dispatcher      *notify.Dispatcher
	store           store.Store
	sink            deadletter.Sink
	relay           *redisrelay.Relay
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{shutdownTimeout: cfg.Server.ShutdownTimeout, log: logger}
	ok := false
	defer func() {
		if !ok {
			a.cleanup()
		}
	}()

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	a.store = st

	m := metrics.New()

	var hubOpts []core.Option
	hubOpts = append(hubOpts, core.WithMetrics(m))
	if cfg.Redis.Addr != "" {
		client, err := redisrelay.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("init relay: %w", err)
		}
		a.relay = redisrelay.New(client, cfg.Redis.Channel, logger)
		hubOpts = append(hubOpts, core.WithRelay(a.relay))
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis relay enabled")
	}

	provider, err := newPushProvider(ctx, cfg.Push, logger)
	if err != nil {
		return nil, err
	}

	a.sink = newDeadLetterSink(cfg.Kafka, logger)

	a.dispatcher = notify.NewDispatcher(st, provider, a.sink, notify.Config{
		Workers:     cfg.Dispatch.Workers,
		QueueSize:   cfg.Dispatch.QueueSize,
		PushTimeout: cfg.Push.Timeout,
	}, logger, m)

	var chatService *chats.Service
	a.hub = core.NewHub(core.AuthorizerFunc(func(ctx context.Context, chatID, userID string) error {
		return chatService.CanJoin(ctx, chatID, userID)
	}), logger, hubOpts...)
	chatService = chats.New(st, a.hub, a.dispatcher, chats.Config{
		PublicFallbackName: cfg.Chat.PublicFallbackName,
		MaxMessageLength:   cfg.Chat.MaxMessageLength,
	}, logger, m)

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWT.Secret),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      cfg.JWT.TTL,
	})

	a.server = transporthttp.NewServer(transporthttp.Deps{
		Auth:       authService,
		Chats:      chatService,
		Dispatcher: a.dispatcher,
		Inbox:      notify.NewInbox(st),
		Identities: st,
		Hub:        a.hub,
		Metrics:    m,
	}, cfg, logger)

	ok = true
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zerolog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "mongo":
		st, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("init mongo store: %w", err)
		}
		logger.Info().Str("db", cfg.MongoDB).Msg("mongo store initialized")
		return st, nil
	default:
		st, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		logger.Info().Str("db_path", cfg.Path).Msg("database initialized")
		return st, nil
	}
}

func newPushProvider(ctx context.Context, cfg config.PushConfig, logger *zerolog.Logger) (push.Provider, error) {
	var provider push.Provider
	switch cfg.Provider {
	case "fcm":
		p, err := fcm.New(ctx, fcm.Config{ProjectID: cfg.ProjectID, CredentialsFile: cfg.CredentialsFile})
		if err != nil {
			return nil, fmt.Errorf("init push provider: %w", err)
		}
		provider = p
		logger.Info().Str("project_id", cfg.ProjectID).Msg("fcm push enabled")
	default:
		provider = push.NewLogProvider(logger)
		logger.Info().Msg("push provider is log-only")
	}
	return push.NewBreaker(provider, push.BreakerSettings{
		MaxFailures: cfg.BreakerMaxFailures,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
	}, logger), nil
}

func newDeadLetterSink(cfg config.KafkaConfig, logger *zerolog.Logger) deadletter.Sink {
	if len(cfg.Brokers) == 0 {
		return deadletter.NewLogSink(logger)
	}
	logger.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("kafka dead-letter sink enabled")
	return dlkafka.New(cfg.Brokers, cfg.Topic, logger)
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go a.hub.Run(hubCtx)
	a.dispatcher.Start()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.shutdown()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.shutdown()
			return err
		}

		a.shutdown()
		return <-serverErr
	}
}

// shutdown drains queued dispatch jobs, then releases resources.
func (a *App) shutdown() {
	drainCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	if err := a.dispatcher.Stop(drainCtx); err != nil {
		a.log.Warn().Err(err).Msg("dispatch queue not drained")
	}
	a.cleanup()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close dead-letter sink")
		}
	}
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close relay")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
