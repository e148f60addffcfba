package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/myconnect-server/internal/app"
	"github.com/vovakirdan/myconnect-server/internal/auth"
	"github.com/vovakirdan/myconnect-server/internal/config"
	applog "github.com/vovakirdan/myconnect-server/internal/log"
	"github.com/vovakirdan/myconnect-server/internal/store"
)

type rootFlags struct {
	configPath string
	addr       string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "myconnect-server",
		Short:         "Chat and notification backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), flags)
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&flags.addr, "addr", "", "HTTP listen address (overrides config)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (overrides config)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), flags)
		},
	})
	root.AddCommand(newTokenCmd(flags))
	return root
}

// loadConfig resolves config with CLI flags taking precedence.
func loadConfig(flags *rootFlags) (config.Config, *zerolog.Logger, error) {
	bootLogger := applog.New("info")
	cfg, path, err := config.Load(bootLogger, flags.configPath)
	if err != nil {
		return cfg, bootLogger, err
	}
	if flags.addr != "" {
		cfg.Server.Addr = flags.addr
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}

	logger := applog.NewWithFormat(cfg.Log.Level, cfg.Log.Format)
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}

func serve(ctx context.Context, flags *rootFlags) error {
	cfg, logger, err := loadConfig(flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	logger.Info().Str("addr", cfg.Server.Addr).Str("store", cfg.Store.Driver).Msg("starting myconnect server")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newTokenCmd(flags *rootFlags) *cobra.Command {
	var (
		actor auth.Actor
		role  string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development JWT for the configured secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(flags)
			if err != nil {
				return err
			}
			jwtCfg := &auth.JWTConfig{
				Secret:   []byte(cfg.JWT.Secret),
				Issuer:   cfg.JWT.Issuer,
				Audience: cfg.JWT.Audience,
				TTL:      cfg.JWT.TTL,
			}
			if ttl > 0 {
				jwtCfg.TTL = ttl
			}

			actor.Role = store.Role(role)
			token, err := auth.NewService(nil, jwtCfg).IssueToken(actor)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&actor.ID, "id", "", "user id (required)")
	cmd.Flags().StringVar(&actor.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(store.RoleUser), "role: user, admin or super-admin")
	cmd.Flags().StringVar(&actor.TenantScope, "scope", "", "tenant scope (referral id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to config)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
