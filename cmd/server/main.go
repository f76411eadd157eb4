package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/api"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/auth"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend/postgres"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend/redisfeed"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/config"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/email"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/microcopy"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/session"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.toml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration (auto-creates default if missing).
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Server.Env == "dev" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Device storage: preferences without a server column and diagnostics.
	db, err := storage.OpenDatabase(filepath.Join(cfg.Device.DataDir, "device.db"))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.RunMigrations(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	store := storage.NewStore(db)

	if cfg.Backend.DatabaseURL == "" {
		return errors.New("backend.database_url is required")
	}
	pool, err := postgres.CreateConnectionPool(ctx, cfg.Backend.DatabaseURL, int32(cfg.Backend.MaxConns))
	if err != nil {
		return err
	}
	defer pool.Close()

	records, feed, cleanup, err := openRealtime(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ring, err := auth.OpenKeyring(cfg.Device.KeyringService, filepath.Join(cfg.Device.DataDir, "keyring"))
	if err != nil {
		return err
	}
	tokens := auth.NewKeyringTokens(ring)

	verifier, err := auth.NewJWKSVerifier(ctx, cfg.Backend.JWKSURL(), logger)
	if err != nil {
		return fmt.Errorf("creating token verifier: %w", err)
	}
	identity := auth.NewSessionIdentity(tokens, verifier, logger)

	locale, err := microcopy.ParseLocale(cfg.Locale.Default)
	if err != nil {
		return err
	}

	sess, err := session.Open(ctx, session.Deps{
		Identity: identity,
		Records:  records,
		Realtime: feed,
		Device:   store,
		Logger:   logger,
	}, session.Options{
		Locale:           locale,
		PresenceInterval: cfg.Presence.Interval(),
		PresenceWindow:   cfg.Presence.Window(),
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	var mailer *email.Client
	if cfg.Email.APIKey != "" {
		mailer, err = email.New(email.Config{
			APIKey:     cfg.Email.APIKey,
			BaseURL:    cfg.Email.BaseURL,
			FromEmail:  cfg.Email.FromEmail,
			FromName:   cfg.Email.FromName,
			MaxRetries: cfg.Email.MaxRetries,
		}, logger)
		if err != nil {
			return fmt.Errorf("creating mail client: %w", err)
		}
	} else {
		slog.Warn("no mail API key configured, welcome emails are disabled")
	}

	router := api.NewRouter(api.Deps{
		Session:  sess,
		Store:    store,
		Tokens:   tokens,
		Verifier: verifier,
		Admin:    auth.NewAdminClient(cfg.Backend.URL, cfg.Backend.ServiceKey),
		Mailer:   mailer,
		Config:   cfg,
	})

	// The bridge only serves the local UI shell.
	srv := &http.Server{
		Addr:              fmt.Sprintf("localhost:%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", "http://"+srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
	}
	return nil
}

// openRealtime selects the change feed. With the redis driver, writes made
// here are published to the feed after they succeed.
func openRealtime(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (backend.RecordStore, backend.Realtime, func(), error) {
	pg := postgres.NewStore(pool, cfg.Backend.Schema, logger)

	switch cfg.Realtime.Driver {
	case config.DriverRedis:
		rdb, err := redisfeed.Dial(ctx, cfg.Realtime.RedisAddr)
		if err != nil {
			return nil, nil, nil, err
		}
		feed := redisfeed.NewFeed(rdb, cfg.Realtime.ChannelPrefix, logger)
		cleanup := func() {
			if err := rdb.Close(); err != nil {
				slog.Warn("failed to close redis client", "error", err)
			}
		}
		return redisfeed.Notifying(pg, feed, logger), feed, cleanup, nil

	default:
		if cfg.Realtime.InstallTriggers {
			err := postgres.InstallTriggers(ctx, pool, cfg.Backend.Schema,
				backend.CollectionNotifications, backend.CollectionMicrocopy)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("installing change triggers: %w", err)
			}
			slog.Info("change triggers installed", "schema", cfg.Backend.Schema)
		}
		return pg, postgres.NewListener(pool, logger), func() {}, nil
	}
}
