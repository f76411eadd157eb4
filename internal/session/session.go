// Package session wires the notification and preference components into
// one explicit context object with a shared lifecycle: Open mounts every
// component, Close tears them all down.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/haptics"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/microcopy"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/notifications"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/prefs"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/presence"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/push"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/storage"
)

// localeKey stores the chosen locale on the device.
const localeKey = "locale"

// Device is the local durable storage the session needs.
type Device interface {
	prefs.DeviceStorage
	GetDeviceValue(ctx context.Context, key string) (string, error)
	SetDeviceValue(ctx context.Context, key, value string) error
}

// Deps are the capabilities the session is built on.
type Deps struct {
	Identity backend.Identity
	Records  backend.RecordStore
	Realtime backend.Realtime
	Device   Device
	Vibrator haptics.Vibrator // nil without vibration hardware
	Platform push.Platform    // nil means push.Unsupported
	Logger   *slog.Logger
}

// Options tune the components.
type Options struct {
	Locale           microcopy.Locale
	PresenceInterval time.Duration
	PresenceWindow   time.Duration
}

// Session holds one instance of every component.
type Session struct {
	Prefs     *prefs.Store
	Haptics   *haptics.Engine
	Push      *push.Controller
	Unread    *notifications.Counter
	Microcopy *microcopy.Cache
	Presence  *presence.Estimator

	device Device
	logger *slog.Logger
}

// Open builds the components and mounts them concurrently. On failure
// everything already mounted is torn down again.
func Open(ctx context.Context, deps Deps, opts Options) (*Session, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	platform := deps.Platform
	if platform == nil {
		platform = push.Unsupported{}
	}

	locale := resolveLocale(ctx, deps.Device, opts.Locale, logger)

	s := &Session{
		device: deps.Device,
		logger: logger,
	}
	s.Prefs = prefs.NewStore(deps.Identity, deps.Records, deps.Device, logger)
	s.Haptics = haptics.NewEngine(deps.Vibrator, s.Prefs, logger)
	s.Push = push.NewController(platform, &PushSink{Identity: deps.Identity, Records: deps.Records}, logger)
	s.Unread = notifications.NewCounter(deps.Identity, deps.Records, deps.Realtime, logger)
	s.Microcopy = microcopy.NewCache(deps.Records, deps.Realtime, locale, logger)
	s.Presence = presence.NewEstimator(deps.Records, logger,
		presence.WithInterval(opts.PresenceInterval),
		presence.WithWindow(opts.PresenceWindow))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Unread.Mount(gctx) })
	g.Go(func() error { return s.Microcopy.Mount(gctx) })
	g.Go(func() error { return s.Presence.Start(gctx) })
	g.Go(func() error {
		s.Haptics.Load(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("mounting session: %w", err)
	}

	// The registration is held for the whole session.
	if s.Push.Permission() != push.PermissionUnsupported {
		if _, err := s.Push.Registration(ctx); err != nil {
			logger.Warn("push registration unavailable", "error", err)
		}
	}

	logger.Info("session opened", "locale", locale, "push", s.Push.Permission())
	return s, nil
}

func resolveLocale(ctx context.Context, device Device, fallback microcopy.Locale, logger *slog.Logger) microcopy.Locale {
	stored, err := device.GetDeviceValue(ctx, localeKey)
	if err == nil {
		if l, perr := microcopy.ParseLocale(stored); perr == nil {
			return l
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		logger.Warn("failed to read stored locale", "error", err)
	}
	if fallback == "" {
		return microcopy.DefaultLocale
	}
	return fallback
}

// Reload re-reads the state that belongs to the signed-in user after the
// identity changed. It returns the new unread count.
func (s *Session) Reload(ctx context.Context) int {
	s.Haptics.Load(ctx)
	n := s.Unread.Refresh(ctx)
	s.logger.Debug("session reloaded for identity change", "unread", n)
	return n
}

// SetLocale switches the microcopy locale and remembers it on the device.
// The switch takes effect even if persisting fails.
func (s *Session) SetLocale(ctx context.Context, locale microcopy.Locale) error {
	s.Microcopy.SetLocale(locale)
	if err := s.device.SetDeviceValue(ctx, localeKey, string(locale)); err != nil {
		return fmt.Errorf("persisting locale: %w", err)
	}
	return nil
}

// Close tears down every component and waits for pending preference
// writes.
func (s *Session) Close() error {
	err := errors.Join(
		s.Unread.Close(),
		s.Microcopy.Close(),
		s.Presence.Close(),
	)
	s.Haptics.Wait()
	if err != nil {
		s.logger.Warn("session closed with errors", "error", err)
		return err
	}
	s.logger.Info("session closed")
	return nil
}

// PushSink records new push subscriptions for the signed-in user.
type PushSink struct {
	Identity backend.Identity
	Records  backend.RecordStore
}

var _ push.SubscriptionSink = (*PushSink)(nil)

// SaveSubscription implements push.SubscriptionSink.
func (p *PushSink) SaveSubscription(ctx context.Context, sub *push.Subscription) error {
	user, ok := p.Identity.CurrentUser(ctx)
	if !ok {
		return prefs.ErrUnauthenticated
	}
	row := backend.Row{
		"user_id":  user.String(),
		"endpoint": sub.Endpoint,
		"p256dh":   sub.P256DH,
		"auth":     sub.Auth,
	}
	if err := p.Records.Upsert(ctx, backend.CollectionPushSubscriptions, row, "endpoint"); err != nil {
		return fmt.Errorf("saving push subscription: %w", err)
	}
	return nil
}
