// Package push drives the notification permission flow and push
// subscription lifecycle.
//
// Permission is an explicit state machine:
//
//	default ──request──▶ granted | denied
//	granted, denied, unsupported: terminal
//
// A request from a terminal state leaves the state unchanged.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrUnsupported is returned by platforms without a notification API.
var ErrUnsupported = errors.New("notifications not supported")

// SubscriptionSink records newly created subscriptions with the backend.
type SubscriptionSink interface {
	SaveSubscription(ctx context.Context, sub *Subscription) error
}

// transitions lists the states a permission request may move to.
var transitions = map[Permission][]Permission{
	PermissionDefault: {PermissionGranted, PermissionDenied, PermissionDefault},
}

func allowed(from, to Permission) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Controller owns the session's registration handle.
type Controller struct {
	platform Platform
	sink     SubscriptionSink
	logger   *slog.Logger

	request  sync.Mutex // serializes permission prompts
	register sync.Mutex // serializes registration acquisition

	mu           sync.Mutex
	permission   Permission
	registration Registration
}

// NewController reads the platform permission once. sink may be nil.
func NewController(platform Platform, sink SubscriptionSink, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	perm := PermissionUnsupported
	if platform.Supported() {
		perm = platform.Permission()
	}
	return &Controller{
		platform:   platform,
		sink:       sink,
		logger:     logger.With("component", "push"),
		permission: perm,
	}
}

// Permission returns the current state.
func (c *Controller) Permission() Permission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permission
}

// RequestPermission prompts the user when the state is default and reports
// whether notifications are granted afterwards. It never returns an error:
// platform failures collapse to false.
func (c *Controller) RequestPermission(ctx context.Context) bool {
	c.request.Lock()
	defer c.request.Unlock()

	from := c.Permission()
	switch from {
	case PermissionGranted:
		return true
	case PermissionDenied, PermissionUnsupported:
		c.logger.Debug("permission request rejected", "state", from)
		return false
	}

	to, err := c.platform.RequestPermission(ctx)
	if err != nil {
		c.logger.Warn("permission request failed", "error", err)
		return false
	}
	if !allowed(from, to) {
		c.logger.Warn("platform reported invalid permission transition", "from", from, "to", to)
		return false
	}

	c.mu.Lock()
	c.permission = to
	c.mu.Unlock()

	c.logger.Info("notification permission changed", "from", from, "to", to)
	return to == PermissionGranted
}

// Registration returns the session's registration, acquiring it on first
// use. A failed acquisition is not cached, so a later call retries.
func (c *Controller) Registration(ctx context.Context) (Registration, error) {
	c.register.Lock()
	defer c.register.Unlock()

	c.mu.Lock()
	reg, perm := c.registration, c.permission
	c.mu.Unlock()

	if reg != nil {
		return reg, nil
	}
	if perm == PermissionUnsupported {
		return nil, ErrUnsupported
	}

	reg, err := c.platform.Register(ctx)
	if err != nil {
		return nil, fmt.Errorf("registering worker: %w", err)
	}
	reg.OnUpdate(func() {
		// No update flow exists yet; the event is only observed.
		c.logger.Info("worker update found")
	})

	c.mu.Lock()
	c.registration = reg
	c.mu.Unlock()
	return reg, nil
}

// Invalidate drops the cached registration so the next call acquires a new
// one.
func (c *Controller) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registration = nil
}

// SubscribeToPush returns the registration's subscription, creating one if
// none exists. It returns nil when no registration is available or the
// platform fails.
func (c *Controller) SubscribeToPush(ctx context.Context) *Subscription {
	reg, err := c.Registration(ctx)
	if err != nil {
		c.logger.Debug("no registration for push subscription", "error", err)
		return nil
	}

	existing, err := reg.Subscription(ctx)
	if err != nil {
		c.logger.Warn("failed to read push subscription", "error", err)
		return nil
	}
	if existing != nil {
		return existing
	}

	sub, err := reg.Subscribe(ctx)
	if err != nil {
		c.logger.Warn("failed to create push subscription", "error", err)
		return nil
	}

	if c.sink != nil {
		if err := c.sink.SaveSubscription(ctx, sub); err != nil {
			c.logger.Warn("failed to record push subscription", "error", err)
		}
	}
	return sub
}

// ShowLocalNotification displays a notification when permission is granted.
// It goes through the registration when one exists, so the notification is
// managed by the platform's notification center, and falls back to the bare
// platform primitive otherwise. It reports whether anything was shown.
func (c *Controller) ShowLocalNotification(title string, opts NotificationOptions) bool {
	c.mu.Lock()
	perm := c.permission
	reg := c.registration
	c.mu.Unlock()

	if perm != PermissionGranted {
		return false
	}

	var err error
	if reg != nil {
		err = reg.ShowNotification(title, opts)
	} else {
		err = c.platform.Notify(title, opts)
	}
	if err != nil {
		c.logger.Warn("failed to show notification", "title", title, "error", err)
		return false
	}
	return true
}
