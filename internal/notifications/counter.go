// Package notifications tracks the signed-in user's unread notification
// count.
//
// Any change to the notifications collection, whoever it belongs to,
// triggers a full recount. This over-fetches but needs no delta reasoning
// and converges on the exact count after every event.
package notifications

import (
	"context"
	"log/slog"
	"sync"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/realtime"
)

// Counter holds a live unread count.
type Counter struct {
	identity backend.Identity
	records  backend.RecordStore
	logger   *slog.Logger
	refresh  *realtime.Refresher

	mu    sync.Mutex
	count int
}

// NewCounter creates a counter. Call Mount to start it.
func NewCounter(identity backend.Identity, records backend.RecordStore, feed backend.Realtime, logger *slog.Logger) *Counter {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Counter{
		identity: identity,
		records:  records,
		logger:   logger.With("component", "unread_counter"),
	}
	c.refresh = realtime.New(feed, backend.CollectionNotifications, c.load, c.logger)
	return c
}

// Mount subscribes to notification changes and loads the initial count.
func (c *Counter) Mount(ctx context.Context) error {
	return c.refresh.Start(ctx)
}

// Refresh recounts synchronously and returns the resulting count.
func (c *Counter) Refresh(ctx context.Context) int {
	c.refresh.Refresh(ctx)
	return c.Count()
}

// Count returns the last computed count.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Close unsubscribes. The count no longer changes once Close returns.
func (c *Counter) Close() error {
	return c.refresh.Close()
}

func (c *Counter) load(ctx context.Context, id uint64) {
	user, ok := c.identity.CurrentUser(ctx)
	if !ok {
		c.refresh.Commit(id, func() { c.set(0) })
		return
	}

	n, err := c.records.Count(ctx, backend.CollectionNotifications, backend.Where(
		backend.Eq("user_id", user.String()),
		backend.Eq("read", false),
	))
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("failed to count unread notifications", "error", err)
		}
		c.refresh.Commit(id, func() { c.set(0) })
		return
	}
	c.refresh.Commit(id, func() { c.set(n) })
}

func (c *Counter) set(n int) {
	if n < 0 {
		n = 0
	}
	c.mu.Lock()
	c.count = n
	c.mu.Unlock()
}
