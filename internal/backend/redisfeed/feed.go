// Package redisfeed implements the backend realtime feed over Redis pub/sub,
// for deployments where change events are fanned out through Redis rather
// than database notifications.
package redisfeed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend"
)

// DefaultPrefix prefixes collection channels when none is configured.
const DefaultPrefix = "tribe"

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Feed is a backend.Realtime over Redis channels named <prefix>:<collection>.
type Feed struct {
	rdb    *goredis.Client
	prefix string
	logger *slog.Logger
}

var _ backend.Realtime = (*Feed)(nil)

// NewFeed creates a feed. An empty prefix uses DefaultPrefix.
func NewFeed(rdb *goredis.Client, prefix string, logger *slog.Logger) *Feed {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{rdb: rdb, prefix: prefix, logger: logger.With("component", "redis_feed")}
}

// Channel returns the pub/sub channel of collection.
func (f *Feed) Channel(collection string) string {
	return f.prefix + ":" + collection
}

// Publish announces a change to collection. The payload names the
// operation for log lines only; subscribers reload regardless.
func (f *Feed) Publish(ctx context.Context, collection, op string) error {
	if err := f.rdb.Publish(ctx, f.Channel(collection), op).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", collection, err)
	}
	return nil
}

// Subscribe implements backend.Realtime.
func (f *Feed) Subscribe(ctx context.Context, collection string, onChange func()) (backend.Channel, error) {
	name := f.Channel(collection)
	sub := f.rdb.Subscribe(ctx, name)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", name, err)
	}

	c := &channel{sub: sub, stop: make(chan struct{}), done: make(chan struct{})}
	logger := f.logger.With("channel", name)

	go func() {
		defer close(c.done)
		msgs := sub.Channel()
		for {
			select {
			case <-c.stop:
				return
			case m, ok := <-msgs:
				if !ok || m == nil {
					logger.Warn("redis subscription closed")
					return
				}
				logger.Debug("change notification", "payload", m.Payload)
				onChange()
			}
		}
	}()

	return c, nil
}

type channel struct {
	sub  *goredis.PubSub
	once sync.Once
	stop chan struct{}
	done chan struct{}
	err  error
}

func (c *channel) Unsubscribe() error {
	c.once.Do(func() {
		close(c.stop)
		<-c.done
		c.err = c.sub.Close()
	})
	return c.err
}
