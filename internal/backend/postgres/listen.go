package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend"
)

// ChannelPrefix prefixes the notification channel of each collection.
const ChannelPrefix = "realtime"

// ChannelName returns the LISTEN channel for collection.
func ChannelName(collection string) string {
	return ChannelPrefix + ":" + collection
}

// Listener is a backend.Realtime fed by LISTEN/NOTIFY. Each subscription
// holds one pooled connection for its lifetime. The tables need a row
// trigger that calls pg_notify on the collection's channel; see
// TriggerSQL.
type Listener struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ backend.Realtime = (*Listener)(nil)

// NewListener creates a listener on pool.
func NewListener(pool *pgxpool.Pool, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{pool: pool, logger: logger.With("component", "pg_listener")}
}

// Subscribe implements backend.Realtime.
func (l *Listener) Subscribe(ctx context.Context, collection string, onChange func()) (backend.Channel, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}

	channel := ChannelName(collection)
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}

	lctx, cancel := context.WithCancel(context.Background())
	sub := &listenChannel{cancel: cancel, done: make(chan struct{})}
	logger := l.logger.With("channel", channel)

	go func() {
		defer close(sub.done)
		pc := conn.Conn()
		// The wait was interrupted mid-protocol, so the connection cannot go
		// back to the pool.
		defer func() { _ = conn.Hijack().Close(context.Background()) }()

		for {
			n, err := pc.WaitForNotification(lctx)
			if err != nil {
				if lctx.Err() == nil {
					logger.Warn("realtime listen stopped", "error", err)
				}
				return
			}
			logger.Debug("change notification", "payload", n.Payload)
			onChange()
		}
	}()

	logger.Debug("subscribed")
	return sub, nil
}

type listenChannel struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func (c *listenChannel) Unsubscribe() error {
	c.once.Do(c.cancel)
	<-c.done
	return nil
}

// TriggerSQL returns the statements that make changes to collection notify
// its channel.
func TriggerSQL(schema, collection string) []string {
	if schema == "" {
		schema = "public"
	}
	fn := pgx.Identifier{schema, "notify_realtime_change"}.Sanitize()
	trigger := pgx.Identifier{collection + "_realtime_notify"}.Sanitize()
	table := pgx.Identifier{schema, collection}.Sanitize()

	return []string{
		strings.Join([]string{
			"CREATE OR REPLACE FUNCTION " + fn + "() RETURNS trigger AS $$",
			"BEGIN",
			"  PERFORM pg_notify('" + ChannelPrefix + ":' || TG_TABLE_NAME, TG_OP);",
			"  RETURN NULL;",
			"END;",
			"$$ LANGUAGE plpgsql",
		}, "\n"),
		"DROP TRIGGER IF EXISTS " + trigger + " ON " + table,
		"CREATE TRIGGER " + trigger + " AFTER INSERT OR UPDATE OR DELETE ON " + table +
			" FOR EACH ROW EXECUTE FUNCTION " + fn + "()",
	}
}

// InstallTriggers runs TriggerSQL for every collection in one transaction.
func InstallTriggers(ctx context.Context, pool *pgxpool.Pool, schema string, collections ...string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin trigger install: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range collections {
		for _, stmt := range TriggerSQL(schema, c) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("install %s trigger: %w", c, err)
			}
		}
	}
	return tx.Commit(ctx)
}
