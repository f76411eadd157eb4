package redisfeed

import (
	"context"
	"log/slog"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend"
)

// Publisher announces collection changes.
type Publisher interface {
	Publish(ctx context.Context, collection, op string) error
}

// NotifyingStore wraps a RecordStore and publishes a change event after
// every successful write, so writes made through the companion reach
// subscribers even when the database itself does not announce them.
type NotifyingStore struct {
	backend.RecordStore
	pub    Publisher
	logger *slog.Logger
}

// Notifying wraps store.
func Notifying(store backend.RecordStore, pub Publisher, logger *slog.Logger) *NotifyingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyingStore{RecordStore: store, pub: pub, logger: logger.With("component", "redis_feed")}
}

// Update implements backend.RecordStore.
func (s *NotifyingStore) Update(ctx context.Context, collection, id string, patch backend.Row) error {
	if err := s.RecordStore.Update(ctx, collection, id, patch); err != nil {
		return err
	}
	s.publish(ctx, collection, "UPDATE")
	return nil
}

// Upsert implements backend.RecordStore.
func (s *NotifyingStore) Upsert(ctx context.Context, collection string, row backend.Row, conflict ...string) error {
	if err := s.RecordStore.Upsert(ctx, collection, row, conflict...); err != nil {
		return err
	}
	s.publish(ctx, collection, "UPSERT")
	return nil
}

// publish failures are logged only; the write already succeeded.
func (s *NotifyingStore) publish(ctx context.Context, collection, op string) {
	if err := s.pub.Publish(ctx, collection, op); err != nil {
		s.logger.Warn("failed to publish change", "collection", collection, "error", err)
	}
}
