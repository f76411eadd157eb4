// Package backend describes the capability surface the companion consumes
// from the hosted backend: identity, a record store and a realtime change
// feed. Concrete implementations live in the postgres and redisfeed
// subpackages; backendtest provides an in-memory one for tests.
package backend

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Collection names used by the subsystem.
const (
	CollectionProfiles          = "profiles"
	CollectionNotifications     = "notifications"
	CollectionMicrocopy         = "microcopy"
	CollectionUserActivity      = "user_activity"
	CollectionPushSubscriptions = "push_subscriptions"
)

// ErrNotFound is returned by Update when no row matches the given id.
var ErrNotFound = errors.New("record not found")

// Row is a single record keyed by column name.
type Row map[string]any

// Identity resolves the signed-in user. The second return value is false
// when nobody is signed in, which is a normal state rather than an error.
type Identity interface {
	CurrentUser(ctx context.Context) (uuid.UUID, bool)
}

// RecordStore is the structured record storage of the backend.
type RecordStore interface {
	// Select returns all rows of collection matching the filter.
	Select(ctx context.Context, collection string, filter Filter) ([]Row, error)

	// Update applies patch to the row whose id column equals id.
	// It returns ErrNotFound when no row matches.
	Update(ctx context.Context, collection, id string, patch Row) error

	// Upsert inserts row, or updates the non-key columns of the existing row
	// when the conflict columns collide.
	Upsert(ctx context.Context, collection string, row Row, conflict ...string) error

	// Count returns the number of rows matching the filter.
	Count(ctx context.Context, collection string, filter Filter) (int, error)
}

// Channel is a live realtime subscription owned by whoever created it.
type Channel interface {
	// Unsubscribe stops delivery. Once it returns, onChange is never
	// invoked again for this channel.
	Unsubscribe() error
}

// Realtime notifies subscribers whenever any row of a collection changes.
// Notifications carry no payload.
type Realtime interface {
	Subscribe(ctx context.Context, collection string, onChange func()) (Channel, error)
}
