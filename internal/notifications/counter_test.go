package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend/backendtest"
)

func notification(user uuid.UUID, read bool) backend.Row {
	return backend.Row{
		"id":         uuid.NewString(),
		"user_id":    user.String(),
		"read":       read,
		"created_at": time.Now(),
	}
}

func mountCounter(t *testing.T, identity backend.Identity, b *backendtest.Backend) *Counter {
	t.Helper()
	c := NewCounter(identity, b, b, nil)
	if err := c.Mount(context.Background()); err != nil {
		t.Fatalf("Mount() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCounter_ExternalMarkReadDecrements(t *testing.T) {
	userA := uuid.New()
	b := backendtest.New()
	rows := []backend.Row{
		notification(userA, false),
		notification(userA, false),
		notification(userA, false),
	}
	b.Insert(backend.CollectionNotifications, rows...)

	c := mountCounter(t, backendtest.SignedIn(userA), b)
	if got := c.Count(); got != 3 {
		t.Fatalf("Count() after mount = %d, want 3", got)
	}

	// Another actor marks one as read; only the realtime event tells us.
	if err := b.Update(context.Background(), backend.CollectionNotifications,
		rows[0]["id"].(string), backend.Row{"read": true}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	backendtest.Eventually(t, func() bool { return c.Count() == 2 },
		"count = %d, want 2", c.Count())
}

func TestCounter_OtherUserChangeRefreshesButStaysCorrect(t *testing.T) {
	userA, userB := uuid.New(), uuid.New()
	b := backendtest.New()
	b.Insert(backend.CollectionNotifications, notification(userA, false))

	c := mountCounter(t, backendtest.SignedIn(userA), b)
	before := b.Calls("count")

	b.Insert(backend.CollectionNotifications, notification(userB, false), notification(userB, false))

	backendtest.Eventually(t, func() bool { return b.Calls("count") > before },
		"other user's change did not trigger a recount")
	backendtest.Eventually(t, func() bool { return c.Count() == 1 },
		"count = %d, want 1", c.Count())
}

func TestCounter_SignedOutNeverQueries(t *testing.T) {
	b := backendtest.New()
	b.Insert(backend.CollectionNotifications, notification(uuid.New(), false))

	c := mountCounter(t, backendtest.SignedOut(), b)
	b.Emit(backend.CollectionNotifications)

	backendtest.Never(t, 50*time.Millisecond, func() bool { return b.Calls("count") > 0 },
		"counted without a signed-in user")
	if got := c.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestCounter_FailureResetsToZero(t *testing.T) {
	user := uuid.New()
	b := backendtest.New()
	b.Insert(backend.CollectionNotifications, notification(user, false), notification(user, false))

	c := mountCounter(t, backendtest.SignedIn(user), b)
	if got := c.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}

	b.Fail("count", errors.New("gateway timeout"))
	if got := c.Refresh(context.Background()); got != 0 {
		t.Errorf("Count() after failure = %d, want 0", got)
	}

	b.Fail("count", nil)
	if got := c.Refresh(context.Background()); got != 2 {
		t.Errorf("Count() after recovery = %d, want 2", got)
	}
}

func TestCounter_NoWritesAfterClose(t *testing.T) {
	user := uuid.New()
	b := backendtest.New()
	b.Insert(backend.CollectionNotifications, notification(user, false))

	c := NewCounter(backendtest.SignedIn(user), b, b, nil)
	if err := c.Mount(context.Background()); err != nil {
		t.Fatalf("Mount() error: %v", err)
	}

	// A recount is in flight when the component is torn down.
	release := b.Hold()
	b.Insert(backend.CollectionNotifications, notification(user, false))
	backendtest.Eventually(t, func() bool { return b.Calls("count") == 2 },
		"event-driven recount never started")

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	release()

	if got := b.Subscribers(backend.CollectionNotifications); got != 0 {
		t.Errorf("Subscribers after Close = %d, want 0", got)
	}

	calls := b.Calls("count")
	b.Insert(backend.CollectionNotifications, notification(user, false))
	b.Emit(backend.CollectionNotifications)

	backendtest.Never(t, 50*time.Millisecond, func() bool {
		return c.Count() != 1 || b.Calls("count") != calls
	}, "state changed after Close: count=%d", c.Count())
}
