// Package backendtest provides an in-memory backend for package tests. Every
// mutation emits a realtime change event for its collection, the way the
// hosted backend does.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend"
)

// ErrInjected is returned by operations after Fail has been called.
var ErrInjected = errors.New("injected backend failure")

// Backend is an in-memory RecordStore and Realtime.
type Backend struct {
	mu          sync.Mutex
	rows        map[string][]backend.Row
	subscribers map[string]map[int]func()
	nextSub     int
	failures    map[string]error
	calls       map[string]int
	gate        chan struct{}
}

var (
	_ backend.RecordStore = (*Backend)(nil)
	_ backend.Realtime    = (*Backend)(nil)
)

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		rows:        make(map[string][]backend.Row),
		subscribers: make(map[string]map[int]func()),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
	}
}

// Insert appends rows to collection and emits one change event.
func (b *Backend) Insert(collection string, rows ...backend.Row) {
	b.mu.Lock()
	for _, r := range rows {
		b.rows[collection] = append(b.rows[collection], cloneRow(r))
	}
	b.mu.Unlock()
	b.Emit(collection)
}

// Replace swaps the whole content of collection and emits one change event.
func (b *Backend) Replace(collection string, rows ...backend.Row) {
	b.mu.Lock()
	b.rows[collection] = nil
	for _, r := range rows {
		b.rows[collection] = append(b.rows[collection], cloneRow(r))
	}
	b.mu.Unlock()
	b.Emit(collection)
}

// Fail makes every later call of op ("select", "update", "upsert", "count")
// return err. A nil err clears the failure.
func (b *Backend) Fail(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, op)
		return
	}
	b.failures[op] = err
}

// Calls returns how many times op has been invoked.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Hold blocks every record operation until the returned release func is
// called or the caller's context ends.
func (b *Backend) Hold() (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.gate = ch
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.gate == ch {
				b.gate = nil
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions on collection.
func (b *Backend) Subscribers(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[collection])
}

// Emit delivers a change event to every subscriber of collection.
func (b *Backend) Emit(collection string) {
	b.mu.Lock()
	handlers := make([]func(), 0, len(b.subscribers[collection]))
	for _, fn := range b.subscribers[collection] {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// Rows returns a copy of the rows stored in collection.
func (b *Backend) Rows(collection string) []backend.Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]backend.Row, 0, len(b.rows[collection]))
	for _, r := range b.rows[collection] {
		out = append(out, cloneRow(r))
	}
	return out
}

// Select implements backend.RecordStore.
func (b *Backend) Select(ctx context.Context, collection string, filter backend.Filter) ([]backend.Row, error) {
	if err := b.enter(ctx, "select"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []backend.Row
	for _, r := range b.rows[collection] {
		if filter.Matches(r) {
			out = append(out, cloneRow(r))
		}
	}
	return out, nil
}

// Update implements backend.RecordStore.
func (b *Backend) Update(ctx context.Context, collection, id string, patch backend.Row) error {
	if err := b.enter(ctx, "update"); err != nil {
		return err
	}
	b.mu.Lock()
	found := false
	for _, r := range b.rows[collection] {
		if fmt.Sprint(r["id"]) != id {
			continue
		}
		for k, v := range patch {
			r[k] = v
		}
		found = true
	}
	b.mu.Unlock()

	if !found {
		return backend.ErrNotFound
	}
	b.Emit(collection)
	return nil
}

// Upsert implements backend.RecordStore.
func (b *Backend) Upsert(ctx context.Context, collection string, row backend.Row, conflict ...string) error {
	if err := b.enter(ctx, "upsert"); err != nil {
		return err
	}
	b.mu.Lock()
	match := make(backend.Filter, 0, len(conflict))
	for _, col := range conflict {
		match = append(match, backend.Eq(col, row[col]))
	}
	updated := false
	if len(match) > 0 {
		for _, r := range b.rows[collection] {
			if !match.Matches(r) {
				continue
			}
			for k, v := range row {
				r[k] = v
			}
			updated = true
		}
	}
	if !updated {
		b.rows[collection] = append(b.rows[collection], cloneRow(row))
	}
	b.mu.Unlock()

	b.Emit(collection)
	return nil
}

// Count implements backend.RecordStore.
func (b *Backend) Count(ctx context.Context, collection string, filter backend.Filter) (int, error) {
	if err := b.enter(ctx, "count"); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, r := range b.rows[collection] {
		if filter.Matches(r) {
			n++
		}
	}
	return n, nil
}

// Subscribe implements backend.Realtime.
func (b *Backend) Subscribe(_ context.Context, collection string, onChange func()) (backend.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failures["subscribe"]; err != nil {
		return nil, err
	}
	if b.subscribers[collection] == nil {
		b.subscribers[collection] = make(map[int]func())
	}
	b.nextSub++
	id := b.nextSub
	b.subscribers[collection][id] = onChange
	return &channel{b: b, collection: collection, id: id}, nil
}

type channel struct {
	b          *Backend
	collection string
	id         int
}

func (c *channel) Unsubscribe() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	delete(c.b.subscribers[c.collection], c.id)
	return nil
}

// enter records the call, waits on an active gate and applies failures.
func (b *Backend) enter(ctx context.Context, op string) error {
	b.mu.Lock()
	b.calls[op]++
	gate := b.gate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures[op]
}

func cloneRow(r backend.Row) backend.Row {
	out := make(backend.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Identity is a settable backend.Identity.
type Identity struct {
	mu   sync.Mutex
	user uuid.UUID
	ok   bool
}

// SignedIn returns an identity resolving to user.
func SignedIn(user uuid.UUID) *Identity {
	return &Identity{user: user, ok: true}
}

// SignedOut returns an identity with nobody signed in.
func SignedOut() *Identity {
	return &Identity{}
}

// CurrentUser implements backend.Identity.
func (i *Identity) CurrentUser(context.Context) (uuid.UUID, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.user, i.ok
}

// SignIn switches the identity to user.
func (i *Identity) SignIn(user uuid.UUID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.user, i.ok = user, true
}

// SignOut clears the identity.
func (i *Identity) SignOut() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.user, i.ok = uuid.Nil, false
}

// Eventually polls cond until it holds or two seconds pass.
func Eventually(t *testing.T, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out: "+format, args...)
}

// Never asserts cond stays false for the given duration.
func Never(t *testing.T, d time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			t.Fatalf(format, args...)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
