// Package realtime keeps component state in sync with a backend collection.
//
// A Refresher loads once when started and reloads on every change event of
// its collection. Events carry no payload, so every event triggers a full
// reload. Each load gets a monotonically increasing id; a completion older
// than the newest applied one is discarded, and nothing is applied once
// Close has returned.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend"
)

// LoadFunc reloads state. It must publish its result through Commit with the
// id it was given.
type LoadFunc func(ctx context.Context, id uint64)

// Refresher owns one realtime channel and the reloads it triggers.
type Refresher struct {
	feed       backend.Realtime
	collection string
	load       LoadFunc
	logger     *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	channel backend.Channel
	started bool
	closed  bool
	issued  uint64
	applied uint64
	wg      sync.WaitGroup
}

// New creates a refresher for collection. It does nothing until Start.
func New(feed backend.Realtime, collection string, load LoadFunc, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Refresher{
		feed:       feed,
		collection: collection,
		load:       load,
		logger:     logger.With("collection", collection),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the collection and performs the initial load before
// returning. Subscribing happens first so no change is missed between the
// two.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("starting %s refresher: already closed", r.collection)
	}
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.mu.Unlock()

	ch, err := r.feed.Subscribe(ctx, r.collection, r.onChange)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", r.collection, err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = ch.Unsubscribe()
		return nil
	}
	r.channel = ch
	r.mu.Unlock()

	r.Refresh(ctx)
	return nil
}

// Refresh performs a reload synchronously on the caller's goroutine.
func (r *Refresher) Refresh(ctx context.Context) {
	id, ok := r.next()
	if !ok {
		return
	}
	r.load(ctx, id)
}

// Commit runs apply when the load with the given id is still current: the
// refresher is open and no newer load has been applied. It reports whether
// apply ran.
func (r *Refresher) Commit(id uint64, apply func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if id < r.applied {
		r.logger.Debug("discarding stale refresh", "id", id, "applied", r.applied)
		return false
	}
	apply()
	r.applied = id
	return true
}

// Closed reports whether Close has been called.
func (r *Refresher) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close unsubscribes, cancels in-flight reloads and waits for them to
// return. After Close, Commit never applies again.
func (r *Refresher) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ch := r.channel
	r.channel = nil
	r.mu.Unlock()

	var err error
	if ch != nil {
		if uerr := ch.Unsubscribe(); uerr != nil {
			err = fmt.Errorf("unsubscribing from %s: %w", r.collection, uerr)
		}
	}
	r.cancel()
	r.wg.Wait()
	return err
}

// onChange runs on the feed's goroutine; it only schedules a reload.
func (r *Refresher) onChange() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.issued++
	id := r.issued
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.load(r.ctx, id)
	}()
}

func (r *Refresher) next() (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, false
	}
	r.issued++
	return r.issued, true
}
