// Package presence estimates how many users are currently active by polling
// the activity collection over a sliding time window.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend"
)

const (
	DefaultInterval = 2 * time.Minute
	DefaultWindow   = 15 * time.Minute
)

// pollTimeout bounds a single count query.
const pollTimeout = 30 * time.Second

// Estimator holds the latest online count. There is no smoothing; the value
// may go down between polls, and a failed poll shows 0.
type Estimator struct {
	records  backend.RecordStore
	interval time.Duration
	window   time.Duration
	logger   *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	count    int
	lastPoll time.Time
	running  bool
	closed   bool
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(e *Estimator) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithWindow sets how far back activity counts as online.
func WithWindow(d time.Duration) Option {
	return func(e *Estimator) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Estimator) { e.now = now }
}

// NewEstimator creates an estimator. Call Start to begin polling.
func NewEstimator(records backend.RecordStore, logger *slog.Logger, opts ...Option) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Estimator{
		records:  records,
		interval: DefaultInterval,
		window:   DefaultWindow,
		logger:   logger.With("component", "presence"),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start polls once before returning, then keeps polling on the interval
// until Close.
func (e *Estimator) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running || e.closed {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.wg.Add(1)
	e.mu.Unlock()

	e.Poll(ctx)

	go func() {
		defer e.wg.Done()
		e.loop()
	}()
	return nil
}

func (e *Estimator) loop() {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.Poll(e.ctx)
		}
	}
}

// Poll runs one count query and publishes the result.
func (e *Estimator) Poll(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	// A Close during the query cancels it.
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()

	since := e.now().Add(-e.window).UTC()
	n, err := e.records.Count(ctx, backend.CollectionUserActivity,
		backend.Where(backend.Gte("last_activity_at", since)))
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("failed to count active users", "error", err)
		}
		n = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return e.count
	}
	e.count = max(n, 0)
	e.lastPoll = e.now()
	return e.count
}

// Count returns the last polled count.
func (e *Estimator) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// LastPoll returns when the count was last published.
func (e *Estimator) LastPoll() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPoll
}

// Interval returns the poll interval.
func (e *Estimator) Interval() time.Duration { return e.interval }

// Window returns the activity window.
func (e *Estimator) Window() time.Duration { return e.window }

// Close stops the ticker and waits for an in-flight poll to return.
func (e *Estimator) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	return nil
}
