// Package microcopy caches the bilingual UI strings stored in the microcopy
// collection and resolves them for the active locale.
package microcopy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/realtime"
)

// Locale selects which text of an entry is shown.
type Locale string

const (
	LocaleDE Locale = "de"
	LocaleEN Locale = "en"
)

// DefaultLocale is the primary locale.
const DefaultLocale = LocaleDE

// ParseLocale accepts a locale tag such as "en" or "de-AT".
func ParseLocale(s string) (Locale, error) {
	tag := strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	switch Locale(tag) {
	case LocaleDE, LocaleEN:
		return Locale(tag), nil
	}
	return "", fmt.Errorf("unsupported locale %q", s)
}

// Entry is one microcopy record.
type Entry struct {
	Key    string `json:"key"`
	TextDE string `json:"text_de"`
	TextEN string `json:"text_en"`
}

// Text returns the entry's text for locale, which may be empty.
func (e Entry) Text(locale Locale) string {
	if locale == LocaleEN {
		return e.TextEN
	}
	return e.TextDE
}

// Cache holds the latest complete snapshot of the collection.
type Cache struct {
	records backend.RecordStore
	logger  *slog.Logger
	refresh *realtime.Refresher

	mu      sync.RWMutex
	entries map[string]Entry
	locale  Locale
}

// NewCache creates an empty cache using locale. Call Mount to load it.
func NewCache(records backend.RecordStore, feed backend.Realtime, locale Locale, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if locale == "" {
		locale = DefaultLocale
	}
	c := &Cache{
		records: records,
		logger:  logger.With("component", "microcopy"),
		entries: map[string]Entry{},
		locale:  locale,
	}
	c.refresh = realtime.New(feed, backend.CollectionMicrocopy, c.load, c.logger)
	return c
}

// Mount subscribes to microcopy changes and performs the first load.
func (c *Cache) Mount(ctx context.Context) error {
	return c.refresh.Start(ctx)
}

// Refresh reloads the collection synchronously.
func (c *Cache) Refresh(ctx context.Context) {
	c.refresh.Refresh(ctx)
}

// Close unsubscribes and waits for in-flight loads.
func (c *Cache) Close() error {
	return c.refresh.Close()
}

// Text resolves key for the active locale. An entry with empty text falls
// through to fallback, and a missing fallback to the key itself, so the
// result is never empty for a non-empty key.
func (c *Cache) Text(key string, fallback ...string) string {
	c.mu.RLock()
	entry, ok := c.entries[key]
	locale := c.locale
	c.mu.RUnlock()

	if ok {
		if s := entry.Text(locale); s != "" {
			return s
		}
	}
	if len(fallback) > 0 && fallback[0] != "" {
		return fallback[0]
	}
	return key
}

// Locale returns the active locale.
func (c *Cache) Locale() Locale {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.locale
}

// SetLocale switches the active locale. Text re-resolves against the cached
// entries immediately.
func (c *Cache) SetLocale(locale Locale) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locale = locale
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) load(ctx context.Context, id uint64) {
	rows, err := c.records.Select(ctx, backend.CollectionMicrocopy, nil)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("failed to load microcopy", "error", err)
		}
		return
	}

	entries := make(map[string]Entry, len(rows))
	for _, row := range rows {
		e, ok := entryFromRow(row)
		if !ok {
			continue
		}
		entries[e.Key] = e
	}

	c.refresh.Commit(id, func() { c.replace(entries) })
}

func (c *Cache) replace(entries map[string]Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
}

// commit is the load path without the fetch; tests use it to stage
// out-of-order completions.
func (c *Cache) commit(id uint64, entries map[string]Entry) bool {
	return c.refresh.Commit(id, func() { c.replace(entries) })
}

func entryFromRow(row backend.Row) (Entry, bool) {
	key, _ := row["key"].(string)
	if key == "" {
		return Entry{}, false
	}
	de, _ := row["text_de"].(string)
	en, _ := row["text_en"].(string)
	return Entry{Key: key, TextDE: de, TextEN: en}, true
}
