// Package prefs stores per-user boolean preferences.
//
// Remote preferences are columns on the signed-in user's profile row and
// need a resolved user. Device preferences live in local storage only and
// are durable as soon as Set returns.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend"
	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/storage"
)

// Key names a preference.
type Key string

const (
	HapticEnabled   Key = "haptic_enabled"
	CookiesAccepted Key = "cookies_accepted"
	BannerDismissed Key = "banner_dismissed"
)

// Keys lists every known preference.
var Keys = []Key{HapticEnabled, CookiesAccepted, BannerDismissed}

var (
	// ErrUnauthenticated is returned by Set for a remote key when nobody is
	// signed in.
	ErrUnauthenticated = errors.New("no signed-in user")

	// ErrUnknownKey is returned for keys outside Keys.
	ErrUnknownKey = errors.New("unknown preference key")
)

// Remote reports whether the key is stored on the user's profile.
func (k Key) Remote() bool {
	return k == HapticEnabled || k == CookiesAccepted
}

// Valid reports whether k is one of Keys.
func (k Key) Valid() bool {
	for _, known := range Keys {
		if k == known {
			return true
		}
	}
	return false
}

// DeviceStorage is the local key-value storage backing device preferences.
type DeviceStorage interface {
	GetDeviceFlag(ctx context.Context, key string) (bool, error)
	SetDeviceFlag(ctx context.Context, key string, value bool) error
}

// Store reads and writes preferences.
type Store struct {
	identity backend.Identity
	records  backend.RecordStore
	device   DeviceStorage
	logger   *slog.Logger
}

// NewStore creates a preference store.
func NewStore(identity backend.Identity, records backend.RecordStore, device DeviceStorage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		identity: identity,
		records:  records,
		device:   device,
		logger:   logger.With("component", "prefs"),
	}
}

// Get returns the value of key. ok is false when the preference is unset,
// when nobody is signed in for a remote key, or when the read failed.
func (s *Store) Get(ctx context.Context, key Key) (value bool, ok bool) {
	if !key.Valid() {
		return false, false
	}
	if !key.Remote() {
		return s.getDevice(ctx, key)
	}

	user, signedIn := s.identity.CurrentUser(ctx)
	if !signedIn {
		return false, false
	}

	rows, err := s.records.Select(ctx, backend.CollectionProfiles,
		backend.Where(backend.Eq("id", user.String())))
	if err != nil {
		s.logger.Warn("failed to read preference", "key", key, "error", err)
		return false, false
	}
	if len(rows) == 0 {
		return false, false
	}

	v, isBool := rows[0][string(key)].(bool)
	if !isBool {
		// NULL or missing column: never set.
		return false, false
	}
	return v, true
}

// Set stores value under key. Failures are logged and returned; Set never
// panics on backend errors.
func (s *Store) Set(ctx context.Context, key Key, value bool) error {
	if !key.Valid() {
		return fmt.Errorf("setting %q: %w", key, ErrUnknownKey)
	}
	if !key.Remote() {
		if err := s.device.SetDeviceFlag(ctx, string(key), value); err != nil {
			s.logger.Warn("failed to store device preference", "key", key, "error", err)
			return fmt.Errorf("setting %q: %w", key, err)
		}
		return nil
	}

	user, signedIn := s.identity.CurrentUser(ctx)
	if !signedIn {
		return fmt.Errorf("setting %q: %w", key, ErrUnauthenticated)
	}

	err := s.records.Update(ctx, backend.CollectionProfiles, user.String(),
		backend.Row{string(key): value})
	if err != nil {
		s.logger.Warn("failed to store preference", "key", key, "error", err)
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// All returns every preference that currently has a value.
func (s *Store) All(ctx context.Context) map[Key]bool {
	out := make(map[Key]bool, len(Keys))
	for _, k := range Keys {
		if v, ok := s.Get(ctx, k); ok {
			out[k] = v
		}
	}
	return out
}

func (s *Store) getDevice(ctx context.Context, key Key) (bool, bool) {
	v, err := s.device.GetDeviceFlag(ctx, string(key))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to read device preference", "key", key, "error", err)
		}
		return false, false
	}
	return v, true
}
