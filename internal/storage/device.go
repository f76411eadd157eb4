package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// GetDeviceValue returns the raw value stored under key on this device.
// Returns ErrNotFound if the key has never been set.
func (s *Store) GetDeviceValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value,
		`SELECT value FROM device_preferences WHERE key = ?`, key,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("getting device value %q: %w", key, err)
	}
	return value, nil
}

// SetDeviceValue stores value under key, overwriting any previous value.
// The write is durable once it returns.
func (s *Store) SetDeviceValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device_preferences (key, value, updated_at)
		 VALUES (?, ?, datetime('now'))
		 ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("setting device value %q: %w", key, err)
	}
	return nil
}

// DeleteDeviceValue removes key. Deleting a missing key is not an error.
func (s *Store) DeleteDeviceValue(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM device_preferences WHERE key = ?`, key,
	); err != nil {
		return fmt.Errorf("deleting device value %q: %w", key, err)
	}
	return nil
}

// GetDeviceFlag reads a boolean stored with SetDeviceFlag.
func (s *Store) GetDeviceFlag(ctx context.Context, key string) (bool, error) {
	raw, err := s.GetDeviceValue(ctx, key)
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parsing device flag %q: %w", key, err)
	}
	return v, nil
}

// SetDeviceFlag stores a boolean under key.
func (s *Store) SetDeviceFlag(ctx context.Context, key string, value bool) error {
	return s.SetDeviceValue(ctx, key, strconv.FormatBool(value))
}

// AllDeviceValues returns every stored key with its raw value.
func (s *Store) AllDeviceValues(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT key, value FROM device_preferences ORDER BY key`,
	); err != nil {
		return nil, fmt.Errorf("querying device values: %w", err)
	}

	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}
