package storage

import (
	"context"
	"fmt"
	"time"
)

// MaxDiagnostics is how many diagnostic entries are kept. Older entries are
// dropped as new ones arrive.
const MaxDiagnostics = 10

// Diagnostic is one recorded unexpected failure.
type Diagnostic struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	Stack     string    `json:"stack,omitempty"`
	Path      string    `json:"path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordDiagnostic appends an entry and trims the log to the newest
// MaxDiagnostics entries, in one transaction.
func (s *Store) RecordDiagnostic(ctx context.Context, d Diagnostic) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO diagnostics (message, stack, path) VALUES (?, ?, ?)`,
		d.Message, d.Stack, d.Path,
	); err != nil {
		return fmt.Errorf("inserting diagnostic: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM diagnostics
		 WHERE id NOT IN (SELECT id FROM diagnostics ORDER BY id DESC LIMIT ?)`,
		MaxDiagnostics,
	); err != nil {
		return fmt.Errorf("trimming diagnostics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing diagnostic: %w", err)
	}
	return nil
}

// Diagnostics returns the stored entries, newest first.
func (s *Store) Diagnostics(ctx context.Context) ([]Diagnostic, error) {
	var rows []struct {
		ID        int64  `db:"id"`
		Message   string `db:"message"`
		Stack     string `db:"stack"`
		Path      string `db:"path"`
		CreatedAt string `db:"created_at"`
	}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, message, stack, path, created_at FROM diagnostics ORDER BY id DESC`,
	); err != nil {
		return nil, fmt.Errorf("querying diagnostics: %w", err)
	}

	out := make([]Diagnostic, 0, len(rows))
	for _, r := range rows {
		out = append(out, Diagnostic{
			ID:        r.ID,
			Message:   r.Message,
			Stack:     r.Stack,
			Path:      r.Path,
			CreatedAt: parseTime(r.CreatedAt),
		})
	}
	return out, nil
}

// ClearDiagnostics removes every entry.
func (s *Store) ClearDiagnostics(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM diagnostics`); err != nil {
		return fmt.Errorf("clearing diagnostics: %w", err)
	}
	return nil
}
