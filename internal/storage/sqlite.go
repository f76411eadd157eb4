// Package storage is the device-local SQLite persistence layer.
//
// It holds what must survive restarts on this device but has no server
// counterpart: device-only preferences and the rolling diagnostic log. The
// database uses WAL journal mode and a single-writer model.
package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure Go SQLite driver.
)

const memoryPath = ":memory:"

// pragmas applied to every device connection.
const pragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"

// Store provides typed access to device storage.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a Store backed by the given database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "sqlite")}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// OpenDatabase opens the device database at path, creating it and its
// directory when missing. The pool holds a single connection since SQLite
// allows one writer.
func OpenDatabase(path string) (*sql.DB, error) {
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating device data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?"+pragmas)
	if err != nil {
		return nil, fmt.Errorf("opening device database %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging device database %q: %w", path, err)
	}

	slog.Info("opened device database", "path", path)
	return db, nil
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	version int
	file    string
}

// RunMigrations applies the embedded migrations/NNN_name.sql files that the
// database has not seen yet, in version order, one transaction each.
func RunMigrations(db *sql.DB) error {
	x := sqlx.NewDb(db, "sqlite")

	if _, err := x.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var applied []int
	if err := x.Select(&applied, "SELECT version FROM schema_migrations"); err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}

	pending, err := pendingMigrations(applied)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if err := applyMigration(x, m); err != nil {
			return fmt.Errorf("applying migration %s: %w", m.file, err)
		}
		slog.Info("applied device migration", "version", m.version, "file", m.file)
	}
	return nil
}

func pendingMigrations(applied []int) ([]migration, error) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	var pending []migration
	for _, name := range names {
		file := filepath.Base(name)
		v := parseVersion(file)
		if v <= 0 || slices.Contains(applied, v) {
			continue
		}
		pending = append(pending, migration{version: v, file: file})
	}
	slices.SortFunc(pending, func(a, b migration) int { return a.version - b.version })
	return pending, nil
}

// parseVersion reads the leading number of "001_device_preferences.sql".
func parseVersion(file string) int {
	prefix, _, _ := strings.Cut(file, "_")
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0
	}
	return v
}

func applyMigration(db *sqlx.DB, m migration) error {
	body, err := migrationsFS.ReadFile("migrations/" + m.file)
	if err != nil {
		return fmt.Errorf("reading: %w", err)
	}

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(string(body)); err != nil {
		return fmt.Errorf("executing: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}
	return tx.Commit()
}

// parseTime reads the timestamp formats SQLite hands back. Anything else
// yields the zero time.
func parseTime(s string) time.Time {
	for _, layout := range []string{
		time.DateTime,
		time.RFC3339,
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
