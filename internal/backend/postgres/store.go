// Package postgres implements the backend record store and realtime feed on
// the hosted Postgres database.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/backend"
)

// CreateConnectionPool opens a pgx pool and pings it.
//
// Port 6543 is the hosted transaction pooler, which rejects prepared
// statements; unless the URL sets default_query_exec_mode explicitly, such
// connections use describe caching instead.
func CreateConnectionPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for pooler", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Store is a backend.RecordStore over a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	schema string
	logger *slog.Logger
}

var _ backend.RecordStore = (*Store)(nil)

// NewStore creates a store reading tables from schema ("public" when empty).
func NewStore(pool *pgxpool.Pool, schema string, logger *slog.Logger) *Store {
	if schema == "" {
		schema = "public"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, schema: schema, logger: logger.With("component", "postgres")}
}

func (s *Store) table(collection string) string {
	return pgx.Identifier{s.schema, collection}.Sanitize()
}

// Select implements backend.RecordStore.
func (s *Store) Select(ctx context.Context, collection string, filter backend.Filter) ([]backend.Row, error) {
	query, args, err := buildSelect(s.table(collection), filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", collection, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}

	out := make([]backend.Row, 0, len(maps))
	for _, m := range maps {
		out = append(out, normalize(m))
	}
	return out, nil
}

// Update implements backend.RecordStore.
func (s *Store) Update(ctx context.Context, collection, id string, patch backend.Row) error {
	query, args, err := buildUpdate(s.table(collection), id, patch)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", collection, err)
	}
	if tag.RowsAffected() == 0 {
		return backend.ErrNotFound
	}
	return nil
}

// Upsert implements backend.RecordStore.
func (s *Store) Upsert(ctx context.Context, collection string, row backend.Row, conflict ...string) error {
	query, args, err := buildUpsert(s.table(collection), row, conflict)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", collection, err)
	}
	return nil
}

// Count implements backend.RecordStore.
func (s *Store) Count(ctx context.Context, collection string, filter backend.Filter) (int, error) {
	query, args, err := buildCount(s.table(collection), filter)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return int(n), nil
}

func column(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// where renders the filter starting at placeholder $start.
func where(filter backend.Filter, start int) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(filter))
	args := make([]any, 0, len(filter))
	for i, c := range filter {
		switch c.Op {
		case backend.OpEq, backend.OpGte:
		default:
			return "", nil, fmt.Errorf("unsupported filter operator %q", c.Op)
		}
		parts = append(parts, fmt.Sprintf("%s %s $%d", column(c.Column), c.Op, start+i))
		args = append(args, c.Value)
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func buildSelect(table string, filter backend.Filter) (string, []any, error) {
	clause, args, err := where(filter, 1)
	if err != nil {
		return "", nil, err
	}
	return "SELECT * FROM " + table + clause, args, nil
}

func buildCount(table string, filter backend.Filter) (string, []any, error) {
	clause, args, err := where(filter, 1)
	if err != nil {
		return "", nil, err
	}
	return "SELECT count(*) FROM " + table + clause, args, nil
}

func buildUpdate(table, id string, patch backend.Row) (string, []any, error) {
	cols := sortedColumns(patch)
	cols = slices.DeleteFunc(cols, func(c string) bool { return c == "id" })
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("update %s: empty patch", table)
	}

	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", column(c), i+1))
		args = append(args, patch[c])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		table, strings.Join(sets, ", "), column("id"), len(args))
	return query, args, nil
}

func buildUpsert(table string, row backend.Row, conflict []string) (string, []any, error) {
	cols := sortedColumns(row)
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("upsert %s: empty row", table)
	}
	for _, c := range conflict {
		if _, ok := row[c]; !ok {
			return "", nil, fmt.Errorf("upsert %s: conflict column %q missing from row", table, c)
		}
	}

	names := make([]string, 0, len(cols))
	holders := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for i, c := range cols {
		names = append(names, column(c))
		holders = append(holders, fmt.Sprintf("$%d", i+1))
		args = append(args, row[c])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), strings.Join(holders, ", "))

	if len(conflict) > 0 {
		keys := make([]string, 0, len(conflict))
		for _, c := range conflict {
			keys = append(keys, column(c))
		}
		var sets []string
		for _, c := range cols {
			if slices.Contains(conflict, c) {
				continue
			}
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", column(c), column(c)))
		}
		if len(sets) == 0 {
			fmt.Fprintf(&b, " ON CONFLICT (%s) DO NOTHING", strings.Join(keys, ", "))
		} else {
			fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s",
				strings.Join(keys, ", "), strings.Join(sets, ", "))
		}
	}
	return b.String(), args, nil
}

func sortedColumns(row backend.Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	return cols
}

// normalize converts driver-specific values into the forms callers compare
// against. uuid columns arrive as raw 16-byte arrays.
func normalize(m map[string]any) backend.Row {
	row := make(backend.Row, len(m))
	for k, v := range m {
		if b, ok := v.([16]byte); ok {
			v = uuid.UUID(b).String()
		}
		row[k] = v
	}
	return row
}
