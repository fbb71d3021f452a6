package kvstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a single jsonb table. One row per
// logical key, upserted with ON CONFLICT so re-writes are idempotent.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

const createKVTable = `
CREATE TABLE IF NOT EXISTS %s (
  key  text PRIMARY KEY,
  doc  jsonb NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now()
)`

// NewPostgresStore connects, ensures the table exists and fails fast when
// postgres is unreachable.
func NewPostgresStore(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	if table == "" {
		table = "kv_docs"
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf(createKVTable, pgx.Identifier{table}.Sanitize())); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres create table: %w", err)
	}

	return &PostgresStore{pool: pool, table: table}, nil
}

func (s *PostgresStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if len(keys) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	q := fmt.Sprintf(`SELECT key, doc FROM %s WHERE key = ANY($1)`, pgx.Identifier{s.table}.Sanitize())
	rows, err := s.pool.Query(ctx, q, keys)
	if err != nil {
		return nil, fmt.Errorf("postgres get: %w", err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage, len(keys))
	for rows.Next() {
		var key string
		var doc []byte
		if err := rows.Scan(&key, &doc); err != nil {
			return nil, fmt.Errorf("postgres scan: %w", err)
		}
		out[key] = json.RawMessage(doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres get: %w", err)
	}
	return out, nil
}

// Set upserts every document inside one transaction so the call never
// partially applies.
func (s *PostgresStore) Set(ctx context.Context, docs map[string]json.RawMessage) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres begin: %w", err)
	}
	defer tx.Rollback(ctx)

	q := fmt.Sprintf(`
		INSERT INTO %s (key, doc, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		pgx.Identifier{s.table}.Sanitize())

	for k, v := range docs {
		if _, err := tx.Exec(ctx, q, k, []byte(v)); err != nil {
			return fmt.Errorf("postgres upsert %q: %w", k, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	q := fmt.Sprintf(`DELETE FROM %s WHERE key = ANY($1)`, pgx.Identifier{s.table}.Sanitize())
	if _, err := s.pool.Exec(ctx, q, keys); err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
