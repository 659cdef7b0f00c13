package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore keeps documents as JSONB rows in the documents table and
// unique claims in document_unique_keys (see migrations).
type PostgresStore struct {
	pool pgxPool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("docstore: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

func newPostgresStoreWithPool(pool pgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	query := `
		SELECT body
		FROM documents
		WHERE collection = $1 AND id = $2
	`
	var body []byte
	if err := s.pool.QueryRow(ctx, query, collection, id).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("docstore: select %s/%s: %w", collection, id, err)
	}
	return body, nil
}

func (s *PostgresStore) Insert(ctx context.Context, collection, id string, body []byte, opts ...InsertOption) error {
	if !json.Valid(body) {
		return fmt.Errorf("docstore: invalid json for %s/%s", collection, id)
	}
	o := applyInsertOptions(opts)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("docstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// ON CONFLICT DO NOTHING blocks on a concurrent uncommitted claim and
	// then reports zero rows, so exactly one racing insert wins.
	claimQuery := `
		INSERT INTO document_unique_keys (collection, field, value, document_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`
	for _, claim := range o.unique {
		ct, err := tx.Exec(ctx, claimQuery, collection, claim.Field, fmt.Sprint(claim.Value), id)
		if err != nil {
			return fmt.Errorf("docstore: claim %s.%s: %w", collection, claim.Field, err)
		}
		if ct.RowsAffected() == 0 {
			return ErrConflict
		}
	}

	insertQuery := `
		INSERT INTO documents (collection, id, body)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`
	ct, err := tx.Exec(ctx, insertQuery, collection, id, body)
	if err != nil {
		return fmt.Errorf("docstore: insert %s/%s: %w", collection, id, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrConflict
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("docstore: commit %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, patch Patch) error {
	set, err := json.Marshal(patch.Set)
	if err != nil {
		return fmt.Errorf("docstore: encode patch: %w", err)
	}
	expect, err := json.Marshal(eqObject(patch.Expect))
	if err != nil {
		return fmt.Errorf("docstore: encode expectations: %w", err)
	}

	query := `
		UPDATE documents
		SET body = body || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2 AND body @> $4::jsonb
	`
	ct, err := s.pool.Exec(ctx, query, collection, id, set, expect)
	if err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	existsQuery := `SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)`
	if err := s.pool.QueryRow(ctx, existsQuery, collection, id).Scan(&exists); err != nil {
		return fmt.Errorf("docstore: check %s/%s: %w", collection, id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConditionFailed
}

func (s *PostgresStore) Find(ctx context.Context, collection string, q Query) ([][]byte, error) {
	filter, err := json.Marshal(eqObject(q.Where))
	if err != nil {
		return nil, fmt.Errorf("docstore: encode filter: %w", err)
	}
	query := `
		SELECT body
		FROM documents
		WHERE collection = $1 AND body @> $2::jsonb
		ORDER BY created_at, id
	`
	args := []any{collection, filter}
	if q.Limit > 0 {
		query += " LIMIT $3"
		args = append(args, q.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: find %s: %w", collection, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("docstore: scan %s: %w", collection, err)
		}
		out = append(out, body)
	}
	return out, rows.Err()
}

func eqObject(conds []Eq) map[string]any {
	obj := make(map[string]any, len(conds))
	for _, c := range conds {
		obj[c.Field] = c.Value
	}
	return obj
}
