// Package postgres implements remote.Store on a per-user JSONB document table.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-softwarelab/common/pkg/optional"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/trainingsync/internal/auth"
	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/remote"
)

//go:embed schema.sql
var schema string

// EnsureSchema creates the documents table and its row-level security policy.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Store provides Postgres-backed persistence for synced documents.
type Store struct {
	pool *pgxpool.Pool
	user auth.UserFunc
}

// New constructs a Store. Every call resolves the current user through user and
// fails fast with domain.ErrNotAuthenticated when there is none.
func New(pool *pgxpool.Pool, user auth.UserFunc) *Store {
	return &Store{pool: pool, user: user}
}

// Create upserts the document at key, merging into any existing payload.
func (s *Store) Create(ctx context.Context, collection, key string, doc remote.Document) (string, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	const stmt = `INSERT INTO documents (user_id, collection, doc_id, payload, created_at, updated_at)
        VALUES ($1, $2, $3, $4, now(), now())
        ON CONFLICT (user_id, collection, doc_id)
        DO UPDATE SET payload = documents.payload || EXCLUDED.payload, updated_at = now()
        RETURNING doc_id`

	var id string
	err = s.withUser(ctx, func(tx pgx.Tx, userID string) error {
		return tx.QueryRow(ctx, stmt, userID, collection, key, payload).Scan(&id)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update merges doc into an existing document.
func (s *Store) Update(ctx context.Context, collection, id string, doc remote.Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	const stmt = `UPDATE documents SET payload = payload || $4::jsonb, updated_at = now()
        WHERE user_id = $1 AND collection = $2 AND doc_id = $3`

	return s.withUser(ctx, func(tx pgx.Tx, userID string) error {
		tag, err := tx.Exec(ctx, stmt, userID, collection, id, payload)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s/%s", domain.ErrNotFound, collection, id)
		}
		return nil
	})
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	const stmt = `DELETE FROM documents WHERE user_id = $1 AND collection = $2 AND doc_id = $3`

	return s.withUser(ctx, func(tx pgx.Tx, userID string) error {
		tag, err := tx.Exec(ctx, stmt, userID, collection, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s/%s", domain.ErrNotFound, collection, id)
		}
		return nil
	})
}

// List returns the collection ordered by date, or the documents modified after since.
func (s *Store) List(ctx context.Context, collection string, since optional.Value[time.Time]) ([]domain.Record, error) {
	query := `SELECT doc_id, payload, created_at, updated_at FROM documents
        WHERE user_id = $1 AND collection = $2
        ORDER BY payload->>'date' DESC, doc_id`
	args := []any{collection}
	if since.IsPresent() {
		query = `SELECT doc_id, payload, created_at, updated_at FROM documents
        WHERE user_id = $1 AND collection = $2 AND updated_at > $3
        ORDER BY updated_at, doc_id`
		args = append(args, since.MustGet())
	}

	var out []domain.Record
	err := s.withUser(ctx, func(tx pgx.Tx, userID string) error {
		rows, err := tx.Query(ctx, query, append([]any{userID}, args...)...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id                   string
				payload              []byte
				createdAt, updatedAt time.Time
			)
			if err := rows.Scan(&id, &payload, &createdAt, &updatedAt); err != nil {
				return err
			}
			var doc remote.Document
			if err := json.Unmarshal(payload, &doc); err != nil {
				return fmt.Errorf("decode document %s: %w", id, err)
			}
			record, err := remote.RecordFromDocument(id, doc, createdAt.UTC(), updatedAt.UTC())
			if err != nil {
				return fmt.Errorf("decode document %s: %w", id, err)
			}
			out = append(out, record)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// withUser runs fn in a transaction scoped to the current user for row-level security.
func (s *Store) withUser(ctx context.Context, fn func(pgx.Tx, string) error) (err error) {
	userID, err := auth.RequireUser(ctx, s.user)
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.user_id', $1, true)", userID); err != nil {
		return classify(err)
	}
	if err = fn(tx, userID); err != nil {
		return classify(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps server-side rejections onto domain.ErrRemoteRejected and leaves
// transport failures as they are.
func classify(err error) error {
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: %s (%s)", domain.ErrRemoteRejected, pgErr.Message, pgErr.Code)
	}
	return err
}
