package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// recordRowID pins the single session row.
const recordRowID = 1

// PostgresStore keeps the record in skywidget.session_record (one row).
// The pool is owned by the app; this store never closes it.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a Postgres-backed record store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureSchema creates the schema and table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS skywidget;
		CREATE TABLE IF NOT EXISTS skywidget.session_record (
			id         smallint PRIMARY KEY,
			blob       bytea NOT NULL,
			updated_at timestamptz NOT NULL
		);
	`)
	return err
}

// Name implements BlobStore.
func (s *PostgresStore) Name() string { return "postgres" }

// ReadBlob implements BlobStore.
func (s *PostgresStore) ReadBlob(ctx context.Context) ([]byte, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx, `
		SELECT blob
		FROM skywidget.session_record
		WHERE id = $1
	`, recordRowID).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// WriteBlob implements BlobStore.
func (s *PostgresStore) WriteBlob(ctx context.Context, blob []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO skywidget.session_record (id, blob, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET blob = EXCLUDED.blob, updated_at = EXCLUDED.updated_at
	`, recordRowID, blob, s.now())
	return err
}
