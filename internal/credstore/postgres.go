package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a credential store backed by Postgres, for deployments
// where the wallet core runs server-side and the platform keychain is a
// database row. Blobs are ciphertext; the vault layer owns encryption.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Schema is the DDL for the credential records table, applied by cmd/migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS credential_records (
	identifier TEXT PRIMARY KEY,
	blob       BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Add persists a blob under the identifier.
func (s *PostgresStore) Add(ctx context.Context, id string, blob []byte) Status {
	if id == "" {
		return StatusParamError
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credential_records (identifier, blob) VALUES ($1, $2)`, id, blob)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return StatusDuplicate
		}
		return StatusInternal
	}
	return StatusSuccess
}

// Put persists a blob under the identifier, replacing any existing blob.
func (s *PostgresStore) Put(ctx context.Context, id string, blob []byte) Status {
	if id == "" {
		return StatusParamError
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO credential_records (identifier, blob) VALUES ($1, $2)
		ON CONFLICT (identifier) DO UPDATE SET blob = $2, updated_at = now()`, id, blob)
	if err != nil {
		return StatusInternal
	}
	return StatusSuccess
}

// Get retrieves the blob stored under the identifier.
func (s *PostgresStore) Get(ctx context.Context, id string) ([]byte, Status) {
	if id == "" {
		return nil, StatusParamError
	}
	var blob []byte
	err := s.pool.QueryRow(ctx,
		`SELECT blob FROM credential_records WHERE identifier = $1`, id).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, StatusNotFound
		}
		return nil, StatusInternal
	}
	return blob, StatusSuccess
}

// Delete removes the blob stored under the identifier.
func (s *PostgresStore) Delete(ctx context.Context, id string) Status {
	if id == "" {
		return StatusParamError
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM credential_records WHERE identifier = $1`, id)
	if err != nil {
		return StatusInternal
	}
	if tag.RowsAffected() == 0 {
		return StatusNotFound
	}
	return StatusSuccess
}

// DeleteAll removes every record.
func (s *PostgresStore) DeleteAll(ctx context.Context) Status {
	if _, err := s.pool.Exec(ctx, `DELETE FROM credential_records`); err != nil {
		return StatusInternal
	}
	return StatusSuccess
}

var _ Store = (*PostgresStore)(nil)
