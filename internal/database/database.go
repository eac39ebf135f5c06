package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Schema is the full DDL. Statements are idempotent so it runs on every boot.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	name TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL,
	saved_signature TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(lower(email));

CREATE TABLE IF NOT EXISTS afes (
	id TEXT PRIMARY KEY,
	afe_name TEXT NOT NULL,
	afe_number TEXT,
	status TEXT NOT NULL,
	original_pdf_key TEXT NOT NULL,
	final_pdf_key TEXT,
	created_by_id TEXT NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_afes_status ON afes(status);
CREATE INDEX IF NOT EXISTS idx_afes_created_at ON afes(created_at DESC);

CREATE TABLE IF NOT EXISTS afe_signers (
	id TEXT PRIMARY KEY,
	afe_id TEXT NOT NULL REFERENCES afes(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL REFERENCES users(id),
	signing_order INTEGER NOT NULL,
	status TEXT NOT NULL,
	signature_x DOUBLE PRECISION,
	signature_y DOUBLE PRECISION,
	signature_width DOUBLE PRECISION,
	signature_height DOUBLE PRECISION,
	title_box JSONB,
	date_box JSONB,
	signature_image TEXT,
	signed_at TIMESTAMPTZ,
	ip_address TEXT,
	user_agent TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (afe_id, signing_order)
);
CREATE INDEX IF NOT EXISTS idx_afe_signers_user ON afe_signers(user_id, status);

CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	action TEXT NOT NULL,
	user_id TEXT,
	ip_address TEXT,
	user_agent TEXT,
	metadata JSONB,
	timestamp TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_logs(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_logs(timestamp DESC);`

// EnsureSchema creates the tables if needed.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
