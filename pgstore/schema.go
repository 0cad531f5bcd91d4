package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Schema is the DDL for both stores. EnsureSchema applies it idempotently;
// deployments with their own migration tooling can run it there instead.
const Schema = `
CREATE TABLE IF NOT EXISTS token_blacklist (
    jti        VARCHAR(64) PRIMARY KEY,
    user_id    BIGINT      NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    revoked_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    reason     VARCHAR(32) NOT NULL,
    ip_address VARCHAR(45),
    user_agent TEXT
);

CREATE INDEX IF NOT EXISTS idx_token_blacklist_expires_at
    ON token_blacklist (expires_at);
CREATE INDEX IF NOT EXISTS idx_token_blacklist_user_id
    ON token_blacklist (user_id);

CREATE TABLE IF NOT EXISTS token_families (
    jti        VARCHAR(64) PRIMARY KEY,
    user_id    BIGINT      NOT NULL,
    family_id  VARCHAR(64) NOT NULL,
    parent_jti VARCHAR(64),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_token_families_family
    ON token_families (family_id, user_id);
CREATE INDEX IF NOT EXISTS idx_token_families_user_id
    ON token_families (user_id);
`

// Connect opens a pooled connection and verifies it.
func Connect(connectionString string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("pgstore connect: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// EnsureSchema creates both tables and their indexes if missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("pgstore schema: %w", err)
	}
	return nil
}
