package store

import (
	"context"
	"fmt"

	"user-directory/internal/db"
)

// schema is applied at startup. Uniqueness of the live identity space is
// enforced here, not in application code: the partial unique indexes are the
// final arbiter for username+discriminator and canonical email races.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL,
	discriminator TEXT NOT NULL CHECK (discriminator ~ '^[0-9]{4}$'),
	email         TEXT,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	deleted       BOOLEAN NOT NULL DEFAULT FALSE,
	disabled      BOOLEAN NOT NULL DEFAULT FALSE,
	verified      BOOLEAN NOT NULL DEFAULT FALSE,
	rights        TEXT NOT NULL DEFAULT '0',
	public_flags  BIGINT NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS accounts_username_discriminator_key
	ON accounts (username, discriminator) WHERE NOT deleted;

CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_key
	ON accounts (email) WHERE NOT deleted AND email IS NOT NULL;

CREATE TABLE IF NOT EXISTS account_settings (
	user_id  TEXT PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
	locale   TEXT NOT NULL DEFAULT 'en-US',
	theme    TEXT NOT NULL DEFAULT 'dark',
	extended JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE TABLE IF NOT EXISTS account_fingerprints (
	user_id     TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	fingerprint TEXT NOT NULL,
	seen_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, fingerprint)
);

CREATE INDEX IF NOT EXISTS account_fingerprints_fingerprint_idx
	ON account_fingerprints (fingerprint);

CREATE TABLE IF NOT EXISTS guild_members (
	guild_id  TEXT NOT NULL,
	user_id   TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (guild_id, user_id)
);
`

// EnsureSchema creates the directory tables if they do not exist yet.
func EnsureSchema(ctx context.Context, d *db.DB) error {
	if _, err := d.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
