// Package store is the pgx-backed persistence layer for the user directory.
// All cross-request coordination (email, fingerprint, username+discriminator
// uniqueness) is delegated to postgres constraints; callers must treat
// unique violations at write time as expected, retryable races.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"user-directory/internal/db"
	"user-directory/internal/models"
	"user-directory/internal/permissions"
)

var ErrNotFound = errors.New("account not found")

// Constraint fragments used to tell collision kinds apart on 23505.
const (
	ConstraintUsernameDiscriminator = "accounts_username_discriminator_key"
	ConstraintEmail                 = "accounts_email_key"
)

type Accounts struct {
	log *slog.Logger
	db  *db.DB
}

func NewAccounts(log *slog.Logger, dbConn *db.DB) *Accounts {
	return &Accounts{log: log, db: dbConn}
}

// EmailTaken reports whether an active account already holds the canonical
// email.
func (s *Accounts) EmailTaken(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM accounts WHERE email = $1 AND NOT deleted
		)`,
		email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("email lookup: %w", err)
	}
	return exists, nil
}

// FingerprintSeen reports whether the fingerprint appears on any existing
// account.
func (s *Accounts) FingerprintSeen(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM account_fingerprints WHERE fingerprint = $1
		)`,
		fingerprint,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("fingerprint lookup: %w", err)
	}
	return exists, nil
}

// DiscriminatorTaken reports whether (username, discriminator) is held by an
// active account. This is the allocator's optimistic pre-check; the partial
// unique index re-checks at insert time.
func (s *Accounts) DiscriminatorTaken(ctx context.Context, username, discriminator string) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM accounts
			WHERE username = $1 AND discriminator = $2 AND NOT deleted
		)`,
		username, discriminator,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("discriminator lookup: %w", err)
	}
	return exists, nil
}

// CreateAccount persists the account, its fingerprints and its settings
// record as one transaction: either all rows become visible or none do.
// Unique violations bubble up untranslated so the caller can distinguish a
// discriminator race from an email race via db.IsUniqueViolation.
func (s *Accounts) CreateAccount(ctx context.Context, acct *models.Account, settings *models.Settings) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO accounts
				(id, username, discriminator, email, password_hash, created_at,
				 deleted, disabled, verified, rights, public_flags)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			acct.ID, acct.Username, acct.Discriminator, acct.Email,
			acct.PasswordHash, acct.CreatedAt, acct.Deleted, acct.Disabled,
			acct.Verified, acct.Rights.String(), acct.PublicFlags,
		)
		if err != nil {
			return err
		}

		for _, fp := range acct.Fingerprints {
			if _, err := tx.Exec(ctx,
				`INSERT INTO account_fingerprints (user_id, fingerprint)
				 VALUES ($1, $2)
				 ON CONFLICT DO NOTHING`,
				acct.ID, fp,
			); err != nil {
				return err
			}
		}

		extended := settings.Extended
		if len(extended) == 0 {
			extended = []byte(`{}`)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO account_settings (user_id, locale, theme, extended)
			 VALUES ($1, $2, $3, $4)`,
			settings.UserID, settings.Locale, settings.Theme, extended,
		)
		return err
	})
}

// GetAccount loads an account by id, soft-deleted rows included.
func (s *Accounts) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var (
		acct      models.Account
		rightsRaw string
	)
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, username, discriminator, email, password_hash, created_at,
		        deleted, disabled, verified, rights, public_flags
		 FROM accounts WHERE id = $1`,
		id,
	).Scan(&acct.ID, &acct.Username, &acct.Discriminator, &acct.Email,
		&acct.PasswordHash, &acct.CreatedAt, &acct.Deleted, &acct.Disabled,
		&acct.Verified, &rightsRaw, &acct.PublicFlags)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("account lookup: %w", err)
	}

	acct.Rights, err = permissions.Parse(rightsRaw)
	if err != nil {
		return nil, fmt.Errorf("account %s has malformed rights %q: %w", id, rightsRaw, err)
	}
	return &acct, nil
}

// AddGuildMember joins the account to a guild. Idempotent; used only by the
// post-registration auto-join task.
func (s *Accounts) AddGuildMember(ctx context.Context, guildID, userID string) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO guild_members (guild_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		guildID, userID,
	)
	if err != nil {
		return fmt.Errorf("guild join: %w", err)
	}
	return nil
}
