package models

import (
	"encoding/json"
	"time"

	"user-directory/internal/permissions"
)

// Account is the central directory record. The (Username, Discriminator)
// pair is unique among rows where Deleted is false; uniqueness is enforced by
// a partial unique index, not by application-side checks.
type Account struct {
	ID            string           `json:"id"`
	Username      string           `json:"username"`
	Discriminator string           `json:"discriminator"`
	Email         *string          `json:"email,omitempty"`
	PasswordHash  string           `json:"-"`
	CreatedAt     time.Time        `json:"created_at"`
	Deleted       bool             `json:"deleted"`
	Disabled      bool             `json:"disabled"`
	Verified      bool             `json:"verified"`
	Rights        permissions.Bits `json:"rights"`
	PublicFlags   int64            `json:"public_flags"`
	Fingerprints  []string         `json:"-"`
}

// Settings is the per-account settings record. Exactly one exists per
// account, written in the same transaction that creates the account row.
type Settings struct {
	UserID string `json:"user_id"`
	Locale string `json:"locale"`
	Theme  string `json:"theme"`
	// Extended holds settings fields unknown to the current build so richer
	// clients round-trip without data loss.
	Extended json.RawMessage `json:"extended_settings,omitempty"`
}

// PublicAccount is the public-facing view of an Account. Fields are
// enumerated here once; anything not listed never leaves the service.
type PublicAccount struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Discriminator string    `json:"discriminator"`
	PublicFlags   int64     `json:"public_flags"`
	Verified      bool      `json:"verified"`
	CreatedAt     time.Time `json:"created_at"`
}

func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:            a.ID,
		Username:      a.Username,
		Discriminator: a.Discriminator,
		PublicFlags:   a.PublicFlags,
		Verified:      a.Verified,
		CreatedAt:     a.CreatedAt,
	}
}

// Tag is the rendered username#discriminator form used in logs and
// human-facing output.
func (a *Account) Tag() string {
	return a.Username + "#" + a.Discriminator
}
