package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"user-directory/internal/config"
	"user-directory/internal/db"
	"user-directory/internal/identity"
	"user-directory/internal/models"
	"user-directory/internal/permissions"
	"user-directory/internal/security"
	"user-directory/internal/store"
)

// Store is everything the factory needs from persistence.
type Store interface {
	GuardStore
	DiscriminatorTaken(ctx context.Context, username, discriminator string) (bool, error)
	CreateAccount(ctx context.Context, acct *models.Account, settings *models.Settings) error
	AddGuildMember(ctx context.Context, guildID, userID string) error
}

// Factory orchestrates registration: canonicalize, guard, allocate, persist
// atomically, then schedule detached follow-up work.
type Factory struct {
	log           *slog.Logger
	policy        config.RegisterPolicy
	store         Store
	guard         *Guard
	flake         *security.Snowflake
	tasks         *TaskRunner
	defaultRights permissions.Bits
}

func NewFactory(log *slog.Logger, policy config.RegisterPolicy, st Store, guard *Guard, flake *security.Snowflake, tasks *TaskRunner) (*Factory, error) {
	rights, err := permissions.Parse(policy.DefaultRights)
	if err != nil {
		return nil, fmt.Errorf("default rights: %w", err)
	}
	return &Factory{
		log:           log,
		policy:        policy,
		store:         st,
		guard:         guard,
		flake:         flake,
		tasks:         tasks,
		defaultRights: rights,
	}, nil
}

// Register creates a new account. On success the account and its settings
// record are committed atomically and the auto-join task is queued; the
// returned record is ready for session-token issuance by the caller.
//
// A unique-constraint violation on (username, discriminator) during the
// insert is an expected race with a concurrent registration, recovered by
// re-running allocation up to the same bound as the allocator itself.
func (f *Factory) Register(ctx context.Context, in *Input) (*models.Account, error) {
	username := identity.SanitizeUsername(in.Username)
	if len([]rune(username)) < 2 {
		return nil, fieldError("username", CodeFieldBadLength, "Username must be at least 2 visible characters")
	}

	canonicalEmail, err := f.guard.Evaluate(ctx, in)
	if err != nil {
		return nil, err
	}

	passwordHash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	var email *string
	if canonicalEmail != "" {
		email = &canonicalEmail
	}
	var fingerprints []string
	if in.Fingerprint != "" {
		fingerprints = []string{in.Fingerprint}
	}

	for attempt := 0; attempt < identity.MaxDiscriminatorAttempts; attempt++ {
		discriminator, err := identity.AllocateDiscriminator(ctx, f.store.DiscriminatorTaken, username)
		if err != nil {
			var exhausted *identity.ErrDiscriminatorExhausted
			if errors.As(err, &exhausted) {
				return nil, fieldError("username", CodeUsernameTooManyUsers,
					"Too many users have this username, please try another")
			}
			return nil, err
		}

		acct := &models.Account{
			ID:            f.flake.Next(),
			Username:      username,
			Discriminator: discriminator,
			Email:         email,
			PasswordHash:  passwordHash,
			CreatedAt:     time.Now().UTC(),
			Rights:        f.defaultRights,
			Fingerprints:  fingerprints,
		}
		settings := &models.Settings{
			UserID: acct.ID,
			Locale: f.policy.DefaultLocale,
			Theme:  "dark",
		}

		err = f.store.CreateAccount(ctx, acct, settings)
		if err == nil {
			f.log.Info("account_created",
				"user_id", acct.ID,
				"tag", acct.Tag(),
				"attempt", attempt+1,
			)
			f.scheduleAutoJoin(acct.ID)
			return acct, nil
		}

		if db.IsUniqueViolation(err, store.ConstraintUsernameDiscriminator) {
			// lost the race to a concurrent registration of the same pair
			f.log.Debug("discriminator_write_collision",
				"username", username,
				"discriminator", discriminator,
				"attempt", attempt+1,
			)
			continue
		}
		if db.IsUniqueViolation(err, store.ConstraintEmail) {
			return nil, fieldError("email", CodeEmailAlreadyUsed, "Email is already registered")
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	return nil, fieldError("username", CodeUsernameTooManyUsers,
		"Too many users have this username, please try another")
}

// scheduleAutoJoin queues the best-effort default-guild join. Errors are
// logged by the runner and never reach the registration response.
func (f *Factory) scheduleAutoJoin(userID string) {
	guilds := f.policy.AutoJoinGuilds
	if len(guilds) == 0 || f.tasks == nil {
		return
	}
	f.tasks.Submit(Task{
		Name: "auto_join_guilds",
		Run: func(ctx context.Context) error {
			var firstErr error
			for _, guildID := range guilds {
				if err := f.store.AddGuildMember(ctx, guildID, userID); err != nil {
					f.log.Warn("auto_join_failed", "user_id", userID, "guild_id", guildID, "error", err)
					if firstErr == nil {
						firstErr = err
					}
				}
			}
			return firstErr
		},
	})
}
