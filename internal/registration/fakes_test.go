package registration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"user-directory/internal/models"
	"user-directory/internal/security"
	"user-directory/internal/store"
)

// memStore is an in-memory Store honoring the same contracts as the pgx
// store: canonical-email and pair uniqueness, all-or-nothing create.
type memStore struct {
	mu           sync.Mutex
	emails       map[string]bool
	fingerprints map[string]bool
	pairs        map[string]bool // "username#discriminator"
	accounts     map[string]*models.Account
	settings     map[string]*models.Settings
	members      map[string][]string

	createCalls int
	createHook  func(call int) error // optional injected failure
}

func newMemStore() *memStore {
	return &memStore{
		emails:       make(map[string]bool),
		fingerprints: make(map[string]bool),
		pairs:        make(map[string]bool),
		accounts:     make(map[string]*models.Account),
		settings:     make(map[string]*models.Settings),
		members:      make(map[string][]string),
	}
}

func (m *memStore) EmailTaken(ctx context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emails[email], nil
}

func (m *memStore) FingerprintSeen(ctx context.Context, fp string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fingerprints[fp], nil
}

func (m *memStore) DiscriminatorTaken(ctx context.Context, username, discriminator string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pairs[username+"#"+discriminator], nil
}

func (m *memStore) CreateAccount(ctx context.Context, acct *models.Account, settings *models.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls++
	if m.createHook != nil {
		if err := m.createHook(m.createCalls); err != nil {
			return err
		}
	}

	key := acct.Username + "#" + acct.Discriminator
	if m.pairs[key] {
		return uniqueViolation(store.ConstraintUsernameDiscriminator)
	}
	if acct.Email != nil && m.emails[*acct.Email] {
		return uniqueViolation(store.ConstraintEmail)
	}

	// both rows or neither
	m.pairs[key] = true
	if acct.Email != nil {
		m.emails[*acct.Email] = true
	}
	for _, fp := range acct.Fingerprints {
		m.fingerprints[fp] = true
	}
	m.accounts[acct.ID] = acct
	m.settings[settings.UserID] = settings
	return nil
}

func (m *memStore) AddGuildMember(ctx context.Context, guildID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[guildID] = append(m.members[guildID], userID)
	return nil
}

func (m *memStore) guildMembers(guildID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.members[guildID]...)
}

func uniqueViolation(constraint string) error {
	return fmt.Errorf("insert: %w", &pgconn.PgError{
		Code:           "23505",
		ConstraintName: constraint,
		Message:        "duplicate key value violates unique constraint",
	})
}

type fakeOrigin struct {
	proxy bool
	err   error
}

func (f *fakeOrigin) IsProxy(ctx context.Context, ip string) (bool, error) {
	return f.proxy, f.err
}

type fakeCaptcha struct {
	accept bool
}

func (f *fakeCaptcha) Verify(ctx context.Context, key, remoteIP string) bool {
	return f.accept
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testSnowflake(t *testing.T) *security.Snowflake {
	t.Helper()
	flake, err := security.NewSnowflake(1)
	if err != nil {
		t.Fatal(err)
	}
	return flake
}
