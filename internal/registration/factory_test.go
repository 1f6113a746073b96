package registration

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"user-directory/internal/store"
)

func newTestFactory(t *testing.T, st Store) *Factory {
	t.Helper()
	policy := openPolicy()
	guard := NewGuard(testLogger(), policy, st, nil, nil)
	f, err := NewFactory(testLogger(), policy, st, guard, testSnowflake(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestFactory_Register(t *testing.T) {
	st := newMemStore()
	f := newTestFactory(t, st)

	in := validInput()
	in.Email = "a.lice+hello@gmail.com"
	in.Fingerprint = "device-1"

	acct, err := f.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if acct.ID == "" {
		t.Error("account has no id")
	}
	if acct.Username != "alice" {
		t.Errorf("username = %q", acct.Username)
	}
	if !regexp.MustCompile(`^[0-9]{4}$`).MatchString(acct.Discriminator) {
		t.Errorf("discriminator %q is not four digits", acct.Discriminator)
	}
	if acct.Discriminator == "0000" {
		t.Error("reserved discriminator allocated")
	}
	if acct.Email == nil || *acct.Email != "alice@gmail.com" {
		t.Errorf("email not canonicalized: %v", acct.Email)
	}
	if acct.PasswordHash == in.Password {
		t.Error("password stored in clear")
	}

	stored, ok := st.accounts[acct.ID]
	if !ok {
		t.Fatal("account not persisted")
	}
	if stored.Tag() != acct.Username+"#"+acct.Discriminator {
		t.Errorf("tag = %q", stored.Tag())
	}
	settings, ok := st.settings[acct.ID]
	if !ok {
		t.Fatal("settings row not persisted with account")
	}
	if settings.Locale != "en-US" {
		t.Errorf("locale = %q", settings.Locale)
	}
	if !st.fingerprints["device-1"] {
		t.Error("fingerprint not recorded")
	}
}

func TestFactory_SanitizesUsername(t *testing.T) {
	st := newMemStore()
	f := newTestFactory(t, st)

	in := validInput()
	in.Username = "al\bice\u200d"

	acct, err := f.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.Username != "alice" {
		t.Errorf("username = %q, control characters not stripped", acct.Username)
	}
}

func TestFactory_RejectsShortUsername(t *testing.T) {
	f := newTestFactory(t, newMemStore())

	in := validInput()
	in.Username = "a\u200d\u200d" // one visible rune after sanitization

	_, err := f.Register(context.Background(), in)
	expectFieldCode(t, err, "username", CodeFieldBadLength)
}

func TestFactory_RetriesOnLateCollision(t *testing.T) {
	st := newMemStore()
	st.createHook = func(call int) error {
		if call == 1 {
			return uniqueViolation(store.ConstraintUsernameDiscriminator)
		}
		return nil
	}
	f := newTestFactory(t, st)

	acct, err := f.Register(context.Background(), validInput())
	if err != nil {
		t.Fatalf("expected recovery from write race, got %v", err)
	}
	if st.createCalls != 2 {
		t.Errorf("createCalls = %d, want 2", st.createCalls)
	}
	if _, ok := st.accounts[acct.ID]; !ok {
		t.Error("account not persisted after retry")
	}
}

func TestFactory_GivesUpAfterPersistentCollisions(t *testing.T) {
	st := newMemStore()
	st.createHook = func(call int) error {
		return uniqueViolation(store.ConstraintUsernameDiscriminator)
	}
	f := newTestFactory(t, st)

	_, err := f.Register(context.Background(), validInput())
	expectFieldCode(t, err, "username", CodeUsernameTooManyUsers)
	if st.createCalls != 5 {
		t.Errorf("createCalls = %d, want 5", st.createCalls)
	}
}

// saturatedStore reports every discriminator as taken, simulating a
// username with no free pairs left.
type saturatedStore struct {
	*memStore
}

func (s *saturatedStore) DiscriminatorTaken(ctx context.Context, username, discriminator string) (bool, error) {
	return true, nil
}

func TestFactory_SaturatedUsername(t *testing.T) {
	st := &saturatedStore{memStore: newMemStore()}
	f := newTestFactory(t, st)

	_, err := f.Register(context.Background(), validInput())
	expectFieldCode(t, err, "username", CodeUsernameTooManyUsers)
	if st.createCalls != 0 {
		t.Errorf("createCalls = %d, allocation should fail before any write", st.createCalls)
	}
}

func TestFactory_EmailWriteRace(t *testing.T) {
	st := newMemStore()
	st.createHook = func(call int) error {
		return uniqueViolation(store.ConstraintEmail)
	}
	f := newTestFactory(t, st)

	in := validInput()
	in.Email = "alice@example.com"

	_, err := f.Register(context.Background(), in)
	expectFieldCode(t, err, "email", CodeEmailAlreadyUsed)
	if st.createCalls != 1 {
		t.Errorf("createCalls = %d, email race is not retryable", st.createCalls)
	}
}

func TestFactory_GuardRejectionStopsCreation(t *testing.T) {
	st := newMemStore()
	f := newTestFactory(t, st)

	in := validInput()
	in.Consent = false

	_, err := f.Register(context.Background(), in)
	var fe FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldErrors, got %v", err)
	}
	if st.createCalls != 0 {
		t.Errorf("createCalls = %d, guard rejection must precede writes", st.createCalls)
	}
}

func TestFactory_AutoJoin(t *testing.T) {
	st := newMemStore()
	policy := openPolicy()
	policy.AutoJoinGuilds = []string{"guild-a", "guild-b"}

	tasks := NewTaskRunner(testLogger(), 8)
	tasks.Start(1)

	guard := NewGuard(testLogger(), policy, st, nil, nil)
	f, err := NewFactory(testLogger(), policy, st, guard, testSnowflake(t), tasks)
	if err != nil {
		t.Fatal(err)
	}

	acct, err := f.Register(context.Background(), validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tasks.Stop() // drain the detached join before asserting

	for _, guild := range policy.AutoJoinGuilds {
		members := st.guildMembers(guild)
		if len(members) != 1 || members[0] != acct.ID {
			t.Errorf("guild %s members = %v, want [%s]", guild, members, acct.ID)
		}
	}
}
