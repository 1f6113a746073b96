package identity

import (
	"context"
	"fmt"
	"math/rand/v2"
)

// MaxDiscriminatorAttempts bounds the candidate loop. A username that fails
// this many random draws is saturated enough that the client should pick
// another name instead of us scanning the whole space.
const MaxDiscriminatorAttempts = 5

// ErrDiscriminatorExhausted is returned when every allocation attempt
// collided. It is a client-visible outcome, not a server fault.
type ErrDiscriminatorExhausted struct {
	Username string
}

func (e *ErrDiscriminatorExhausted) Error() string {
	return fmt.Sprintf("no free discriminator for username %q", e.Username)
}

// TakenFunc reports whether (username, discriminator) is already held by an
// active account.
type TakenFunc func(ctx context.Context, username, discriminator string) (bool, error)

// AllocateDiscriminator draws 4-digit candidates uniformly from [0001,9999]
// until one is free, up to MaxDiscriminatorAttempts. "0000" is reserved for
// system and migrated accounts and is never generated.
//
// The check here is optimistic: a concurrent registration can grab the same
// pair between this check and the insert. The partial unique index on the
// accounts table is the real arbiter; callers must treat a unique violation
// at write time as a retryable race and re-run allocation.
func AllocateDiscriminator(ctx context.Context, taken TakenFunc, username string) (string, error) {
	for attempt := 0; attempt < MaxDiscriminatorAttempts; attempt++ {
		candidate := fmt.Sprintf("%04d", rand.IntN(9999)+1)

		inUse, err := taken(ctx, username, candidate)
		if err != nil {
			return "", fmt.Errorf("discriminator lookup: %w", err)
		}
		if !inUse {
			return candidate, nil
		}
	}
	return "", &ErrDiscriminatorExhausted{Username: username}
}
