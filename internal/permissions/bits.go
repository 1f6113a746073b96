// Package permissions implements the platform capability bitset attached to
// every account. The set is 128 bits wide; positions below 32 are reserved
// for platform-defined rights and positions 32 and up are free for
// deployment-specific custom flags. Values cross the wire as base-10 decimal
// strings because several client ecosystems cannot represent integers wider
// than 53 bits without precision loss.
package permissions

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"strings"
)

// Bits is a 128-bit flag set. The zero value has no flags set. All operations
// return new values; a Bits is never mutated in place.
type Bits struct {
	hi, lo uint64
}

// Platform rights. Bit positions are append-only: once a position has a
// meaning it is never reassigned.
var (
	Operator             = bit(0) // all rights, implicitly
	ManageUsers          = bit(1)
	ManageGuilds         = bit(2)
	ManageMessages       = bit(3)
	ManageRateLimits     = bit(4)
	ManageRoutes         = bit(5)
	ManageGuildDirectory = bit(6)
	CreateGuilds         = bit(7)
	JoinGuilds           = bit(8)
	CreateInvites        = bit(9)
	UseInvites           = bit(10)
	SendMessages         = bit(11)
	SendBackdatedEvents  = bit(12)
	UseVoice             = bit(13)
	UseVideo             = bit(14)
	SelfEdit             = bit(15)
	SelfDelete           = bit(16)
	CreateApplications   = bit(17)
	CreateConnections    = bit(18)
	BypassRateLimits     = bit(19)
	CreateDirectMessages = bit(20)
	CreateGroupChats     = bit(21)
	CreateReactions      = bit(22)
	DeleteOwnReactions   = bit(23)
)

// customOffset is the first bit position available to deployments.
const customOffset = 32

func bit(pos uint) Bits {
	if pos >= 128 {
		panic(fmt.Sprintf("permissions: bit position %d out of range", pos))
	}
	if pos < 64 {
		return Bits{lo: 1 << pos}
	}
	return Bits{hi: 1 << (pos - 64)}
}

// Custom returns the deployment-specific flag n, offset past the reserved
// platform range.
func Custom(n uint) Bits {
	return bit(customOffset + n)
}

// Has reports whether every bit of flag is set in b. Operator short-circuits:
// an operator holds every right.
func (b Bits) Has(flag Bits) bool {
	if b.lo&Operator.lo != 0 {
		return true
	}
	return b.hi&flag.hi == flag.hi && b.lo&flag.lo == flag.lo
}

// Add returns b with every bit of the given flags set.
func (b Bits) Add(flags ...Bits) Bits {
	for _, f := range flags {
		b.hi |= f.hi
		b.lo |= f.lo
	}
	return b
}

// Remove returns b with every bit of the given flags cleared.
func (b Bits) Remove(flags ...Bits) Bits {
	for _, f := range flags {
		b.hi &^= f.hi
		b.lo &^= f.lo
	}
	return b
}

func (b Bits) IsZero() bool {
	return b.hi == 0 && b.lo == 0
}

// Count returns the number of set bits.
func (b Bits) Count() int {
	return bits.OnesCount64(b.hi) + bits.OnesCount64(b.lo)
}

// String renders the set as a base-10 decimal. The rendering is lossless for
// every bit, including positions this build has no name for.
func (b Bits) String() string {
	n := new(big.Int).SetUint64(b.hi)
	n.Lsh(n, 64)
	n.Or(n, new(big.Int).SetUint64(b.lo))
	return n.String()
}

var maxValue = new(big.Int).Lsh(big.NewInt(1), 128)

// Parse decodes a base-10 decimal produced by String. Unknown bits survive
// the round trip untouched. Negative values and values that do not fit in
// 128 bits are rejected.
func Parse(s string) (Bits, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Bits{}, errors.New("permissions: empty value")
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Bits{}, fmt.Errorf("permissions: %q is not a decimal integer", s)
	}
	if n.Sign() < 0 {
		return Bits{}, fmt.Errorf("permissions: %q is negative", s)
	}
	if n.Cmp(maxValue) >= 0 {
		return Bits{}, fmt.Errorf("permissions: %q exceeds 128 bits", s)
	}
	var b Bits
	b.lo = n.Uint64()
	b.hi = new(big.Int).Rsh(n, 64).Uint64()
	return b, nil
}

// MarshalJSON encodes the set as a quoted decimal string.
func (b Bits) MarshalJSON() ([]byte, error) {
	return []byte(`"` + b.String() + `"`), nil
}

func (b *Bits) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
