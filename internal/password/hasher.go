// Package password hashes and verifies user passwords with bcrypt.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/utafrali/bookshelf/pkg/errors"
)

// DefaultCost is the bcrypt work factor used in production.
const DefaultCost = 12

// Hasher is safe for concurrent use.
type Hasher struct {
	cost      int
	dummyHash []byte
}

// NewHasher returns a Hasher with the given bcrypt cost. Costs outside
// bcrypt's accepted range fall back to DefaultCost. The throwaway hash used by
// VerifyDummy is generated here so no request pays for it.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	// Cannot fail: the cost is in range and the input is under 72 bytes.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("bookshelf-dummy-password"), cost)
	return &Hasher{cost: cost, dummyHash: dummy}
}

// Cost returns the configured work factor.
func (h *Hasher) Cost() int { return h.cost }

// Hash returns a salted bcrypt hash of plaintext in modular-crypt form.
func (h *Hasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", apperrors.Hashing(fmt.Errorf("generate hash: %w", err))
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches hash. A mismatch is (false, nil);
// a hash that cannot be parsed is (false, Hashing error).
func (h *Hasher) Verify(plaintext, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, apperrors.Hashing(fmt.Errorf("compare hash: %w", err))
	}
}

// VerifyDummy burns one full-cost comparison against a throwaway hash. Login
// calls it for unknown emails so they take as long as a wrong password.
func (h *Hasher) VerifyDummy(plaintext string) {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(plaintext))
}
