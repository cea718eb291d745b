package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/shortlyhq/shortly/internal/errx"
)

// PasswordHasher is a one-way password hash with a verify operation.
// Implementations should be safe for concurrent use.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// bcryptHasher implements PasswordHasher using bcrypt with a tunable cost.
type bcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a bcrypt-backed PasswordHasher. Costs outside the
// valid bcrypt range fall back to the library default.
func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (h *bcryptHasher) Hash(password string) (string, error) {
	const op = "auth.bcryptHasher.Hash"

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", errx.E(op, errx.Internal, err)
	}
	return string(hashed), nil
}

// Verify returns a nil error when password matches hash. A mismatch is
// returned as ErrPasswordMismatch; callers decide how to surface it.
func (h *bcryptHasher) Verify(hash, password string) error {
	const op = "auth.bcryptHasher.Verify"

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return errx.E(op, errx.Unauthorized, ErrPasswordMismatch)
	}
	return nil
}
