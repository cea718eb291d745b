package account

import (
	"time"

	"github.com/google/uuid"
)

// User is an account identity. Email uniqueness is enforced by the store,
// case-sensitive as stored.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Name         string
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// UserUpdate carries the optional profile fields; nil means "leave as is".
type UserUpdate struct {
	Name  *string
	Email *string
}
