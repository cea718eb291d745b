package account

import (
	"context"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly/internal/auth"
)

// Repository defines the persistence operations for users and their refresh
// tokens. It abstracts the underlying data store; uniqueness violations
// surface as errx.Conflict and absent rows as errx.NotFound, so callers
// never reason about raw storage error codes.
type Repository interface {
	auth.TokenStore
	auth.SubjectSource

	CreateUser(ctx context.Context, user User) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, upd UserUpdate) (User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID) error

	// ChangePassword stores the new password hash and deletes every refresh
	// token for the user in a single transaction: either both commit or
	// neither does.
	ChangePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}
