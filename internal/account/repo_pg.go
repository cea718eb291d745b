package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shortlyhq/shortly/internal/auth"
	"github.com/shortlyhq/shortly/internal/errx"
	"github.com/shortlyhq/shortly/internal/idgen"
)

type repo struct {
	pool *pgxpool.Pool
	ids  idgen.Generator
}

// RepositoryConfig holds configuration for the repository.
type RepositoryConfig struct {
	IDGenerator idgen.Generator
}

// NewRepository creates a PostgreSQL-backed Repository.
func NewRepository(pool *pgxpool.Pool, config *RepositoryConfig) Repository {
	if config == nil {
		config = &RepositoryConfig{}
	}

	if config.IDGenerator == nil {
		config.IDGenerator = idgen.NewV7(idgen.WithRetries(1))
	}

	return &repo{
		pool: pool,
		ids:  config.IDGenerator,
	}
}

func mustTime(ts pgtype.Timestamptz, field string) (time.Time, error) {
	if !ts.Valid {
		return time.Time{}, fmt.Errorf("%s unexpectedly NULL", field)
	}
	return ts.Time, nil
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

func mapUserError(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errx.E(op, errx.NotFound, err)

	case isEmailUniqueViolation(err):
		return errx.E(op, errx.Conflict, err)

	default:
		return errx.E(op, errx.Unavailable, err)
	}
}

const userColumns = "id, email, password_hash, name, created_at, last_login_at"

func scanUser(row pgx.Row) (User, error) {
	var (
		u           User
		createdAt   pgtype.Timestamptz
		lastLoginAt pgtype.Timestamptz
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &createdAt, &lastLoginAt); err != nil {
		return User{}, err
	}

	created, err := mustTime(createdAt, "created_at")
	if err != nil {
		return User{}, err
	}
	u.CreatedAt = created
	u.LastLoginAt = timePtr(lastLoginAt)
	return u, nil
}

func (r *repo) CreateUser(ctx context.Context, user User) (User, error) {
	const op = "account.repo.CreateUser"

	if user.ID == uuid.Nil {
		id, err := r.ids.Generate()
		if err != nil {
			return User{}, errx.E(op, errx.Unavailable, err)
		}
		user.ID = id
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash, name)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+userColumns,
		user.ID, user.Email, user.PasswordHash, user.Name,
	)

	created, err := scanUser(row)
	if err != nil {
		return User{}, mapUserError(op, err)
	}
	return created, nil
}

func (r *repo) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "account.repo.GetUserByEmail"

	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)

	user, err := scanUser(row)
	if err != nil {
		return User{}, mapUserError(op, err)
	}
	return user, nil
}

func (r *repo) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	const op = "account.repo.GetUserByID"

	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	user, err := scanUser(row)
	if err != nil {
		return User{}, mapUserError(op, err)
	}
	return user, nil
}

func (r *repo) UpdateUser(ctx context.Context, id uuid.UUID, upd UserUpdate) (User, error) {
	const op = "account.repo.UpdateUser"

	row := r.pool.QueryRow(ctx,
		`UPDATE users
		 SET name = COALESCE($2, name), email = COALESCE($3, email)
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, upd.Name, upd.Email,
	)

	user, err := scanUser(row)
	if err != nil {
		return User{}, mapUserError(op, err)
	}
	return user, nil
}

func (r *repo) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	const op = "account.repo.TouchLastLogin"

	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET last_login_at = now() WHERE id = $1`, id)
	if err != nil {
		return mapUserError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return errx.E(op, errx.NotFound, pgx.ErrNoRows)
	}
	return nil
}

// ChangePassword commits the new hash and the mass token revocation
// atomically, so a changed password never coexists with still-valid old
// sessions.
func (r *repo) ChangePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	const op = "account.repo.ChangePassword"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errx.E(op, errx.Unavailable, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return mapUserError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return errx.E(op, errx.NotFound, pgx.ErrNoRows)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1`, id); err != nil {
		return errx.E(op, errx.Unavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return errx.E(op, errx.Unavailable, err)
	}
	return nil
}

/***************
 * auth.SubjectSource
 ***************/

func (r *repo) Subject(ctx context.Context, userID uuid.UUID) (auth.Subject, error) {
	const op = "account.repo.Subject"

	var s auth.Subject
	err := r.pool.QueryRow(ctx,
		`SELECT id, email FROM users WHERE id = $1`, userID,
	).Scan(&s.ID, &s.Email)
	if err != nil {
		return auth.Subject{}, mapUserError(op, err)
	}
	return s, nil
}

/***************
 * auth.TokenStore
 ***************/

func (r *repo) CreateRefreshToken(ctx context.Context, token auth.RefreshToken) error {
	const op = "account.repo.CreateRefreshToken"

	_, err := r.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (token, user_id, expires_at)
		 VALUES ($1, $2, $3)`,
		token.Token, token.UserID, token.ExpiresAt,
	)
	if err != nil {
		if isTokenUniqueViolation(err) {
			return errx.E(op, errx.Conflict, err)
		}
		return errx.E(op, errx.Unavailable, err)
	}
	return nil
}

func (r *repo) GetRefreshToken(ctx context.Context, token string) (auth.RefreshToken, error) {
	const op = "account.repo.GetRefreshToken"

	var (
		t         auth.RefreshToken
		expiresAt pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx,
		`SELECT token, user_id, expires_at FROM refresh_tokens WHERE token = $1`, token,
	).Scan(&t.Token, &t.UserID, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.RefreshToken{}, errx.E(op, errx.NotFound, err)
		}
		return auth.RefreshToken{}, errx.E(op, errx.Unavailable, err)
	}

	expiry, err := mustTime(expiresAt, "expires_at")
	if err != nil {
		return auth.RefreshToken{}, errx.E(op, errx.Unavailable, err)
	}
	t.ExpiresAt = expiry
	return t, nil
}

func (r *repo) DeleteRefreshToken(ctx context.Context, token string) error {
	const op = "account.repo.DeleteRefreshToken"

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE token = $1`, token)
	if err != nil {
		return errx.E(op, errx.Unavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return errx.E(op, errx.NotFound, pgx.ErrNoRows)
	}
	return nil
}
