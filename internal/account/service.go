package account

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly/internal/auth"
	"github.com/shortlyhq/shortly/internal/errx"
)

const (
	MinRegisterPasswordLength = 6
	MinNewPasswordLength      = 8
	MinNameLength             = 2
	MaxNameLength             = 100
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ErrInvalidCredentials is returned for unknown emails and wrong passwords
// alike, so login failures don't reveal which of the two was wrong.
var ErrInvalidCredentials = errors.New("invalid email or password")

// RegisterRequest represents the parameters for creating an account.
type RegisterRequest struct {
	Email    string
	Password string
	Name     string
}

// Profile is a user together with their link count.
type Profile struct {
	User      User
	LinkCount int64
}

// LinkCounter reports how many short links a user owns.
type LinkCounter interface {
	CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)
}

// Service defines the account business logic: registration, login, the
// refresh-token lifecycle, and profile management.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (User, auth.TokenPair, error)
	Login(ctx context.Context, email, password string) (auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, refreshToken string) error
	Profile(ctx context.Context, userID uuid.UUID) (Profile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, upd UserUpdate) (User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error
}

type service struct {
	repo   Repository
	tokens *auth.TokenService
	hasher auth.PasswordHasher
	links  LinkCounter
}

// NewService creates a new account service.
func NewService(repo Repository, tokens *auth.TokenService, hasher auth.PasswordHasher, links LinkCounter) Service {
	return &service{
		repo:   repo,
		tokens: tokens,
		hasher: hasher,
		links:  links,
	}
}

// Register creates a user and issues their first token pair. A duplicate
// email surfaces as Conflict from the store's unique constraint; there is no
// prior existence check to race against.
func (s *service) Register(ctx context.Context, req RegisterRequest) (User, auth.TokenPair, error) {
	const op = "account.service.Register"

	if req.Email == "" || req.Password == "" || req.Name == "" {
		return User{}, auth.TokenPair{}, errx.E(op, errx.Invalid,
			errors.New("email, password, and name are required"))
	}
	if len(req.Password) < MinRegisterPasswordLength {
		return User{}, auth.TokenPair{}, errx.E(op, errx.Invalid,
			fmt.Errorf("password must be at least %d characters long", MinRegisterPasswordLength))
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return User{}, auth.TokenPair{}, errx.E(op, errx.KindOf(err), err)
	}

	user, err := s.repo.CreateUser(ctx, User{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
	})
	if err != nil {
		return User{}, auth.TokenPair{}, errx.E(op, errx.KindOf(err), err)
	}

	pair, err := s.tokens.IssuePair(ctx, user.ID, user.Email)
	if err != nil {
		return User{}, auth.TokenPair{}, errx.E(op, errx.KindOf(err), err)
	}

	return user, pair, nil
}

func (s *service) Login(ctx context.Context, email, password string) (auth.TokenPair, error) {
	const op = "account.service.Login"

	if email == "" || password == "" {
		return auth.TokenPair{}, errx.E(op, errx.Invalid,
			errors.New("email and password are required"))
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errx.KindOf(err) == errx.NotFound {
			return auth.TokenPair{}, errx.E(op, errx.Unauthorized, ErrInvalidCredentials)
		}
		return auth.TokenPair{}, errx.E(op, errx.KindOf(err), err)
	}

	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		return auth.TokenPair{}, errx.E(op, errx.Unauthorized, ErrInvalidCredentials)
	}

	if err := s.repo.TouchLastLogin(ctx, user.ID); err != nil {
		return auth.TokenPair{}, errx.E(op, errx.KindOf(err), err)
	}

	pair, err := s.tokens.IssuePair(ctx, user.ID, user.Email)
	if err != nil {
		return auth.TokenPair{}, errx.E(op, errx.KindOf(err), err)
	}
	return pair, nil
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	return s.tokens.Refresh(ctx, refreshToken)
}

func (s *service) Logout(ctx context.Context, refreshToken string) error {
	const op = "account.service.Logout"

	if refreshToken == "" {
		return errx.E(op, errx.Invalid, errors.New("refresh token is required"))
	}
	return s.tokens.Revoke(ctx, refreshToken)
}

func (s *service) Profile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	const op = "account.service.Profile"

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return Profile{}, errx.E(op, errx.KindOf(err), err)
	}

	count, err := s.links.CountByOwner(ctx, userID)
	if err != nil {
		return Profile{}, errx.E(op, errx.KindOf(err), err)
	}

	return Profile{User: user, LinkCount: count}, nil
}

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, upd UserUpdate) (User, error) {
	const op = "account.service.UpdateProfile"

	if upd.Name == nil && upd.Email == nil {
		return User{}, errx.E(op, errx.Invalid,
			errors.New("at least one field (name or email) must be provided"))
	}
	if upd.Name != nil && (len(*upd.Name) < MinNameLength || len(*upd.Name) > MaxNameLength) {
		return User{}, errx.E(op, errx.Invalid,
			fmt.Errorf("name must be between %d and %d characters long", MinNameLength, MaxNameLength))
	}
	if upd.Email != nil && !emailPattern.MatchString(*upd.Email) {
		return User{}, errx.E(op, errx.Invalid, errors.New("invalid email format"))
	}

	user, err := s.repo.UpdateUser(ctx, userID, upd)
	if err != nil {
		return User{}, errx.E(op, errx.KindOf(err), err)
	}
	return user, nil
}

// ChangePassword verifies the current password, then commits the new hash
// together with the revocation of every outstanding refresh token.
func (s *service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	const op = "account.service.ChangePassword"

	if current == "" || next == "" {
		return errx.E(op, errx.Invalid,
			errors.New("both currentPassword and newPassword are required"))
	}
	if len(next) < MinNewPasswordLength {
		return errx.E(op, errx.Invalid,
			fmt.Errorf("new password must be at least %d characters long", MinNewPasswordLength))
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return errx.E(op, errx.KindOf(err), err)
	}

	if err := s.hasher.Verify(user.PasswordHash, current); err != nil {
		return errx.E(op, errx.Invalid, errors.New("current password is incorrect"))
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return errx.E(op, errx.KindOf(err), err)
	}

	if err := s.repo.ChangePassword(ctx, userID, hash); err != nil {
		return errx.E(op, errx.KindOf(err), err)
	}
	return nil
}
