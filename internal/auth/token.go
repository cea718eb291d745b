package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/shortlyhq/shortly/internal/errx"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// RefreshToken is a store-backed, individually revocable credential used
// solely to mint new access tokens.
type RefreshToken struct {
	Token     string
	UserID    uuid.UUID
	ExpiresAt time.Time
}

// TokenStore persists refresh tokens. Implementations enforce uniqueness on
// the token value and report a missing row as errx.NotFound.
type TokenStore interface {
	CreateRefreshToken(ctx context.Context, token RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
}

// Subject is the minimal user view the token service needs when minting a
// fresh access token during refresh.
type Subject struct {
	ID    uuid.UUID
	Email string
}

// SubjectSource re-reads the owning user of a refresh token, so that a
// deleted account cannot keep minting access tokens.
type SubjectSource interface {
	Subject(ctx context.Context, userID uuid.UUID) (Subject, error)
}

// TokenPair is the result of a successful registration or login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	Salt string `json:"salt"`
	jwt.RegisteredClaims
}

// TokenService issues, verifies, and revokes access and refresh tokens.
// Access tokens are stateless; refresh tokens are backed by the store for
// revocability. Expiry is checked lazily at verification time.
type TokenService struct {
	store         TokenStore
	users         SubjectSource
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// TokenServiceConfig holds configuration for the token service.
type TokenServiceConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration // default: 15m
	RefreshTTL    time.Duration // default: 7d
	Now           func() time.Time
}

// NewTokenService creates a new TokenService.
func NewTokenService(store TokenStore, users SubjectSource, cfg TokenServiceConfig) *TokenService {
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}

	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &TokenService{
		store:         store,
		users:         users,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           now,
	}
}

// IssuePair produces a signed access token embedding the user's identity and
// a signed refresh token with a fresh random salt, persisting the refresh
// token. The salt guarantees two tokens issued in the same instant differ.
func (s *TokenService) IssuePair(ctx context.Context, userID uuid.UUID, email string) (TokenPair, error) {
	const op = "auth.TokenService.IssuePair"

	now := s.now()

	access, err := s.signAccess(userID, email, now)
	if err != nil {
		return TokenPair{}, errx.E(op, errx.Internal, err)
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims{
		Salt: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	})
	refreshToken, err := refresh.SignedString(s.refreshSecret)
	if err != nil {
		return TokenPair{}, errx.E(op, errx.Internal, err)
	}

	err = s.store.CreateRefreshToken(ctx, RefreshToken{
		Token:     refreshToken,
		UserID:    userID,
		ExpiresAt: now.Add(s.refreshTTL),
	})
	if err != nil {
		return TokenPair{}, errx.E(op, errx.KindOf(err), err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refreshToken}, nil
}

// VerifyAccess checks the access token's signature and validity window and
// returns the embedded identity. It is side-effect-free and never touches
// the store.
func (s *TokenService) VerifyAccess(token string) (Identity, error) {
	const op = "auth.TokenService.VerifyAccess"

	var claims accessClaims
	_, err := s.parse(token, &claims, s.accessSecret)
	if err != nil {
		return Identity{}, errx.E(op, errx.Unauthorized, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, errx.E(op, errx.Unauthorized, ErrTokenMalformed)
	}

	return Identity{UserID: userID, Email: claims.Email}, nil
}

// Refresh validates a refresh token cryptographically and against the store,
// then issues a new access token. The refresh token itself is not rotated.
func (s *TokenService) Refresh(ctx context.Context, token string) (string, error) {
	const op = "auth.TokenService.Refresh"

	var claims refreshClaims
	if _, err := s.parse(token, &claims, s.refreshSecret); err != nil {
		return "", errx.E(op, errx.Unauthorized, err)
	}

	// The store is authoritative: a cryptographically valid token that has
	// been revoked must be rejected.
	stored, err := s.store.GetRefreshToken(ctx, token)
	if err != nil {
		if errx.KindOf(err) == errx.NotFound {
			return "", errx.E(op, errx.Unauthorized, ErrTokenNotFound)
		}
		return "", errx.E(op, errx.KindOf(err), err)
	}

	if stored.ExpiresAt.Before(s.now()) {
		return "", errx.E(op, errx.Unauthorized, ErrTokenExpired)
	}

	subject, err := s.users.Subject(ctx, stored.UserID)
	if err != nil {
		if errx.KindOf(err) == errx.NotFound {
			return "", errx.E(op, errx.Unauthorized, ErrUserNotFound)
		}
		return "", errx.E(op, errx.KindOf(err), err)
	}

	access, err := s.signAccess(subject.ID, subject.Email, s.now())
	if err != nil {
		return "", errx.E(op, errx.Internal, err)
	}
	return access, nil
}

// Revoke deletes the matching refresh token row. Revoking a token that does
// not exist fails with NotFound: "already logged out" is a reportable state,
// not a silent success.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	const op = "auth.TokenService.Revoke"

	if err := s.store.DeleteRefreshToken(ctx, token); err != nil {
		if errx.KindOf(err) == errx.NotFound {
			return errx.E(op, errx.NotFound, ErrTokenNotFound)
		}
		return errx.E(op, errx.KindOf(err), err)
	}
	return nil
}

func (s *TokenService) signAccess(userID uuid.UUID, email string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	})
	return token.SignedString(s.accessSecret)
}

// parse verifies signature and expiry, mapping jwt errors onto the package
// sentinels. The injected clock drives expiry so tests can travel in time.
func (s *TokenService) parse(token string, claims jwt.Claims, secret []byte) (*jwt.Token, error) {
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case err == nil && parsed.Valid:
		return parsed, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, ErrTokenMalformed
	}
}
