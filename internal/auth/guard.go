package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shortlyhq/shortly/internal/httpx"
)

const bearerPrefix = "Bearer "

// BearerToken pulls the token out of the Authorization header. No token is
// verified past a structurally invalid header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingAuthHeader
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrInvalidAuthFormat
	}
	token := header[len(bearerPrefix):]
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

// RequireAuth rejects requests without a valid bearer access token and
// attaches the verified identity to the request context.
func RequireAuth(tokens *TokenService, logger *slog.Logger) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			identity, err := tokens.VerifyAccess(token)
			if err != nil {
				logger.WarnContext(r.Context(), "access token rejected",
					"request_id", httpx.GetRequestID(r.Context()),
					"path", r.URL.Path,
					"error", err.Error(),
				)
				writeAuthError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// OptionalAuth attaches an identity when a valid bearer token is present and
// otherwise lets the request proceed as anonymous. Every extraction or
// verification failure is swallowed: this guards operations where
// authentication merely attaches ownership.
func OptionalAuth(tokens *TokenService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err == nil {
				if identity, verr := tokens.VerifyAccess(token); verr == nil {
					r = r.WithContext(WithIdentity(r.Context(), identity))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeAuthError maps credential failures onto stable machine-readable codes.
func writeAuthError(w http.ResponseWriter, err error) {
	code := "unauthorized"
	message := "authentication required"

	switch {
	case errors.Is(err, ErrMissingAuthHeader):
		code, message = "missing_authorization_header", "Authorization header is required"
	case errors.Is(err, ErrInvalidAuthFormat):
		code, message = "invalid_authorization_format", `Authorization header must start with "Bearer "`
	case errors.Is(err, ErrEmptyToken):
		code, message = "empty_access_token", "Access token is empty"
	case errors.Is(err, ErrTokenExpired):
		code, message = "token_expired", "Access token has expired"
	case errors.Is(err, ErrTokenMalformed):
		code, message = "invalid_token_format", "Invalid access token format"
	}

	httpx.WriteError(w, http.StatusUnauthorized, code, message, nil)
}
