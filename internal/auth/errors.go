package auth

import "errors"

// Sentinel errors for credential failures. They travel inside errx.Error
// values so handlers can pick a precise response code with errors.Is while
// the errx.Kind still drives the HTTP status.
var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenMalformed   = errors.New("token is malformed or has an invalid signature")
	ErrTokenNotFound    = errors.New("refresh token not found")
	ErrUserNotFound     = errors.New("user associated with token not found")
	ErrPasswordMismatch = errors.New("password does not match")

	ErrMissingAuthHeader = errors.New("authorization header is required")
	ErrInvalidAuthFormat = errors.New("authorization header must use the Bearer scheme")
	ErrEmptyToken        = errors.New("bearer token is empty")
)
