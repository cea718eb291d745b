package account

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shortlyhq/shortly/internal/auth"
	"github.com/shortlyhq/shortly/internal/errx"
	"github.com/shortlyhq/shortly/internal/httpx"
)

// ShortLinksQuota is reported in the profile response. Creation is not
// actually capped yet; the dashboard displays this as the plan limit.
const ShortLinksQuota = 100

// RegisterHTTPRequest represents the JSON body for registration.
type RegisterHTTPRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginHTTPRequest represents the JSON body for login.
type LoginHTTPRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LogoutHTTPRequest represents the JSON body for logout.
type LogoutHTTPRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// UpdateProfileHTTPRequest represents the JSON body for profile updates.
type UpdateProfileHTTPRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// ChangePasswordHTTPRequest represents the JSON body for password changes.
type ChangePasswordHTTPRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// UserResponse is the public JSON view of a user.
type UserResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// TokenPairResponse carries a freshly issued token pair.
type TokenPairResponse struct {
	User         *UserResponse `json:"user,omitempty"`
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
}

// ProfileResponse is the /user/me payload.
type ProfileResponse struct {
	UserResponse
	ShortLinksCount int64 `json:"shortLinksCount"`
	ShortLinksQuota int   `json:"shortLinksQuota"`
}

// Handler provides HTTP handlers for registration, authentication, and
// profile management.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service Service
	Logger  *slog.Logger
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service: cfg.Service,
		logger:  logger,
	}
}

func toUserResponse(u User) UserResponse {
	return UserResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		Name:        u.Name,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

// Register handles POST /api/v1/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[RegisterHTTPRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	user, pair, err := h.service.Register(ctx, RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.handleAccountError(ctx, w, err, map[errx.Kind]string{
			errx.Conflict: "user_already_exists",
		})
		return
	}

	logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())

	userResp := toUserResponse(user)
	httpx.WriteJSON(w, http.StatusCreated, TokenPairResponse{
		User:         &userResp,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[LoginHTTPRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	pair, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.handleAccountError(ctx, w, err, map[errx.Kind]string{
			errx.Unauthorized: "invalid_credentials",
		})
		return
	}

	logger.InfoContext(ctx, "user logged in", "email", req.Email)

	httpx.WriteJSON(w, http.StatusOK, TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Refresh handles POST /api/v1/auth/refresh. The refresh token is presented
// as a bearer credential.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	token, err := auth.BearerToken(r)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "missing_refresh_token",
			"Refresh token required in Authorization header",
			map[string]string{"headerFormat": "Bearer <refresh_token>"})
		return
	}

	access, err := h.service.Refresh(ctx, token)
	if err != nil {
		logger.WarnContext(ctx, "refresh rejected", "error", err.Error())
		httpx.WriteError(w, http.StatusUnauthorized, refreshErrorCode(err),
			err.Error(), nil)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"accessToken": access})
}

// Logout handles POST /api/v1/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[LogoutHTTPRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	if err := h.service.Logout(ctx, req.RefreshToken); err != nil {
		h.handleAccountError(ctx, w, err, map[errx.Kind]string{
			errx.NotFound: "token_not_found",
		})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/user/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized",
			"authentication required", nil)
		return
	}

	profile, err := h.service.Profile(ctx, identity.UserID)
	if err != nil {
		h.handleAccountError(ctx, w, err, map[errx.Kind]string{
			errx.NotFound: "user_not_found",
		})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, ProfileResponse{
		UserResponse:    toUserResponse(profile.User),
		ShortLinksCount: profile.LinkCount,
		ShortLinksQuota: ShortLinksQuota,
	})
}

// UpdateMe handles PUT /api/v1/user/me.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	identity, ok := auth.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized",
			"authentication required", nil)
		return
	}

	req, err := httpx.DecodeJSON[UpdateProfileHTTPRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	user, err := h.service.UpdateProfile(ctx, identity.UserID, UserUpdate{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		h.handleAccountError(ctx, w, err, map[errx.Kind]string{
			errx.NotFound: "user_not_found",
		})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"email": user.Email,
		"name":  user.Name,
	})
}

// ChangePassword handles PUT /api/v1/user/password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	identity, ok := auth.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized",
			"authentication required", nil)
		return
	}

	req, err := httpx.DecodeJSON[ChangePasswordHTTPRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	if err := h.service.ChangePassword(ctx, identity.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.handleAccountError(ctx, w, err, map[errx.Kind]string{
			errx.NotFound: "user_not_found",
		})
		return
	}

	logger.InfoContext(ctx, "password changed, sessions revoked",
		"user_id", identity.UserID.String())

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Password updated successfully",
	})
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With(
		"request_id", httpx.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

// handleAccountError renders a service error, letting callers override the
// response code for specific kinds.
func (h *Handler) handleAccountError(ctx context.Context, w http.ResponseWriter, err error, codes map[errx.Kind]string) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind,
		"operation", errx.OpOf(err),
	}

	code, ok := codes[kind]
	if !ok {
		code = httpx.ErrorKindToCode(kind)
	}

	switch kind {
	case errx.Invalid, errx.NotFound, errx.Conflict, errx.Unauthorized:
		h.logger.WarnContext(ctx, "account request rejected", logAttrs...)
		httpx.WriteError(w, httpx.ErrorKindToStatus(kind), code, errx.MessageOf(err), nil)

	default:
		h.logger.ErrorContext(ctx, "unexpected account error", logAttrs...)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to process this request at this time. Please try again.", nil)
	}
}

// refreshErrorCode maps token sentinels onto the API's stable refresh codes.
func refreshErrorCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "expired_refresh_token"
	case errors.Is(err, auth.ErrTokenNotFound):
		return "invalid_refresh_token"
	case errors.Is(err, auth.ErrUserNotFound):
		return "user_not_found"
	default:
		return "invalid_refresh_token"
	}
}
