package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shortlyhq/shortly/internal/auth"
	"github.com/shortlyhq/shortly/internal/errx"
	"github.com/shortlyhq/shortly/internal/httpx"
)

// CreateLinkHTTPRequest represents the JSON request body for creating a link.
type CreateLinkHTTPRequest struct {
	OriginalURL string `json:"originalUrl"`
	CustomSlug  string `json:"customSlug,omitempty"`
}

// UpdateLinkHTTPRequest represents the JSON request body for updating a link.
type UpdateLinkHTTPRequest struct {
	OriginalURL *string `json:"originalUrl,omitempty"`
	CustomSlug  *string `json:"customSlug,omitempty"`
}

// LinkResponse represents the JSON response for link operations.
type LinkResponse struct {
	Slug           string     `json:"slug"`
	OriginalURL    string     `json:"originalUrl"`
	ShortURL       string     `json:"shortUrl"`
	ClickCount     *int64     `json:"clickCount,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty"`
}

// ListLinksResponse is the paginated user-links payload.
type ListLinksResponse struct {
	Links      []LinkResponse `json:"links"`
	Pagination Pagination     `json:"pagination"`
}

// Handler provides HTTP handlers for the URL shortener service.
type Handler struct {
	service     Service
	logger      *slog.Logger
	baseURL     string
	fallbackURL string
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service     Service
	Logger      *slog.Logger
	BaseURL     string // Base URL for constructing short URLs (e.g., "https://short.ly")
	FallbackURL string // Destination for dead links; resolve never errors to a browser
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service:     cfg.Service,
		logger:      logger,
		baseURL:     cfg.BaseURL,
		fallbackURL: cfg.FallbackURL,
	}
}

func (h *Handler) shortURL(slug string) string {
	return fmt.Sprintf("%s/%s", h.baseURL, slug)
}

// CreateLink handles POST requests to create a new short link. Runs behind
// optional authentication: an identity, if present, merely attaches
// ownership.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[CreateLinkHTTPRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	if req.OriginalURL == "" {
		logger.WarnContext(ctx, "missing original url")
		httpx.WriteError(w, http.StatusBadRequest, "validation_error",
			"Original URL is required", nil)
		return
	}

	createReq := CreateLinkRequest{
		OriginalURL: req.OriginalURL,
		CustomSlug:  req.CustomSlug,
	}
	if identity, ok := auth.IdentityFrom(ctx); ok {
		ownerID := identity.UserID
		createReq.OwnerID = &ownerID
	}

	link, err := h.service.Create(ctx, createReq)
	if err != nil {
		h.handleLinkError(ctx, w, err)
		return
	}

	logger.InfoContext(ctx, "link created",
		"link_id", link.ID.String(),
		"slug", link.Slug,
		"custom_slug", req.CustomSlug != "",
		"owned", link.OwnerID != nil,
	)

	httpx.WriteJSON(w, http.StatusCreated, LinkResponse{
		Slug:        link.Slug,
		OriginalURL: link.OriginalURL,
		ShortURL:    h.shortURL(link.Slug),
	})
}

// LinkInfo handles GET requests for a link's metadata. Public; does not
// touch the click counter.
func (h *Handler) LinkInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	slug := r.PathValue("slug")
	link, err := h.service.Info(ctx, slug)
	if err != nil {
		h.handleLinkError(ctx, w, err)
		return
	}

	clicks := link.ClickCount
	created := link.CreatedAt
	httpx.WriteJSON(w, http.StatusOK, LinkResponse{
		Slug:           link.Slug,
		OriginalURL:    link.OriginalURL,
		ShortURL:       h.shortURL(link.Slug),
		ClickCount:     &clicks,
		CreatedAt:      &created,
		LastAccessedAt: link.LastAccessedAt,
	})
}

// UpdateLink handles PUT requests to rename a link or change its
// destination. Owner only.
func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	identity, ok := auth.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized",
			"authentication required", nil)
		return
	}

	req, err := httpx.DecodeJSON[UpdateLinkHTTPRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	link, err := h.service.Update(ctx, UpdateLinkRequest{
		Slug:        r.PathValue("slug"),
		CallerID:    identity.UserID,
		NewSlug:     req.CustomSlug,
		OriginalURL: req.OriginalURL,
	})
	if err != nil {
		h.handleLinkError(ctx, w, err)
		return
	}

	logger.InfoContext(ctx, "link updated", "slug", link.Slug)

	updated := link.UpdatedAt
	httpx.WriteJSON(w, http.StatusOK, LinkResponse{
		Slug:        link.Slug,
		OriginalURL: link.OriginalURL,
		ShortURL:    h.shortURL(link.Slug),
		UpdatedAt:   &updated,
	})
}

// DeleteLink handles DELETE requests. Owner only.
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	identity, ok := auth.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized",
			"authentication required", nil)
		return
	}

	slug := r.PathValue("slug")
	if err := h.service.Delete(ctx, identity.UserID, slug); err != nil {
		h.handleLinkError(ctx, w, err)
		return
	}

	logger.InfoContext(ctx, "link deleted", "slug", slug)
	w.WriteHeader(http.StatusNoContent)
}

// ListUserLinks handles GET requests for the authenticated user's links.
func (h *Handler) ListUserLinks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized",
			"authentication required", nil)
		return
	}

	page, err := queryInt(r, "page", 1)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	limit, err := queryInt(r, "limit", DefaultPageLimit)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	links, pagination, err := h.service.ListByOwner(ctx, identity.UserID, page, limit)
	if err != nil {
		h.handleLinkError(ctx, w, err)
		return
	}

	resp := ListLinksResponse{
		Links:      make([]LinkResponse, 0, len(links)),
		Pagination: pagination,
	}
	for _, link := range links {
		clicks := link.ClickCount
		created := link.CreatedAt
		resp.Links = append(resp.Links, LinkResponse{
			Slug:        link.Slug,
			OriginalURL: link.OriginalURL,
			ShortURL:    h.shortURL(link.Slug),
			ClickCount:  &clicks,
			CreatedAt:   &created,
		})
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

// ResolveLink handles GET requests to resolve a slug and redirect to the
// destination. Dead links and internal failures both degrade to the fallback
// redirect: the caller is a browser following a link, not an API client.
func (h *Handler) ResolveLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	slug := r.PathValue("slug")
	originalURL, err := h.service.Resolve(ctx, slug)
	if err != nil {
		if errx.KindOf(err) == errx.NotFound {
			logger.InfoContext(ctx, "slug not found, redirecting to fallback", "slug", slug)
		} else {
			logger.ErrorContext(ctx, "resolve failed, redirecting to fallback",
				"slug", slug,
				"error", err.Error(),
				"error_kind", errx.KindOf(err),
			)
		}
		http.Redirect(w, r, h.fallbackURL, http.StatusFound)
		return
	}

	logger.InfoContext(ctx, "slug resolved",
		"slug", slug,
		"original_url", originalURL,
		"referer", r.Referer(),
	)

	http.Redirect(w, r, originalURL, http.StatusFound)
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With(
		"request_id", httpx.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

// handleLinkError renders a service error with the API's stable codes.
func (h *Handler) handleLinkError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind,
		"operation", errx.OpOf(err),
	}

	switch kind {
	case errx.Conflict:
		h.logger.WarnContext(ctx, "slug conflict", logAttrs...)
		httpx.WriteError(w, http.StatusConflict, "slug_already_exists",
			"This slug is already taken",
			map[string]string{
				"hint": "Try a different custom slug or let us generate one for you",
			})

	case errx.Invalid:
		status, code := invalidStatusCode(err)
		h.logger.WarnContext(ctx, "invalid link request", logAttrs...)
		httpx.WriteError(w, status, code, errx.MessageOf(err), nil)

	case errx.NotFound:
		h.logger.WarnContext(ctx, "link not found", logAttrs...)
		httpx.WriteError(w, http.StatusNotFound, "short_link_not_found",
			"Short link not found", nil)

	case errx.Forbidden:
		h.logger.WarnContext(ctx, "ownership check failed", logAttrs...)
		httpx.WriteError(w, http.StatusForbidden, "access_denied",
			"You do not have permission to modify this short link", nil)

	case errx.Unavailable:
		h.logger.ErrorContext(ctx, "service unavailable", logAttrs...)
		httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable",
			"Unable to process this link at this time. Please try again.", nil)

	default:
		h.logger.ErrorContext(ctx, "unexpected link error", logAttrs...)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to process this link at this time. Please try again.", nil)
	}
}

// invalidStatusCode refines Invalid-kind errors: URL shape problems are 422,
// slug rules and everything else are 400 with distinct codes.
func invalidStatusCode(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidURL):
		return http.StatusUnprocessableEntity, "invalid_url_format"
	case errors.Is(err, ErrSlugReserved):
		return http.StatusBadRequest, "invalid_slug_format"
	case errors.Is(err, ErrSlugLength):
		return http.StatusBadRequest, "invalid_slug_length"
	default:
		return http.StatusBadRequest, "validation_error"
	}
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: %q", name, raw)
	}
	return v, nil
}
