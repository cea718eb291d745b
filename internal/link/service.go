package link

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly/internal/errx"
	"github.com/shortlyhq/shortly/sluggen"
)

const (
	GeneratedSlugLength   = 8
	MinSlugLength         = 1
	MaxSlugLength         = 50
	ReservedSlugPrefix    = "/api"
	MaxURLLength          = 2048
	DefaultSlugMaxRetries = 3

	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Sentinel errors that let the HTTP layer distinguish response codes within
// the Invalid kind.
var (
	ErrInvalidURL        = errors.New("invalid url format")
	ErrSlugReserved      = errors.New("slug cannot start with " + ReservedSlugPrefix + " as it conflicts with API routes")
	ErrSlugLength        = fmt.Errorf("slug must be between %d and %d characters long", MinSlugLength, MaxSlugLength)
	ErrNoFieldsToUpdate  = errors.New("at least one field (originalUrl or customSlug) must be provided")
	ErrPageOutOfRange    = errors.New("page number exceeds available pages")
	ErrInvalidPagination = errors.New("invalid pagination parameters")
)

// CreateLinkRequest represents the parameters for creating a new link.
// OwnerID is nil for anonymous creation.
type CreateLinkRequest struct {
	OriginalURL string
	CustomSlug  string // Optional: if empty, a slug will be generated
	OwnerID     *uuid.UUID
}

// UpdateLinkRequest represents an owner's mutation of an existing link.
type UpdateLinkRequest struct {
	Slug        string // current slug identifying the link
	CallerID    uuid.UUID
	NewSlug     *string
	OriginalURL *string
}

// Pagination describes a page of results.
type Pagination struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	Pages   int   `json:"pages"`
	HasNext bool  `json:"hasNext"`
	HasPrev bool  `json:"hasPrev"`
}

// Service defines the business logic operations for URL shortening.
type Service interface {
	Create(ctx context.Context, req CreateLinkRequest) (Link, error)
	Info(ctx context.Context, slug string) (Link, error)
	Update(ctx context.Context, req UpdateLinkRequest) (Link, error)
	Delete(ctx context.Context, callerID uuid.UUID, slug string) error
	Resolve(ctx context.Context, slug string) (string, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, page, limit int) ([]Link, Pagination, error)
}

// service implements the Service interface.
type service struct {
	repo           Repository
	slugGenerator  sluggen.Generator
	slugLength     int
	slugMaxRetries int
}

// ServiceConfig holds configuration for the service.
type ServiceConfig struct {
	SlugGenerator  sluggen.Generator
	SlugLength     int
	SlugMaxRetries int // attempts when generating a unique slug (default: 3)
}

// NewService creates a new service instance.
func NewService(repo Repository, config *ServiceConfig) Service {
	if config == nil {
		config = &ServiceConfig{}
	}

	slugGen := config.SlugGenerator
	if slugGen == nil {
		slugGen = sluggen.NewBase62()
	}

	slugLength := config.SlugLength
	if slugLength < MinSlugLength || slugLength > MaxSlugLength {
		slugLength = GeneratedSlugLength
	}

	retries := config.SlugMaxRetries
	if retries <= 0 {
		retries = DefaultSlugMaxRetries
	}

	return &service{
		repo:           repo,
		slugGenerator:  slugGen,
		slugLength:     slugLength,
		slugMaxRetries: retries,
	}
}

// Create creates a new short link. A custom slug is validated and inserted
// exactly once: a uniqueness violation is reported as Conflict rather than
// silently substituting a different slug. Without a custom slug, generation
// retries on the astronomically rare random collision.
func (s *service) Create(ctx context.Context, req CreateLinkRequest) (Link, error) {
	const op = "link.service.Create"

	if err := validateURL(req.OriginalURL); err != nil {
		return Link{}, errx.E(op, errx.Invalid, err)
	}

	if req.CustomSlug != "" {
		if err := validateCustomSlug(req.CustomSlug); err != nil {
			return Link{}, errx.E(op, errx.Invalid, err)
		}

		created, err := s.repo.Create(ctx, Link{
			Slug:        req.CustomSlug,
			OriginalURL: req.OriginalURL,
			OwnerID:     req.OwnerID,
		})
		if err != nil {
			return Link{}, errx.E(op, errx.KindOf(err), err)
		}
		return created, nil
	}

	for range s.slugMaxRetries {
		slug, err := s.slugGenerator.Generate(s.slugLength)
		if err != nil {
			return Link{}, errx.E(op, errx.Unavailable, err)
		}

		created, err := s.repo.Create(ctx, Link{
			Slug:        slug,
			OriginalURL: req.OriginalURL,
			OwnerID:     req.OwnerID,
		})
		if err == nil {
			return created, nil
		}

		// Retry on conflict, fail on other errors
		if errx.KindOf(err) != errx.Conflict {
			return Link{}, errx.E(op, errx.KindOf(err), err)
		}
	}

	return Link{}, errx.E(op, errx.Unavailable,
		errors.New("could not generate unique slug after retries"))
}

func (s *service) Info(ctx context.Context, slug string) (Link, error) {
	const op = "link.service.Info"

	if slug == "" {
		return Link{}, errx.E(op, errx.Invalid, errors.New("slug cannot be empty"))
	}

	link, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return Link{}, errx.E(op, errx.KindOf(err), err)
	}
	return link, nil
}

// Update renames a link and/or changes its destination. Only the owner may
// update; anonymously created links have no owner and are permanently
// immutable through this path.
func (s *service) Update(ctx context.Context, req UpdateLinkRequest) (Link, error) {
	const op = "link.service.Update"

	if req.Slug == "" {
		return Link{}, errx.E(op, errx.Invalid, errors.New("slug cannot be empty"))
	}
	if req.NewSlug == nil && req.OriginalURL == nil {
		return Link{}, errx.E(op, errx.Invalid, ErrNoFieldsToUpdate)
	}
	if req.OriginalURL != nil {
		if err := validateURL(*req.OriginalURL); err != nil {
			return Link{}, errx.E(op, errx.Invalid, err)
		}
	}
	if req.NewSlug != nil {
		if err := validateCustomSlug(*req.NewSlug); err != nil {
			return Link{}, errx.E(op, errx.Invalid, err)
		}
	}

	link, err := s.repo.GetBySlug(ctx, req.Slug)
	if err != nil {
		return Link{}, errx.E(op, errx.KindOf(err), err)
	}

	if err := authorizeOwner(op, link, req.CallerID); err != nil {
		return Link{}, err
	}

	updated, err := s.repo.Update(ctx, link.ID, LinkUpdate{
		Slug:        req.NewSlug,
		OriginalURL: req.OriginalURL,
	})
	if err != nil {
		return Link{}, errx.E(op, errx.KindOf(err), err)
	}
	return updated, nil
}

func (s *service) Delete(ctx context.Context, callerID uuid.UUID, slug string) error {
	const op = "link.service.Delete"

	if slug == "" {
		return errx.E(op, errx.Invalid, errors.New("slug cannot be empty"))
	}

	link, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return errx.E(op, errx.KindOf(err), err)
	}

	if err := authorizeOwner(op, link, callerID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, link.ID); err != nil {
		return errx.E(op, errx.KindOf(err), err)
	}
	return nil
}

// Resolve returns the destination for a slug, atomically incrementing the
// click counter. Callers treat every failure as a fallback redirect, not an
// error response.
func (s *service) Resolve(ctx context.Context, slug string) (string, error) {
	const op = "link.service.Resolve"

	if slug == "" {
		return "", errx.E(op, errx.Invalid, errors.New("slug cannot be empty"))
	}

	link, err := s.repo.ResolveAndTrack(ctx, slug)
	if err != nil {
		return "", errx.E(op, errx.KindOf(err), err)
	}
	return link.OriginalURL, nil
}

func (s *service) ListByOwner(ctx context.Context, ownerID uuid.UUID, page, limit int) ([]Link, Pagination, error) {
	const op = "link.service.ListByOwner"

	if page < 1 {
		return nil, Pagination{}, errx.E(op, errx.Invalid,
			fmt.Errorf("%w: page number must be greater than 0", ErrInvalidPagination))
	}
	if limit < 1 || limit > MaxPageLimit {
		return nil, Pagination{}, errx.E(op, errx.Invalid,
			fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidPagination, MaxPageLimit))
	}

	total, err := s.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, Pagination{}, errx.E(op, errx.KindOf(err), err)
	}

	pages := int((total + int64(limit) - 1) / int64(limit))
	if page > pages && total > 0 {
		return nil, Pagination{}, errx.E(op, errx.Invalid, ErrPageOutOfRange)
	}

	links, err := s.repo.ListByOwner(ctx, ownerID, limit, (page-1)*limit)
	if err != nil {
		return nil, Pagination{}, errx.E(op, errx.KindOf(err), err)
	}

	return links, Pagination{
		Page:    page,
		Limit:   limit,
		Total:   total,
		Pages:   pages,
		HasNext: page < pages,
		HasPrev: page > 1,
	}, nil
}

// authorizeOwner checks that the caller owns the link. The error carries the
// slug and actual owner for diagnostics; a link with no owner can never pass.
func authorizeOwner(op string, link Link, callerID uuid.UUID) error {
	if link.OwnerID == nil || *link.OwnerID != callerID {
		owner := "none"
		if link.OwnerID != nil {
			owner = link.OwnerID.String()
		}
		return errx.E(op, errx.Forbidden,
			fmt.Errorf("caller does not own slug %q (owner: %s)", link.Slug, owner))
	}
	return nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("url cannot be empty")
	}
	if len(rawURL) > MaxURLLength {
		return fmt.Errorf("%w: url too long (max %d characters)", ErrInvalidURL, MaxURLLength)
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("%w: url must be absolute (e.g. https://example.com)", ErrInvalidURL)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%w: url scheme must be http or https", ErrInvalidURL)
	}
	return nil
}

// validateCustomSlug enforces the reserved prefix and length rules for
// explicitly chosen slugs.
func validateCustomSlug(slug string) error {
	if strings.HasPrefix(slug, ReservedSlugPrefix) {
		return ErrSlugReserved
	}
	if len(slug) < MinSlugLength || len(slug) > MaxSlugLength {
		return ErrSlugLength
	}
	return nil
}
