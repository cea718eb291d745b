package link

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence operations for Link entities. Slug
// uniqueness is enforced by the store at insert time and surfaced as
// errx.Conflict, so there is no check-then-act race between concurrent
// creations; ResolveAndTrack performs the click increment atomically in the
// store so concurrent resolutions never lose updates.
type Repository interface {
	Create(ctx context.Context, link Link) (Link, error)
	GetBySlug(ctx context.Context, slug string) (Link, error)
	Update(ctx context.Context, id uuid.UUID, upd LinkUpdate) (Link, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ResolveAndTrack(ctx context.Context, slug string) (Link, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]Link, error)
	CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)
}
