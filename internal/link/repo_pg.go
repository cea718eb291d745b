package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

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

	// Default: UUID v7 (good for DB locality). Retry once by default inside idgen.NewV7.
	if config.IDGenerator == nil {
		config.IDGenerator = idgen.NewV7(idgen.WithRetries(1))
	}

	return &repo{
		pool: pool,
		ids:  config.IDGenerator,
	}
}

const linkColumns = "id, slug, original_url, user_id, click_count, created_at, updated_at, last_accessed_at"

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

func uuidPtr(u pgtype.UUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	id := uuid.UUID(u.Bytes)
	return &id
}

func scanLink(row pgx.Row) (Link, error) {
	var (
		l              Link
		ownerID        pgtype.UUID
		createdAt      pgtype.Timestamptz
		updatedAt      pgtype.Timestamptz
		lastAccessedAt pgtype.Timestamptz
	)
	if err := row.Scan(&l.ID, &l.Slug, &l.OriginalURL, &ownerID, &l.ClickCount,
		&createdAt, &updatedAt, &lastAccessedAt); err != nil {
		return Link{}, err
	}

	created, err := mustTime(createdAt, "created_at")
	if err != nil {
		return Link{}, err
	}
	updated, err := mustTime(updatedAt, "updated_at")
	if err != nil {
		return Link{}, err
	}

	l.OwnerID = uuidPtr(ownerID)
	l.CreatedAt = created
	l.UpdatedAt = updated
	l.LastAccessedAt = timePtr(lastAccessedAt)
	return l, nil
}

func mapRepoError(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errx.E(op, errx.NotFound, err)

	case isSlugUniqueViolation(err):
		return errx.E(op, errx.Conflict, err)

	default:
		return errx.E(op, errx.Unavailable, err)
	}
}

func (r *repo) Create(ctx context.Context, link Link) (Link, error) {
	const op = "link.repo.Create"

	if link.ID == uuid.Nil {
		id, err := r.ids.Generate()
		if err != nil {
			return Link{}, errx.E(op, errx.Unavailable, err)
		}
		link.ID = id
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO short_links (id, slug, original_url, user_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+linkColumns,
		link.ID, link.Slug, link.OriginalURL, link.OwnerID,
	)

	created, err := scanLink(row)
	if err != nil {
		return Link{}, mapRepoError(op, err)
	}
	return created, nil
}

func (r *repo) GetBySlug(ctx context.Context, slug string) (Link, error) {
	const op = "link.repo.GetBySlug"

	row := r.pool.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM short_links WHERE slug = $1`, slug)

	link, err := scanLink(row)
	if err != nil {
		return Link{}, mapRepoError(op, err)
	}
	return link, nil
}

func (r *repo) Update(ctx context.Context, id uuid.UUID, upd LinkUpdate) (Link, error) {
	const op = "link.repo.Update"

	row := r.pool.QueryRow(ctx,
		`UPDATE short_links
		 SET slug = COALESCE($2, slug),
		     original_url = COALESCE($3, original_url),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+linkColumns,
		id, upd.Slug, upd.OriginalURL,
	)

	link, err := scanLink(row)
	if err != nil {
		return Link{}, mapRepoError(op, err)
	}
	return link, nil
}

func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "link.repo.Delete"

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM short_links WHERE id = $1`, id)
	if err != nil {
		return mapRepoError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return errx.E(op, errx.NotFound, pgx.ErrNoRows)
	}
	return nil
}

// ResolveAndTrack increments the click counter and stamps last_accessed_at
// in a single UPDATE, so concurrent resolutions never lose increments.
func (r *repo) ResolveAndTrack(ctx context.Context, slug string) (Link, error) {
	const op = "link.repo.ResolveAndTrack"

	row := r.pool.QueryRow(ctx,
		`UPDATE short_links
		 SET click_count = click_count + 1,
		     last_accessed_at = now()
		 WHERE slug = $1
		 RETURNING `+linkColumns,
		slug,
	)

	link, err := scanLink(row)
	if err != nil {
		return Link{}, mapRepoError(op, err)
	}
	return link, nil
}

func (r *repo) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]Link, error) {
	const op = "link.repo.ListByOwner"

	rows, err := r.pool.Query(ctx,
		`SELECT `+linkColumns+`
		 FROM short_links
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, mapRepoError(op, err)
	}
	defer rows.Close()

	links := []Link{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, mapRepoError(op, err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, mapRepoError(op, err)
	}
	return links, nil
}

func (r *repo) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	const op = "link.repo.CountByOwner"

	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM short_links WHERE user_id = $1`, ownerID,
	).Scan(&count)
	if err != nil {
		return 0, mapRepoError(op, err)
	}
	return count, nil
}
