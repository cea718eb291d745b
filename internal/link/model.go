package link

import (
	"time"

	"github.com/google/uuid"
)

// Link is a short link. OwnerID is nil for anonymously created links; once
// set at creation it is only ever compared for authorization, never
// reassigned.
type Link struct {
	ID             uuid.UUID
	Slug           string
	OriginalURL    string
	OwnerID        *uuid.UUID
	ClickCount     int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastAccessedAt *time.Time
}

// LinkUpdate carries the optional mutable fields; nil means "leave as is".
type LinkUpdate struct {
	Slug        *string
	OriginalURL *string
}
