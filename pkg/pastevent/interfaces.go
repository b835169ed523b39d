package pastevent

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for past event persistence
type Repository interface {
	// CreatePastEvent stores a new record and sets its CreatedAt/UpdatedAt.
	// Returns ErrSlugConflict when the slug is taken.
	CreatePastEvent(ctx context.Context, rec *RawRecord) error

	// GetPastEventBySlug returns ErrPastEventNotFound when nothing matches
	GetPastEventBySlug(ctx context.Context, slug string) (*RawRecord, error)

	// GetPastEventByID returns ErrPastEventNotFound when nothing matches
	GetPastEventByID(ctx context.Context, id uuid.UUID) (*RawRecord, error)

	// UpdatePastEvent applies a patch and bumps UpdatedAt. Last write wins.
	UpdatePastEvent(ctx context.Context, id uuid.UUID, patch *Patch) error

	// ListPastEventSummaries returns records without nested sections,
	// ordered by year descending, then CreatedAt descending.
	ListPastEventSummaries(ctx context.Context, filter ListFilter) ([]*RawRecord, error)

	// ListYearAggregates counts records per year. Order is unspecified.
	ListYearAggregates(ctx context.Context) (map[int]int, error)

	// SlugExists reports whether a record other than excludeID uses slug
	SlugExists(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error)
}

// BlobStore defines the interface for uploaded image storage
type BlobStore interface {
	// Upload stores the object under key
	Upload(ctx context.Context, key string, reader io.Reader, params UploadParams) error

	// Download opens the object. Returns ErrImageNotFound when missing.
	Download(ctx context.Context, key string) (io.ReadCloser, *ObjectMeta, error)

	// Delete removes the object. Returns ErrImageNotFound when missing.
	Delete(ctx context.Context, key string) error
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	MimeType string
	Size     int64
}

// URLPresigner is implemented by blob stores that can hand out direct,
// time-limited read URLs. Image reads redirect there instead of streaming.
type URLPresigner interface {
	PresignGet(ctx context.Context, key string) (string, error)
}
