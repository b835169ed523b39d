package pastevent

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the past event operations: the public resolution API and
// the ungated authoring primitives used behind an Author.
type Service interface {
	// Public resolution
	ResolveBySlug(ctx context.Context, slug string) (*PastEvent, error)
	ListSummaries(ctx context.Context, year *int) ([]Summary, error)
	ListYears(ctx context.Context) ([]YearAggregate, error)

	// Authoring
	CreatePastEvent(ctx context.Context, doc Document) (uuid.UUID, error)
	UpdatePastEvent(ctx context.Context, id uuid.UUID, patch Patch) (uuid.UUID, error)
	SlugExists(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error)
}
