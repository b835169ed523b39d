package pastevent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Author is the admin authoring API. Every operation verifies the caller's
// credential first; nothing reaches the repository unless the gate reports
// CredentialAuthenticated.
type Author struct {
	gate    CredentialGate
	service Service
}

// NewAuthor creates a gated authoring API
func NewAuthor(gate CredentialGate, service Service) (*Author, error) {
	if gate == nil {
		return nil, errors.New("credential gate is required")
	}
	if service == nil {
		return nil, errors.New("service is required")
	}
	return &Author{gate: gate, service: service}, nil
}

// Authorize verifies a credential and returns the identity behind it, or an
// *AuthError carrying the failure kind.
func (a *Author) Authorize(ctx context.Context, credential string) (*Identity, error) {
	v := a.gate.Verify(ctx, credential)
	if !v.Authenticated() {
		slog.Warn("Credential rejected", "kind", v.Kind.String(), "reason", v.Reason)
		return nil, v.Err()
	}
	return v.Identity, nil
}

// Create stores a new past event.
func (a *Author) Create(ctx context.Context, credential string, doc Document) (uuid.UUID, error) {
	identity, err := a.Authorize(ctx, credential)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := a.service.CreatePastEvent(ctx, doc)
	if err != nil {
		return uuid.Nil, err
	}

	slog.Info("Past event created", "id", id.String(), "slug", doc.Slug, "user_id", identity.UserID.String())
	return id, nil
}

// Update applies a partial update to an existing past event.
func (a *Author) Update(ctx context.Context, credential string, id uuid.UUID, patch Patch) (uuid.UUID, error) {
	identity, err := a.Authorize(ctx, credential)
	if err != nil {
		return uuid.Nil, err
	}

	updated, err := a.service.UpdatePastEvent(ctx, id, patch)
	if err != nil {
		return uuid.Nil, err
	}

	slog.Info("Past event updated", "id", updated.String(), "user_id", identity.UserID.String())
	return updated, nil
}

// CheckSlug reports whether a slug is already used by a record other than
// excludeID.
func (a *Author) CheckSlug(ctx context.Context, credential, slug string, excludeID *uuid.UUID) (bool, error) {
	if _, err := a.Authorize(ctx, credential); err != nil {
		return false, err
	}

	exists, err := a.service.SlugExists(ctx, slug, excludeID)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}
