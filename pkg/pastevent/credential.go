package pastevent

import (
	"context"

	"github.com/google/uuid"
)

// CredentialKind classifies the outcome of a credential verification.
type CredentialKind int

const (
	// CredentialAuthenticated means the credential was verified.
	CredentialAuthenticated CredentialKind = iota
	// CredentialMissing means no credential was presented.
	CredentialMissing
	// CredentialInvalid means a credential was presented and rejected
	// (malformed, expired, bad signature, unknown user).
	CredentialInvalid
	// CredentialUnavailable means verification could not complete in time.
	// It is transient and never means "not logged in".
	CredentialUnavailable
)

func (k CredentialKind) String() string {
	switch k {
	case CredentialAuthenticated:
		return "authenticated"
	case CredentialMissing:
		return "unauthenticated"
	case CredentialInvalid:
		return "invalid"
	case CredentialUnavailable:
		return "verification_unavailable"
	default:
		return "unknown"
	}
}

// Identity is the authenticated principal behind a credential.
type Identity struct {
	UserID uuid.UUID `json:"id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Role   string    `json:"role"`
}

// Verification is the result of one credential check. Identity is set only
// when Kind is CredentialAuthenticated.
type Verification struct {
	Kind     CredentialKind
	Identity *Identity
	Reason   error
}

// Authenticated reports whether the verification succeeded.
func (v Verification) Authenticated() bool {
	return v.Kind == CredentialAuthenticated && v.Identity != nil
}

// Err converts a failed verification into an *AuthError.
func (v Verification) Err() error {
	if v.Authenticated() {
		return nil
	}
	kind := v.Kind
	if kind == CredentialAuthenticated {
		kind = CredentialInvalid
	}
	return &AuthError{Kind: kind, Reason: v.Reason}
}

// CredentialGate verifies the credential material of a request.
type CredentialGate interface {
	Verify(ctx context.Context, credential string) Verification
}

type identityKey struct{}

// WithIdentity stores the authenticated identity in the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
