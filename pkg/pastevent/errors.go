package pastevent

import (
	"errors"
	"fmt"
	"strings"
)

// Error types
var (
	// ErrPastEventNotFound indicates a slug or id does not resolve
	ErrPastEventNotFound = errors.New("past event not found")

	// ErrSlugConflict indicates another past event already uses the slug
	ErrSlugConflict = errors.New("slug already exists")

	// ErrImageNotFound indicates an uploaded image does not exist
	ErrImageNotFound = errors.New("image not found")
)

// FieldError describes one rejected field of a payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError represents a malformed create or update payload
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a field failure.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns nil when no field failed.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// StorageError represents a repository failure (unreachable or internal)
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// AuthError is returned by gated operations when the credential gate did not
// authenticate the caller.
type AuthError struct {
	Kind   CredentialKind
	Reason error
}

func (e *AuthError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("authorization failed (%s): %v", e.Kind, e.Reason)
	}
	return fmt.Sprintf("authorization failed (%s)", e.Kind)
}

func (e *AuthError) Unwrap() error {
	return e.Reason
}

// Transient reports whether the caller should retry with the same credential
// instead of treating it as a login failure.
func (e *AuthError) Transient() bool {
	return e.Kind == CredentialUnavailable
}

// IsNotFound reports whether err is a not-found error of any resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPastEventNotFound) || errors.Is(err, ErrImageNotFound)
}
