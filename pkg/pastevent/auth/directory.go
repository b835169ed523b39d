package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/heritage-site/pkg/pastevent"
)

// ErrUserNotFound is returned by a UserDirectory for unknown users.
var ErrUserNotFound = errors.New("user not found")

// UserDirectory resolves the subject of a verified token to an identity.
// Any error other than ErrUserNotFound is treated as the directory being
// unreachable.
type UserDirectory interface {
	LookupUser(ctx context.Context, id uuid.UUID) (*pastevent.Identity, error)
}

// MemoryUsers is an in-memory UserDirectory.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[uuid.UUID]pastevent.Identity
}

// NewMemoryUsers creates a directory holding the given identities.
func NewMemoryUsers(identities ...pastevent.Identity) *MemoryUsers {
	m := &MemoryUsers{users: make(map[uuid.UUID]pastevent.Identity)}
	for _, id := range identities {
		m.users[id.UserID] = id
	}
	return m
}

// Add registers or replaces an identity.
func (m *MemoryUsers) Add(identity pastevent.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[identity.UserID] = identity
}

// Remove deletes an identity.
func (m *MemoryUsers) Remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

func (m *MemoryUsers) LookupUser(ctx context.Context, id uuid.UUID) (*pastevent.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	identity, exists := m.users[id]
	if !exists {
		return nil, ErrUserNotFound
	}
	return &identity, nil
}
