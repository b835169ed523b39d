package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tendant/heritage-site/pkg/pastevent"
	"github.com/tendant/heritage-site/pkg/pastevent/repo/postgres"
)

const usersSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id         UUID PRIMARY KEY,
		email      TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL DEFAULT '',
		role       TEXT NOT NULL DEFAULT 'admin',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// PostgresUsers reads identities from the users table.
type PostgresUsers struct {
	db postgres.DBTX
}

// NewPostgresUsers creates a directory over db.
func NewPostgresUsers(db postgres.DBTX) *PostgresUsers {
	return &PostgresUsers{db: db}
}

// EnsureSchema creates the users table when it does not exist.
func (p *PostgresUsers) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, usersSchema); err != nil {
		return fmt.Errorf("ensure users schema: %w", err)
	}
	return nil
}

// UpsertUser inserts or updates an identity, keyed by email.
func (p *PostgresUsers) UpsertUser(ctx context.Context, identity *pastevent.Identity) error {
	if identity.UserID == uuid.Nil {
		identity.UserID = uuid.New()
	}
	query := `
		INSERT INTO users (id, email, name, role) VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role
		RETURNING id`
	if err := p.db.QueryRow(ctx, query, identity.UserID, identity.Email, identity.Name, identity.Role).Scan(&identity.UserID); err != nil {
		return fmt.Errorf("upsert user %s: %w", identity.Email, err)
	}
	return nil
}

func (p *PostgresUsers) LookupUser(ctx context.Context, id uuid.UUID) (*pastevent.Identity, error) {
	var identity pastevent.Identity
	err := p.db.QueryRow(ctx, `SELECT id, email, name, role FROM users WHERE id = $1`, id).
		Scan(&identity.UserID, &identity.Email, &identity.Name, &identity.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user %s: %w", id, err)
	}
	return &identity, nil
}
