package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/heritage-site/pkg/pastevent"
)

//go:embed schema.sql
var schema string

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements pastevent.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// EnsureSchema creates the past_event table when it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return r.handlePostgresError("ensure schema", err)
		}
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "slug") {
				return pastevent.ErrSlugConflict
			}
			return &pastevent.StorageError{Op: operation, Err: fmt.Errorf("duplicate entry: %s", pgErr.ConstraintName)}
		case "23502": // not_null_violation
			return &pastevent.StorageError{Op: operation, Err: fmt.Errorf("required field %s is missing", pgErr.ColumnName)}
		case "42P01": // undefined_table
			return &pastevent.StorageError{Op: operation, Err: errors.New("table does not exist - database migration required")}
		default:
			return &pastevent.StorageError{Op: operation, Err: fmt.Errorf("%s (code: %s)", pgErr.Message, pgErr.Code)}
		}
	}

	return &pastevent.StorageError{Op: operation, Err: err}
}

const recordColumns = `id, slug, title, subtitle, description, year, thumbnail_image,
	hero, intro, feature_list, gallery, conclusion, created_at, updated_at`

const summaryColumns = `id, slug, title, description, year, thumbnail_image, created_at, updated_at`

func (r *Repository) CreatePastEvent(ctx context.Context, rec *pastevent.RawRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO past_event (
			id, slug, title, subtitle, description, year, thumbnail_image,
			hero, intro, feature_list, gallery, conclusion, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		rec.ID, rec.Slug, rec.Title, rec.Subtitle, rec.Description, rec.Year, rec.ThumbnailImage,
		jsonb(rec.Hero), jsonb(rec.Intro), jsonb(rec.FeatureList), jsonb(rec.Gallery), jsonb(rec.Conclusion),
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create past event", err)
	}

	return nil
}

func (r *Repository) GetPastEventBySlug(ctx context.Context, slug string) (*pastevent.RawRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM past_event WHERE slug = $1`
	return r.getOne(ctx, "get past event by slug", query, slug)
}

func (r *Repository) GetPastEventByID(ctx context.Context, id uuid.UUID) (*pastevent.RawRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM past_event WHERE id = $1`
	return r.getOne(ctx, "get past event by id", query, id)
}

func (r *Repository) getOne(ctx context.Context, operation, query string, arg interface{}) (*pastevent.RawRecord, error) {
	var rec pastevent.RawRecord
	var hero, intro, featureList, gallery, conclusion []byte
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&rec.ID, &rec.Slug, &rec.Title, &rec.Subtitle, &rec.Description, &rec.Year, &rec.ThumbnailImage,
		&hero, &intro, &featureList, &gallery, &conclusion, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pastevent.ErrPastEventNotFound
		}
		return nil, r.handlePostgresError(operation, err)
	}

	rec.Hero = rawSection(hero)
	rec.Intro = rawSection(intro)
	rec.FeatureList = rawSection(featureList)
	rec.Gallery = rawSection(gallery)
	rec.Conclusion = rawSection(conclusion)
	return &rec, nil
}

func (r *Repository) UpdatePastEvent(ctx context.Context, id uuid.UUID, patch *pastevent.Patch) error {
	sets := []string{}
	args := []interface{}{id}
	argIndex := 2

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Subtitle != nil {
		add("subtitle", *patch.Subtitle)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Year != nil {
		add("year", *patch.Year)
	}
	if patch.ThumbnailImage != nil {
		add("thumbnail_image", *patch.ThumbnailImage)
	}
	if patch.Hero != nil {
		add("hero", jsonb(patch.Hero))
	}
	if patch.Intro != nil {
		add("intro", jsonb(patch.Intro))
	}
	if patch.FeatureList != nil {
		add("feature_list", jsonb(patch.FeatureList))
	}
	if patch.Gallery != nil {
		add("gallery", jsonb(patch.Gallery))
	}
	if patch.Conclusion != nil {
		add("conclusion", jsonb(patch.Conclusion))
	}
	sets = append(sets, "updated_at = NOW()")

	query := `UPDATE past_event SET ` + strings.Join(sets, ", ") + ` WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return r.handlePostgresError("update past event", err)
	}
	if tag.RowsAffected() == 0 {
		return pastevent.ErrPastEventNotFound
	}

	return nil
}

func (r *Repository) ListPastEventSummaries(ctx context.Context, filter pastevent.ListFilter) ([]*pastevent.RawRecord, error) {
	query := `SELECT ` + summaryColumns + ` FROM past_event`
	args := []interface{}{}
	if filter.Year != nil {
		query += ` WHERE year = $1`
		args = append(args, *filter.Year)
	}
	query += ` ORDER BY year DESC, created_at DESC, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list past events", err)
	}
	defer rows.Close()

	result := []*pastevent.RawRecord{}
	for rows.Next() {
		var rec pastevent.RawRecord
		if err := rows.Scan(
			&rec.ID, &rec.Slug, &rec.Title, &rec.Description, &rec.Year,
			&rec.ThumbnailImage, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, r.handlePostgresError("scan past event", err)
		}
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list past events", err)
	}

	return result, nil
}

func (r *Repository) ListYearAggregates(ctx context.Context) (map[int]int, error) {
	rows, err := r.db.Query(ctx, `SELECT year, COUNT(*) FROM past_event GROUP BY year`)
	if err != nil {
		return nil, r.handlePostgresError("list years", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var year, count int
		if err := rows.Scan(&year, &count); err != nil {
			return nil, r.handlePostgresError("scan year", err)
		}
		counts[year] = count
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list years", err)
	}

	return counts, nil
}

func (r *Repository) SlugExists(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM past_event WHERE slug = $1 AND ($2::uuid IS NULL OR id <> $2))`

	var exists bool
	if err := r.db.QueryRow(ctx, query, slug, excludeID).Scan(&exists); err != nil {
		return false, r.handlePostgresError("check slug", err)
	}
	return exists, nil
}

// jsonb maps an absent section to SQL NULL.
func jsonb(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func rawSection(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}
