package pastevent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

const (
	defaultReadTries    = 3
	defaultReadInterval = 50 * time.Millisecond
)

// service implements the Service interface
type service struct {
	repository   Repository
	readTries    uint
	readInterval time.Duration
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithReadRetry bounds how often an idempotent read is retried after a
// storage failure. tries counts the first attempt; 1 disables retries.
func WithReadRetry(tries uint, initialInterval time.Duration) Option {
	return func(s *service) {
		if tries > 0 {
			s.readTries = tries
		}
		if initialInterval > 0 {
			s.readInterval = initialInterval
		}
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		readTries:    defaultReadTries,
		readInterval: defaultReadInterval,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}

	return s, nil
}

// Public resolution

func (s *service) ResolveBySlug(ctx context.Context, slug string) (*PastEvent, error) {
	rec, err := retryRead(ctx, s, "get by slug", func() (*RawRecord, error) {
		return s.repository.GetPastEventBySlug(ctx, SanitizeSlug(slug))
	})
	if errors.Is(err, ErrPastEventNotFound) {
		// Older links address records by id.
		if id, parseErr := uuid.Parse(slug); parseErr == nil {
			rec, err = retryRead(ctx, s, "get by id", func() (*RawRecord, error) {
				return s.repository.GetPastEventByID(ctx, id)
			})
		}
	}
	if err != nil {
		return nil, err
	}

	event := Normalize(rec)
	return &event, nil
}

func (s *service) ListSummaries(ctx context.Context, year *int) ([]Summary, error) {
	recs, err := retryRead(ctx, s, "list summaries", func() ([]*RawRecord, error) {
		return s.repository.ListPastEventSummaries(ctx, ListFilter{Year: year})
	})
	if err != nil {
		return nil, err
	}
	return ProjectSummaries(recs), nil
}

func (s *service) ListYears(ctx context.Context) ([]YearAggregate, error) {
	counts, err := retryRead(ctx, s, "list years", func() (map[int]int, error) {
		return s.repository.ListYearAggregates(ctx)
	})
	if err != nil {
		return nil, err
	}
	return SortYearAggregates(counts), nil
}

// SortYearAggregates orders year counts with the most recent year first.
func SortYearAggregates(counts map[int]int) []YearAggregate {
	out := make([]YearAggregate, 0, len(counts))
	for year, count := range counts {
		out = append(out, YearAggregate{Year: year, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Year > out[j].Year
	})
	return out
}

// Authoring

func (s *service) CreatePastEvent(ctx context.Context, doc Document) (uuid.UUID, error) {
	if err := doc.Validate(); err != nil {
		return uuid.Nil, err
	}

	rec := &RawRecord{
		ID:             uuid.New(),
		Slug:           doc.Slug,
		Title:          doc.Title,
		Subtitle:       doc.Subtitle,
		Description:    doc.Description,
		Year:           doc.Year,
		ThumbnailImage: doc.ThumbnailImage,
		Hero:           doc.Hero,
		Intro:          doc.Intro,
		FeatureList:    doc.FeatureList,
		Gallery:        doc.Gallery,
		Conclusion:     doc.Conclusion,
	}

	// Writes are not retried.
	if err := s.repository.CreatePastEvent(ctx, rec); err != nil {
		return uuid.Nil, fmt.Errorf("create past event %s: %w", rec.Slug, err)
	}

	return rec.ID, nil
}

func (s *service) UpdatePastEvent(ctx context.Context, id uuid.UUID, patch Patch) (uuid.UUID, error) {
	if err := patch.Validate(); err != nil {
		return uuid.Nil, err
	}

	current, err := s.repository.GetPastEventByID(ctx, id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("update past event %s: %w", id, err)
	}
	if patch.Slug != nil && *patch.Slug != current.Slug {
		verr := &ValidationError{}
		verr.Add("slug", "cannot be changed once assigned")
		return uuid.Nil, verr
	}
	if patch.IsEmpty() {
		return id, nil
	}

	if err := s.repository.UpdatePastEvent(ctx, id, &patch); err != nil {
		return uuid.Nil, fmt.Errorf("update past event %s: %w", id, err)
	}

	return id, nil
}

func (s *service) SlugExists(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error) {
	slug = SanitizeSlug(slug)
	if slug == "" {
		verr := &ValidationError{}
		verr.Add("slug", "is required")
		return false, verr
	}
	return retryRead(ctx, s, "check slug", func() (bool, error) {
		return s.repository.SlugExists(ctx, slug, excludeID)
	})
}

// retryRead retries fn while it fails with a *StorageError. Any other error
// is returned as is.
func retryRead[T any](ctx context.Context, s *service, op string, fn func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.readInterval

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		var storageErr *StorageError
		if !errors.As(err, &storageErr) {
			return v, backoff.Permanent(err)
		}
		slog.Warn("Past event read failed", "op", op, "error", err)
		return v, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(s.readTries))
}
