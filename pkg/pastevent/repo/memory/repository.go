package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/heritage-site/pkg/pastevent"
)

// Repository implements pastevent.Repository using in-memory storage
type Repository struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*entry
	bySlug map[string]uuid.UUID
	seq    uint64
	now    func() time.Time
}

// entry keeps the insertion order so records created within the same clock
// tick still list newest first.
type entry struct {
	rec *pastevent.RawRecord
	seq uint64
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		events: make(map[uuid.UUID]*entry),
		bySlug: make(map[string]uuid.UUID),
		now:    time.Now,
	}
}

func (r *Repository) CreatePastEvent(ctx context.Context, rec *pastevent.RawRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySlug[rec.Slug]; exists {
		return pastevent.ErrSlugConflict
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	now := r.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	r.seq++
	// Store a copy to avoid external modifications
	r.events[rec.ID] = &entry{rec: rec.Clone(), seq: r.seq}
	r.bySlug[rec.Slug] = rec.ID
	return nil
}

func (r *Repository) GetPastEventBySlug(ctx context.Context, slug string) (*pastevent.RawRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.bySlug[slug]
	if !exists {
		return nil, pastevent.ErrPastEventNotFound
	}
	return r.events[id].rec.Clone(), nil
}

func (r *Repository) GetPastEventByID(ctx context.Context, id uuid.UUID) (*pastevent.RawRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.events[id]
	if !exists {
		return nil, pastevent.ErrPastEventNotFound
	}
	return e.rec.Clone(), nil
}

func (r *Repository) UpdatePastEvent(ctx context.Context, id uuid.UUID, patch *pastevent.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.events[id]
	if !exists {
		return pastevent.ErrPastEventNotFound
	}

	updated := e.rec.Clone()
	patch.Apply(updated)
	updated.UpdatedAt = r.now().UTC()
	e.rec = updated
	return nil
}

func (r *Repository) ListPastEventSummaries(ctx context.Context, filter pastevent.ListFilter) ([]*pastevent.RawRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*entry, 0, len(r.events))
	for _, e := range r.events {
		if filter.Year != nil && e.rec.Year != *filter.Year {
			continue
		}
		matched = append(matched, e)
	}

	// Sort by year descending, then created_at descending
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.rec.Year != b.rec.Year {
			return a.rec.Year > b.rec.Year
		}
		if !a.rec.CreatedAt.Equal(b.rec.CreatedAt) {
			return a.rec.CreatedAt.After(b.rec.CreatedAt)
		}
		return a.seq > b.seq
	})

	result := make([]*pastevent.RawRecord, 0, len(matched))
	for _, e := range matched {
		summary := *e.rec
		summary.Subtitle = ""
		summary.Hero, summary.Intro, summary.FeatureList, summary.Gallery, summary.Conclusion = nil, nil, nil, nil, nil
		result = append(result, &summary)
	}
	return result, nil
}

func (r *Repository) ListYearAggregates(ctx context.Context) (map[int]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[int]int)
	for _, e := range r.events {
		counts[e.rec.Year]++
	}
	return counts, nil
}

func (r *Repository) SlugExists(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.bySlug[slug]
	if !exists {
		return false, nil
	}
	if excludeID != nil && *excludeID == id {
		return false, nil
	}
	return true, nil
}
