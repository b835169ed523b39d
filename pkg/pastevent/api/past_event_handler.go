package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/heritage-site/pkg/pastevent"
	"github.com/tendant/heritage-site/pkg/pastevent/auth"
)

// maxDocumentSize bounds create and update request bodies
const maxDocumentSize = 1 << 20

// PastEventHandler serves the public resolution API and the gated authoring
// API under one router.
type PastEventHandler struct {
	service pastevent.Service
	author  *pastevent.Author
	writeMW []Middleware
}

// HandlerOption configures a handler
type HandlerOption func(*PastEventHandler)

// WithWriteMiddleware wraps the create and update routes, e.g. with a rate
// limiter.
func WithWriteMiddleware(mw ...Middleware) HandlerOption {
	return func(h *PastEventHandler) {
		h.writeMW = append(h.writeMW, mw...)
	}
}

// NewPastEventHandler creates a new past event handler
func NewPastEventHandler(service pastevent.Service, author *pastevent.Author, opts ...HandlerOption) *PastEventHandler {
	h := &PastEventHandler{service: service, author: author}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// IDResponse is returned by create and update
type IDResponse struct {
	ID string `json:"id"`
}

// SlugCheckResponse is returned by check-slug
type SlugCheckResponse struct {
	Exists bool `json:"exists"`
}

// Routes returns the routes for past events
func (h *PastEventHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListPastEvents)
	r.Get("/years", h.ListYears)
	r.Get("/check-slug", h.CheckSlug)
	r.Get("/{slug}", h.GetPastEvent)

	r.Group(func(r chi.Router) {
		for _, mw := range h.writeMW {
			r.Use(mw)
		}
		r.Post("/", h.CreatePastEvent)
		r.Put("/{id}", h.UpdatePastEvent)
	})

	return r
}

// ListPastEvents lists summaries, optionally narrowed by ?year=
func (h *PastEventHandler) ListPastEvents(w http.ResponseWriter, r *http.Request) {
	var year *int
	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, badRequest("year", "must be a positive integer"))
			return
		}
		year = &n
	}

	summaries, err := h.service.ListSummaries(r.Context(), year)
	if err != nil {
		slog.Error("Failed to list past events", "error", err)
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, summaries)
}

// ListYears returns the per-year counts, most recent first
func (h *PastEventHandler) ListYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.service.ListYears(r.Context())
	if err != nil {
		slog.Error("Failed to list past event years", "error", err)
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, years)
}

// GetPastEvent resolves a normalized past event by slug
func (h *PastEventHandler) GetPastEvent(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	event, err := h.service.ResolveBySlug(r.Context(), slug)
	if err != nil {
		if !pastevent.IsNotFound(err) {
			slog.Error("Failed to resolve past event", "slug", slug, "error", err)
		}
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, event)
}

// CheckSlug reports whether ?slug= is taken by a record other than ?excludeId=
func (h *PastEventHandler) CheckSlug(w http.ResponseWriter, r *http.Request) {
	credential := auth.CredentialFromRequest(r)

	var excludeID *uuid.UUID
	if v := r.URL.Query().Get("excludeId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			h.rejectBeforeAuth(w, r, credential, badRequest("excludeId", "must be a UUID"))
			return
		}
		excludeID = &id
	}

	exists, err := h.author.CheckSlug(r.Context(), credential, r.URL.Query().Get("slug"), excludeID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, SlugCheckResponse{Exists: exists})
}

// CreatePastEvent creates a past event from a JSON document
func (h *PastEventHandler) CreatePastEvent(w http.ResponseWriter, r *http.Request) {
	credential := auth.CredentialFromRequest(r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentSize))
	if err != nil {
		h.rejectBeforeAuth(w, r, credential, badRequest("body", "unreadable or larger than 1 MiB"))
		return
	}
	doc, err := pastevent.ParseDocument(body)
	if err != nil {
		h.rejectBeforeAuth(w, r, credential, err)
		return
	}

	id, err := h.author.Create(r.Context(), credential, doc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, IDResponse{ID: id.String()})
}

// UpdatePastEvent applies a partial JSON update
func (h *PastEventHandler) UpdatePastEvent(w http.ResponseWriter, r *http.Request) {
	credential := auth.CredentialFromRequest(r)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.rejectBeforeAuth(w, r, credential, badRequest("id", "must be a UUID"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentSize))
	if err != nil {
		h.rejectBeforeAuth(w, r, credential, badRequest("body", "unreadable or larger than 1 MiB"))
		return
	}
	patch, err := pastevent.ParsePatch(body)
	if err != nil {
		h.rejectBeforeAuth(w, r, credential, err)
		return
	}

	updated, err := h.author.Update(r.Context(), credential, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, IDResponse{ID: updated.String()})
}

// rejectBeforeAuth reports a request error, unless the caller is not
// authenticated, in which case the auth failure is reported instead.
func (h *PastEventHandler) rejectBeforeAuth(w http.ResponseWriter, r *http.Request, credential string, err error) {
	if _, authErr := h.author.Authorize(r.Context(), credential); authErr != nil {
		writeError(w, r, authErr)
		return
	}
	writeError(w, r, err)
}
