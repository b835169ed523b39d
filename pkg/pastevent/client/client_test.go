package client_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/heritage-site/pkg/pastevent"
	"github.com/tendant/heritage-site/pkg/pastevent/api"
	"github.com/tendant/heritage-site/pkg/pastevent/auth"
	"github.com/tendant/heritage-site/pkg/pastevent/client"
	"github.com/tendant/heritage-site/pkg/pastevent/repo/memory"
	memorystorage "github.com/tendant/heritage-site/pkg/pastevent/storage/memory"
)

func newClient(t *testing.T, baseURL string, store client.CredentialStore) *client.Client {
	t.Helper()
	c, err := client.New(baseURL,
		client.WithCredentialStore(store),
		client.WithReadRetry(3, time.Millisecond))
	require.NoError(t, err)
	return c
}

func setupServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	admin := pastevent.Identity{UserID: uuid.New(), Email: "curator@example.org", Role: "admin"}
	ja := auth.NewJWTAuth("client-test-secret")
	gate, err := auth.NewJWTGate(ja, auth.NewMemoryUsers(admin))
	require.NoError(t, err)
	token, err := auth.NewIssuer(ja, time.Hour).Issue(admin)
	require.NoError(t, err)

	svc, err := pastevent.New(pastevent.WithRepository(memory.New()))
	require.NoError(t, err)
	author, err := pastevent.NewAuthor(gate, svc)
	require.NoError(t, err)
	uploader, err := pastevent.NewImageUploader(memorystorage.New())
	require.NoError(t, err)
	uploads := api.NewUploadHandler(uploader, gate)

	r := chi.NewRouter()
	r.Mount("/api/past-events", api.NewPastEventHandler(svc, author).Routes())
	r.Mount("/api/uploads", uploads.AdminRoutes())
	r.Mount("/api/auth", api.NewAuthHandler(gate).Routes())
	r.Mount("/uploads", uploads.PublicRoutes())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, token
}

func TestClient_RoundTrip(t *testing.T) {
	srv, token := setupServer(t)
	c := newClient(t, srv.URL, client.NewMemoryStore(token))
	ctx := context.Background()

	id, err := c.CreatePastEvent(ctx, map[string]any{
		"slug": "mid-autumn-2023", "title": "Mid-Autumn", "year": 2023,
	})
	require.NoError(t, err)

	event, err := c.GetPastEvent(ctx, "mid-autumn-2023")
	require.NoError(t, err)
	assert.Equal(t, id, event.ID)
	assert.Equal(t, pastevent.AlignStart, event.Intro.Align)
	assert.NotNil(t, event.Gallery.Images)

	require.NoError(t, c.UpdatePastEvent(ctx, id, map[string]any{"title": "Mid-Autumn Festival"}))
	event, err = c.GetPastEvent(ctx, "mid-autumn-2023")
	require.NoError(t, err)
	assert.Equal(t, "Mid-Autumn Festival", event.Title)

	exists, err := c.CheckSlug(ctx, "mid-autumn-2023", nil)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = c.CheckSlug(ctx, "mid-autumn-2023", &id)
	require.NoError(t, err)
	assert.False(t, exists)

	year := 2023
	summaries, err := c.ListPastEvents(ctx, &year)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "mid-autumn-2023", summaries[0].Slug)

	years, err := c.ListYears(ctx)
	require.NoError(t, err)
	assert.Equal(t, []pastevent.YearAggregate{{Year: 2023, Count: 1}}, years)

	identity, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "curator@example.org", identity.Email)

	uploaded, err := c.UploadImage(ctx, "lantern.webp", "image/webp", strings.NewReader("RIFFfake"))
	require.NoError(t, err)
	assert.Equal(t, "image/webp", uploaded.MimeType)
	require.NoError(t, c.DeleteImage(ctx, uploaded.Filename))
	assert.ErrorIs(t, c.DeleteImage(ctx, uploaded.Filename), client.ErrNotFound)
}

func TestClient_ErrorMapping(t *testing.T) {
	srv, token := setupServer(t)
	c := newClient(t, srv.URL, client.NewMemoryStore(token))
	ctx := context.Background()

	_, err := c.GetPastEvent(ctx, "missing")
	assert.ErrorIs(t, err, client.ErrNotFound)

	_, err = c.CreatePastEvent(ctx, map[string]any{"slug": "dup", "title": "A", "year": 2020})
	require.NoError(t, err)
	_, err = c.CreatePastEvent(ctx, map[string]any{"slug": "dup", "title": "B", "year": 2020})
	assert.ErrorIs(t, err, client.ErrConflict)

	_, err = c.CreatePastEvent(ctx, map[string]any{"slug": "no-title", "year": 2020})
	var verr *pastevent.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "title", verr.Fields[0].Field)
}

func TestClient_UnauthorizedClearsCredential(t *testing.T) {
	srv, _ := setupServer(t)
	store := client.NewMemoryStore("not-a-token")
	c := newClient(t, srv.URL, store)

	_, err := c.CreatePastEvent(context.Background(), map[string]any{"slug": "x", "title": "X", "year": 2020})
	assert.ErrorIs(t, err, client.ErrUnauthorized)

	token, err := store.Token()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestClient_UnavailableKeepsCredential(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", api.RetryAfterSeconds)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":{"code":"verification_unavailable","message":"retry"}}`)
	}))
	defer srv.Close()

	store := client.NewMemoryStore("kept-token")
	c := newClient(t, srv.URL, store)

	_, err := c.CreatePastEvent(context.Background(), map[string]any{"slug": "x", "title": "X", "year": 2020})
	assert.ErrorIs(t, err, client.ErrUnavailable)
	var apiErr *client.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "verification_unavailable", apiErr.Code)
	assert.Equal(t, 5*time.Second, apiErr.RetryAfter)

	// writes are sent once
	assert.Equal(t, int32(1), calls.Load())

	token, err := store.Token()
	require.NoError(t, err)
	assert.Equal(t, "kept-token", token)
}

func TestClient_ReadsRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"year":2024,"count":2}]`)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, nil)
	years, err := c.ListYears(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []pastevent.YearAggregate{{Year: 2024, Count: 2}}, years)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ReadsDoNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, nil)
	_, err := c.GetPastEvent(context.Background(), "gone")
	assert.True(t, errors.Is(err, client.ErrNotFound))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_InvalidBaseURL(t *testing.T) {
	_, err := client.New("not a url")
	assert.Error(t, err)
}

func TestFileStore(t *testing.T) {
	store := client.NewFileStore(filepath.Join(t.TempDir(), "nested", "token"))

	token, err := store.Token()
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.Save("abc.def.ghi"))
	token, err = store.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	token, err = store.Token()
	require.NoError(t, err)
	assert.Empty(t, token)
}
