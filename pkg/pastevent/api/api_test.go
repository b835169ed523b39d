package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/heritage-site/pkg/pastevent"
	"github.com/tendant/heritage-site/pkg/pastevent/auth"
	"github.com/tendant/heritage-site/pkg/pastevent/repo/memory"
	memorystorage "github.com/tendant/heritage-site/pkg/pastevent/storage/memory"
)

// slowUsers blocks until the lookup deadline passes.
type slowUsers struct{}

func (slowUsers) LookupUser(ctx context.Context, id uuid.UUID) (*pastevent.Identity, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type testEnv struct {
	router http.Handler
	repo   *memory.Repository
	store  *memorystorage.Backend
	token  string
	admin  pastevent.Identity
}

func setupTestEnv(t *testing.T, users auth.UserDirectory) *testEnv {
	t.Helper()

	admin := pastevent.Identity{UserID: uuid.New(), Email: "curator@example.org", Name: "Curator", Role: "admin"}
	if users == nil {
		users = auth.NewMemoryUsers(admin)
	}

	ja := auth.NewJWTAuth("api-test-secret")
	gate, err := auth.NewJWTGate(ja, users, auth.WithLookupTimeout(20*time.Millisecond))
	require.NoError(t, err)
	token, err := auth.NewIssuer(ja, time.Hour).Issue(admin)
	require.NoError(t, err)

	repo := memory.New()
	svc, err := pastevent.New(pastevent.WithRepository(repo), pastevent.WithReadRetry(1, time.Millisecond))
	require.NoError(t, err)
	author, err := pastevent.NewAuthor(gate, svc)
	require.NoError(t, err)

	store := memorystorage.New()
	uploader, err := pastevent.NewImageUploader(store)
	require.NoError(t, err)

	uploads := NewUploadHandler(uploader, gate)
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Mount("/past-events", NewPastEventHandler(svc, author).Routes())
		r.Mount("/uploads", uploads.AdminRoutes())
		r.Mount("/auth", NewAuthHandler(gate).Routes())
	})
	r.Mount("/uploads", uploads.PublicRoutes())

	return &testEnv{router: r, repo: repo, store: store, token: token, admin: admin}
}

func (e *testEnv) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

func TestPastEventHandler_CreateAndResolve(t *testing.T) {
	env := setupTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/past-events",
		`{"slug":"hoi-an-2024","title":"Hoi An Lanterns","year":"2024","intro":{"content":"Hi"}}`, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created IDResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	_, err := uuid.Parse(created.ID)
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/api/past-events/hoi-an-2024", "", false)
	require.Equal(t, http.StatusOK, rec.Code)

	var event map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
	assert.JSONEq(t, `{"content":"Hi","align":"start"}`, string(event["intro"]))
	assert.JSONEq(t, `{}`, string(event["hero"]))
	assert.JSONEq(t, `{"items":[]}`, string(event["featureList"]))
	assert.JSONEq(t, `{"images":[]}`, string(event["gallery"]))
	assert.JSONEq(t, `{"content":""}`, string(event["conclusion"]))
	assert.JSONEq(t, `2024`, string(event["year"]))
}

func TestPastEventHandler_NotFound(t *testing.T) {
	env := setupTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/past-events/nope", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, "not_found", detail.Code)
	assert.Empty(t, detail.Fields)
}

func TestPastEventHandler_ListingAndYears(t *testing.T) {
	env := setupTestEnv(t, nil)
	for _, body := range []string{
		`{"slug":"a","title":"A","year":2024}`,
		`{"slug":"b","title":"B","year":2023}`,
		`{"slug":"c","title":"C","year":2024,"gallery":{"images":[{"url":"/uploads/x.jpg"}]}}`,
	} {
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/past-events", body, true).Code)
	}

	rec := env.do(t, http.MethodGet, "/api/past-events", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing, 3)
	years := []string{string(listing[0]["year"]), string(listing[1]["year"]), string(listing[2]["year"])}
	assert.Equal(t, []string{"2024", "2024", "2023"}, years)
	for _, item := range listing {
		assert.NotContains(t, item, "gallery")
		assert.NotContains(t, item, "hero")
	}

	rec = env.do(t, http.MethodGet, "/api/past-events?year=2023", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Len(t, listing, 1)

	rec = env.do(t, http.MethodGet, "/api/past-events?year=abc", "", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "year", decodeError(t, rec).Fields[0].Field)

	rec = env.do(t, http.MethodGet, "/api/past-events/years", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"year":2024,"count":2},{"year":2023,"count":1}]`, rec.Body.String())
}

func TestPastEventHandler_WritesRequireCredential(t *testing.T) {
	env := setupTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/past-events", `{"slug":"x","title":"X","year":2024}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decodeError(t, rec).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/past-events", strings.NewReader(`{"slug":"x","title":"X","year":2024}`))
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credential", decodeError(t, rec).Code)

	// validation failures are not revealed to unauthenticated callers
	rec = env.do(t, http.MethodPost, "/api/past-events", `{"slug":"BAD SLUG"}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	counts, err := env.repo.ListYearAggregates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestPastEventHandler_VerificationUnavailable(t *testing.T) {
	env := setupTestEnv(t, slowUsers{})

	rec := env.do(t, http.MethodPost, "/api/past-events", `{"slug":"x","title":"X","year":2024}`, true)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, RetryAfterSeconds, rec.Header().Get("Retry-After"))
	assert.Equal(t, "verification_unavailable", decodeError(t, rec).Code)

	counts, err := env.repo.ListYearAggregates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)

	// reads are ungated
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/past-events", "", false).Code)
}

func TestPastEventHandler_ValidationAndConflict(t *testing.T) {
	env := setupTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/past-events", `{"slug":"ok","title":"","year":"soon"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, "validation_failed", detail.Code)
	fields := []string{}
	for _, f := range detail.Fields {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{"title", "year"}, fields)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/past-events", `{"slug":"dup","title":"First","year":2020}`, true).Code)
	rec = env.do(t, http.MethodPost, "/api/past-events", `{"slug":"dup","title":"Second","year":2021}`, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slug_conflict", decodeError(t, rec).Code)

	rec = env.do(t, http.MethodGet, "/api/past-events/dup", "", false)
	assert.Contains(t, rec.Body.String(), `"title":"First"`)
}

func TestPastEventHandler_RejectsRouteSlugs(t *testing.T) {
	env := setupTestEnv(t, nil)

	for _, slug := range []string{"years", "check-slug"} {
		rec := env.do(t, http.MethodPost, "/api/past-events", `{"slug":"`+slug+`","title":"T","year":2024}`, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code, slug)
		detail := decodeError(t, rec)
		require.Len(t, detail.Fields, 1)
		assert.Equal(t, "slug", detail.Fields[0].Field)
	}

	rec := env.do(t, http.MethodGet, "/api/past-events/years", "", false)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestPastEventHandler_Update(t *testing.T) {
	env := setupTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/past-events", `{"slug":"edit-me","title":"Before","year":2020}`, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created IDResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.do(t, http.MethodPut, "/api/past-events/"+created.ID, `{"title":"After","conclusion":{"content":"fin"}}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"`+created.ID+`"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/past-events/edit-me", "", false)
	assert.Contains(t, rec.Body.String(), `"title":"After"`)
	assert.Contains(t, rec.Body.String(), `"content":"fin"`)

	rec = env.do(t, http.MethodPut, "/api/past-events/"+created.ID, `{"slug":"renamed"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/past-events/"+uuid.NewString(), `{"title":"x"}`, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/past-events/not-a-uuid", `{"title":"x"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/past-events/"+created.ID, `{"title":"x"}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPastEventHandler_CheckSlug(t *testing.T) {
	env := setupTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/past-events", `{"slug":"taken","title":"T","year":2020}`, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created IDResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.do(t, http.MethodGet, "/api/past-events/check-slug?slug=TAKEN", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"exists":true}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/past-events/check-slug?slug=taken&excludeId="+created.ID, "", true)
	assert.JSONEq(t, `{"exists":false}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/past-events/check-slug?slug=taken&excludeId=zzz", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/past-events/check-slug?slug=taken", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func multipartImage(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestUploadHandler(t *testing.T) {
	env := setupTestEnv(t, nil)

	upload := func(filename, contentType string, data []byte, authed bool) *httptest.ResponseRecorder {
		body, ct := multipartImage(t, filename, contentType, data)
		req := httptest.NewRequest(http.MethodPost, "/api/uploads/images", body)
		req.Header.Set("Content-Type", ct)
		if authed {
			req.Header.Set("Authorization", "Bearer "+env.token)
		}
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("gate.png", "image/png", []byte("\x89PNG fake"), true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var uploaded pastevent.UploadedImage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))
	assert.True(t, strings.HasPrefix(uploaded.URL, "/uploads/"))

	rec = env.do(t, http.MethodGet, uploaded.URL, "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG fake", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, upload("gate.png", "image/png", []byte("x"), false).Code)
	assert.Equal(t, http.StatusUnsupportedMediaType, upload("doc.pdf", "application/pdf", []byte("%PDF"), true).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge,
		upload("big.jpg", "image/jpeg", bytes.Repeat([]byte("a"), pastevent.MaxImageSize+1), true).Code)

	rec = env.do(t, http.MethodDelete, "/api/uploads/images/"+uploaded.Filename, "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, env.store.Len())

	rec = env.do(t, http.MethodDelete, "/api/uploads/images/"+uploaded.Filename, "", true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, env.store.Len())

	rec = env.do(t, http.MethodDelete, "/api/uploads/images/"+uploaded.Filename, "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, uploaded.URL, "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthHandler_Me(t *testing.T) {
	env := setupTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/auth/me", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var identity pastevent.Identity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &identity))
	assert.Equal(t, env.admin, identity)

	rec = env.do(t, http.MethodGet, "/api/auth/me", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandler_MeUnavailable(t *testing.T) {
	env := setupTestEnv(t, slowUsers{})

	rec := env.do(t, http.MethodGet, "/api/auth/me", "", true)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, RetryAfterSeconds, rec.Header().Get("Retry-After"))
}
