package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/heritage-site/internal/metrics"
	"github.com/tendant/heritage-site/internal/ratelimit"
	"github.com/tendant/heritage-site/pkg/pastevent"
	"github.com/tendant/heritage-site/pkg/pastevent/auth"
	"github.com/tendant/heritage-site/pkg/pastevent/repo/memory"
	memorystorage "github.com/tendant/heritage-site/pkg/pastevent/storage/memory"
)

func setupRouter(t *testing.T, limiterOpts ...ratelimit.Option) (http.Handler, string) {
	t.Helper()

	admin := pastevent.Identity{UserID: uuid.New(), Email: "curator@example.org", Role: "admin"}
	ja := auth.NewJWTAuth("router-test-secret")
	gate, err := auth.NewJWTGate(ja, auth.NewMemoryUsers(admin))
	require.NoError(t, err)
	token, err := auth.NewIssuer(ja, time.Hour).Issue(admin)
	require.NoError(t, err)

	svc, err := pastevent.New(pastevent.WithRepository(memory.New()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	router, err := newRouter(routerDeps{
		service:     svc,
		gate:        gate,
		store:       memorystorage.New(),
		limiter:     ratelimit.New(ctx, limiterOpts...),
		metrics:     metrics.New(),
		environment: "test",
	})
	require.NoError(t, err)
	return router, token
}

func serve(h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Healthz(t *testing.T) {
	router, _ := setupRouter(t)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/healthz/ready", "", "").Code)
}

func TestRouter_PublishAndResolve(t *testing.T) {
	router, token := setupRouter(t)

	rec := serve(router, http.MethodPost, "/api/past-events", `{"slug":"tet-2025","title":"Tet","year":2025}`, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(router, http.MethodGet, "/api/past-events/tet-2025", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"featureList":{"items":[]}`)

	rec = serve(router, http.MethodGet, "/api/past-events/years", "", "")
	assert.JSONEq(t, `[{"year":2025,"count":1}]`, rec.Body.String())
}

func TestRouter_MetricsCountGateResults(t *testing.T) {
	router, token := setupRouter(t)

	serve(router, http.MethodPost, "/api/past-events", `{"slug":"a","title":"A","year":2020}`, "")
	serve(router, http.MethodPost, "/api/past-events", `{"slug":"b","title":"B","year":2020}`, token)

	rec := serve(router, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `credential_verifications_total{kind="unauthenticated"} 1`)
	assert.Contains(t, body, `credential_verifications_total{kind="authenticated"} 1`)
	assert.Contains(t, body, "http_requests_total")
}

func TestRouter_WritesAreRateLimited(t *testing.T) {
	router, token := setupRouter(t, ratelimit.WithRate(0.001, 1))

	rec := serve(router, http.MethodPost, "/api/past-events", `{"slug":"first","title":"F","year":2020}`, token)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(router, http.MethodPost, "/api/past-events", `{"slug":"second","title":"S","year":2020}`, token)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// reads are not limited
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/past-events", "", "").Code)
}
