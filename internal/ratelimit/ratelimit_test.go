package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPLimiter_Middleware(t *testing.T) {
	var denied, firstDenied atomic.Int32
	l := New(t.Context(),
		WithRate(0.001, 2),
		WithOnDenied(func(string) { denied.Add(1) }),
		WithOnFirstDenied(func(string) { firstDenied.Add(1) }),
	)

	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/past-events", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{204, 204, 429, 429}, codes)
	assert.Equal(t, int32(2), denied.Load())
	assert.Equal(t, int32(1), firstDenied.Load())

	other := httptest.NewRequest(http.MethodPost, "/api/past-events", nil)
	other.RemoteAddr = "198.51.100.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIPLimiter_CleanupStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New(ctx)
	assert.True(t, l.Allow("192.0.2.1"))
	cancel()
}
