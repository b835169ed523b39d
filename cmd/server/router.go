package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/heritage-site/internal/metrics"
	"github.com/tendant/heritage-site/internal/ratelimit"
	"github.com/tendant/heritage-site/pkg/pastevent"
	"github.com/tendant/heritage-site/pkg/pastevent/api"
)

// routerDeps are the wired components behind the HTTP surface.
type routerDeps struct {
	service     pastevent.Service
	gate        pastevent.CredentialGate
	store       pastevent.BlobStore
	limiter     *ratelimit.IPLimiter
	metrics     *metrics.ServerMetrics
	environment string
}

func newRouter(d routerDeps) (*chi.Mux, error) {
	gate := d.metrics.ObserveGate(d.gate)

	author, err := pastevent.NewAuthor(gate, d.service)
	if err != nil {
		return nil, fmt.Errorf("failed to create author: %w", err)
	}
	uploader, err := pastevent.NewImageUploader(d.store)
	if err != nil {
		return nil, fmt.Errorf("failed to create uploader: %w", err)
	}

	writeLimit := api.Middleware(d.limiter.Middleware)
	pastEvents := api.NewPastEventHandler(d.service, author, api.WithWriteMiddleware(writeLimit))
	uploads := api.NewUploadHandler(uploader, gate, writeLimit)
	authHandler := api.NewAuthHandler(gate)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(d.metrics.Middleware)
	r.Use(middleware.Timeout(60 * time.Second))

	if d.environment == "development" {
		r.Use(devCORS)
	}

	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)
	r.Method(http.MethodGet, "/metrics", d.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Mount("/past-events", pastEvents.Routes())
		r.Mount("/uploads", uploads.AdminRoutes())
		r.Mount("/auth", authHandler.Routes())
	})
	r.Mount("/uploads", uploads.PublicRoutes())

	return r, nil
}

func devCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
