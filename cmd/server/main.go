package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tendant/heritage-site/internal/metrics"
	"github.com/tendant/heritage-site/internal/ratelimit"
	"github.com/tendant/heritage-site/pkg/pastevent/config"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file; environment variables override it")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("Failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg)

	if err := run(cfg); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg *config.ServerConfig) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevelValue()}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(cfg *config.ServerConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := cfg.Connect(ctx)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	repo, err := cfg.BuildRepository(ctx, pool)
	if err != nil {
		return err
	}
	svc, err := cfg.BuildService(repo)
	if err != nil {
		return err
	}
	store, err := cfg.BuildBlobStore()
	if err != nil {
		return err
	}
	users, err := cfg.BuildUserDirectory(ctx, pool)
	if err != nil {
		return err
	}
	gate, err := cfg.BuildGate(users)
	if err != nil {
		return err
	}

	m := metrics.New()
	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(cfg.WriteRateLimit, cfg.WriteRateBurst),
		ratelimit.WithOnFirstDenied(func(ip string) {
			slog.Warn("Admin writes rate limited", "ip", ip)
		}),
		ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
	)

	router, err := newRouter(routerDeps{
		service:     svc,
		gate:        gate,
		store:       store,
		limiter:     limiter,
		metrics:     m,
		environment: cfg.Environment,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Heritage site server starting",
			"addr", httpServer.Addr,
			"environment", cfg.Environment,
			"postgres", cfg.UsesPostgres(),
			"storage", cfg.StorageURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
