package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tendant/heritage-site/pkg/pastevent"
	"github.com/tendant/heritage-site/pkg/pastevent/config"
	"github.com/tendant/heritage-site/pkg/pastevent/docfile"
)

func main() {
	file := flag.String("file", "seed.yaml", "YAML or JSON file with the documents to load")
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	_ = config.LoadDotEnv()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if !cfg.UsesPostgres() {
		slog.Warn("DATABASE_URL is memory; seeded records are discarded on exit")
	}

	ctx := context.Background()
	pool, err := cfg.Connect(ctx)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	repo, err := cfg.BuildRepository(ctx, pool)
	if err != nil {
		slog.Error("Failed to build repository", "error", err)
		os.Exit(1)
	}
	svc, err := cfg.BuildService(repo)
	if err != nil {
		slog.Error("Failed to build service", "error", err)
		os.Exit(1)
	}

	docs, err := docfile.ReadAll(*file)
	if err != nil {
		slog.Error("Failed to read seed file", "error", err)
		os.Exit(1)
	}

	result := seed(ctx, svc, docs)
	fmt.Printf("created=%d skipped=%d failed=%d\n", result.created, result.skipped, result.failed)
	if result.failed > 0 {
		os.Exit(1)
	}
}

type seedResult struct {
	created, skipped, failed int
}

// seed creates every document. Documents whose slug already exists are
// skipped, so the seed file can be re-applied.
func seed(ctx context.Context, svc pastevent.Service, docs [][]byte) seedResult {
	var result seedResult
	for i, raw := range docs {
		doc, err := pastevent.ParseDocument(raw)
		if err != nil {
			slog.Error("Invalid seed document", "index", i, "error", err)
			result.failed++
			continue
		}

		id, err := svc.CreatePastEvent(ctx, doc)
		switch {
		case errors.Is(err, pastevent.ErrSlugConflict):
			slog.Info("Past event already seeded", "slug", doc.Slug)
			result.skipped++
		case err != nil:
			slog.Error("Failed to seed past event", "slug", doc.Slug, "error", err)
			result.failed++
		default:
			slog.Info("Past event seeded", "slug", doc.Slug, "id", id.String())
			result.created++
		}
	}
	return result
}
