// Command aggregate runs a single aggregation pass over the due sources.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"newsfeed/internal/config"
	"newsfeed/internal/fetcher"
	"newsfeed/internal/news"
	"newsfeed/internal/scheduler"
	"newsfeed/internal/storage"
)

func main() {
	config.LoadDotenv(".env.local", ".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	sourcesFile := flag.String("sources", cfg.SourcesFile, "path to the source registry")
	flag.Parse()

	log := cfg.Logger()

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	registry := fetcher.NewRegistry(fetcher.New(&http.Client{Timeout: cfg.FetchTimeout}), log)
	agg := scheduler.New(store, registry, log)
	agg.SetTimeout(cfg.FetchTimeout)
	agg.SetConcurrency(cfg.FetchConcurrency)
	svc := news.New(store, agg, *sourcesFile, log)

	code := run(ctx, svc, log)
	cancel()
	_ = store.Close()
	os.Exit(code)
}

func run(ctx context.Context, svc *news.Service, log *slog.Logger) int {
	if _, err := svc.LoadSources(ctx); err != nil {
		log.Error("load sources", "error", err)
		return 1
	}

	res := svc.AggregateNews(ctx)
	for _, e := range res.Errors {
		log.Warn("source failed", "run_id", res.RunID, "error", e)
	}
	log.Info("aggregation finished", "run_id", res.RunID, "fetched", res.Fetched, "new", res.New, "errors", len(res.Errors))
	if len(res.Errors) > 0 {
		return 1
	}
	return 0
}
