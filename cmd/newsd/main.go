package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"

	"newsfeed/internal/api"
	"newsfeed/internal/bot"
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

	log := cfg.Logger()

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	registry := fetcher.NewRegistry(fetcher.New(&http.Client{Timeout: cfg.FetchTimeout}), log)
	agg := scheduler.New(store, registry, log)
	agg.SetTimeout(cfg.FetchTimeout)
	agg.SetConcurrency(cfg.FetchConcurrency)

	svc := news.New(store, agg, cfg.SourcesFile, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := svc.LoadSources(ctx); err != nil {
		log.Error("load sources", "path", cfg.SourcesFile, "error", err)
		os.Exit(1)
	}

	if cfg.AggregateInterval > 0 {
		log.Info("starting aggregation loop", "every", cfg.AggregateInterval)
		go agg.Loop(ctx, cfg.AggregateInterval)
	}

	if cfg.TelegramBotToken != "" {
		b, err := bot.New(cfg.TelegramBotToken, svc, cfg, log)
		if err != nil {
			log.Error("create bot", "error", err)
			os.Exit(1)
		}
		log.Info("starting bot")
		go b.Run(ctx)
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(svc, log),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Minute,
	}

	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}

	log.Info("server stopped")
}
