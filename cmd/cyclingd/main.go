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

	"github.com/lucasjlepore/cycling-analyzer/internal/cache"
	"github.com/lucasjlepore/cycling-analyzer/internal/cfg"
	"github.com/lucasjlepore/cycling-analyzer/internal/importer"
	"github.com/lucasjlepore/cycling-analyzer/internal/scorer"
	"github.com/lucasjlepore/cycling-analyzer/internal/store"
	"github.com/lucasjlepore/cycling-analyzer/internal/web"
	"github.com/lucasjlepore/cycling-analyzer/samplecache"
)

func main() {
	configPath := flag.String("config", "./cycling.json", "path to config")
	flag.Parse()

	c := cfg.Load(*configPath)
	logger := c.Logger()
	slog.SetDefault(logger)

	db, err := store.Open(c.DBPath)
	if err != nil {
		logger.Error("db open", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := store.Migrate(db); err != nil {
		logger.Error("migrate", "err", err)
		os.Exit(1)
	}

	samples, err := samplecache.New(c.CacheDir)
	if err != nil {
		logger.Error("sample cache", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var snapshots cache.Snapshots = cache.NewMemory()
	if c.RedisAddr != "" {
		rc, err := cache.NewRedis(ctx, c.RedisAddr, 24*time.Hour)
		if err != nil {
			logger.Warn("redis unavailable, using in-process cache", "addr", c.RedisAddr, "err", err)
		} else {
			defer rc.Close()
			snapshots = rc
		}
	}

	sc := &scorer.Scorer{DB: db, Samples: samples, Cache: snapshots, Logger: logger}
	im := importer.New(c, db, samples, logger)

	go func() {
		if err := im.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("importer stopped", "err", err)
		}
	}()

	srv := web.New(c, db, sc, im, logger).HTTPServer()
	go func() {
		logger.Info("http: listening", "addr", c.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	logger.Info("bye")
}
