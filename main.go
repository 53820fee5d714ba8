package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"

	"nearest-point-service/api"
	"nearest-point-service/cache"
	"nearest-point-service/config"
	"nearest-point-service/spatial"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	qc := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
		time.Duration(cfg.Redis.TTLSeconds)*time.Second, logger)

	index := spatial.New(spatial.Options{
		OverridePath: cfg.Dataset.Path,
		Candidates:   cfg.Dataset.Candidates,
		MinChildren:  cfg.Index.MinChildren,
		MaxChildren:  cfg.Index.MaxChildren,
	}, logger)

	// The build normally runs lazily on the first query; prewarming moves
	// it to startup without blocking the listener.
	if cfg.Index.Prewarm {
		go func() {
			if err := index.EnsureReady(); err != nil {
				logger.Error("index prewarm failed", "error", err)
			}
		}()
	}

	server := api.NewServer(index, qc, logger)
	handler := handlers.LoggingHandler(os.Stdout, server.Routes())

	logger.Info("server started", "addr", cfg.Server.Addr)
	if err := http.ListenAndServe(cfg.Server.Addr, handler); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
