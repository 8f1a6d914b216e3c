// Command api is the cricket operator API server.
//
// Usage:
//
//	cricket-api
//	API_PORT=8080 cricket-api

// @title Cricket Live Stats API
// @version 1.0.0
// @description Operator API for the Cricbuzz ETL: trigger runs, inspect provider usage, run the analytics views, browse live listings, and manage the crud_info table.
// @host localhost:8000
// @BasePath /
// @schemes http https
// @contact.name Cricket Live Stats
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/albapepper/cricket-livestats/internal/analytics"
	"github.com/albapepper/cricket-livestats/internal/api"
	"github.com/albapepper/cricket-livestats/internal/api/handler"
	"github.com/albapepper/cricket-livestats/internal/cache"
	"github.com/albapepper/cricket-livestats/internal/config"
	"github.com/albapepper/cricket-livestats/internal/db"
	"github.com/albapepper/cricket-livestats/internal/provider/cricbuzz"
	"github.com/albapepper/cricket-livestats/internal/schema"
	"github.com/albapepper/cricket-livestats/internal/seed"

	_ "github.com/albapepper/cricket-livestats/docs" // swagger docs
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := schema.Migrate(ctx, cfg.MigrationURL(), logger); err != nil {
		logger.Error("Failed to migrate schema", "error", err)
		os.Exit(1)
	}

	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	policy := analytics.DefaultPolicy()
	if err := analytics.CreateViews(ctx, pool, policy, logger); err != nil {
		logger.Warn("Analytics views not created; queries will fail until an ETL run succeeds", "error", err)
	}

	appCache := cache.New(cfg.CacheEnabled)
	if cfg.CacheEnabled && cfg.RedisURL != "" {
		rdb, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis unavailable; cache stays in memory", "error", err)
		} else {
			defer rdb.Close()
			appCache.WithRedis(rdb, "cricket:")
		}
	}
	go appCache.Run(ctx, 5*time.Minute)
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled, "shared", appCache.Stats().Shared)

	client := cricbuzz.NewClient(cricbuzz.ConfigFrom(cfg), logger)
	if cfg.RapidAPIKey == "" {
		logger.Warn("RAPIDAPI_KEY is not set; ETL and live endpoints will fail")
	}

	h := handler.New(handler.Deps{
		DB:     pool,
		ETL:    seed.NewRunner(pool, client, logger),
		Live:   client,
		Cache:  appCache,
		Policy: policy,
		Logger: logger,
	})
	router := api.NewRouter(h, cfg, logger)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// ETL triggers run synchronously and can take minutes.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting Cricket Live Stats API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}
