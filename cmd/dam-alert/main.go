package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-dam-alerts/internal/api"
	"github.com/mr1hm/go-dam-alerts/internal/cache"
	"github.com/mr1hm/go-dam-alerts/internal/config"
	"github.com/mr1hm/go-dam-alerts/internal/feed"
	"github.com/mr1hm/go-dam-alerts/internal/ingestion"
	"github.com/mr1hm/go-dam-alerts/internal/logging"
	"github.com/mr1hm/go-dam-alerts/internal/query"
	"github.com/mr1hm/go-dam-alerts/internal/repository"
	"github.com/mr1hm/go-dam-alerts/internal/stream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, os.Stdout)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "feed", cfg.Feed.URL)

	if cfg.DB.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.Path), 0o755); err != nil {
			logging.Fatalf("Failed to create database directory: %v", err)
		}
	}
	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feedCache := cache.New(feed.NewClient(cfg.Feed.URL, cfg.Feed.Timeout), cache.Options{
		MaxAge:          cfg.Feed.MaxAge,
		Timeout:         cfg.Feed.Timeout,
		BreakerFailures: uint32(cfg.Feed.BreakerFailures),
		BreakerCooldown: cfg.Feed.BreakerCooldown,
	})
	queries := query.NewService(repository.NewDamRepository(feedCache))

	// Fans escalations out to SSE subscribers
	broadcaster := stream.NewBroadcaster()

	mgr := ingestion.NewManager(cfg, feedCache, db, broadcaster)
	mgr.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // must stay false with wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS, "/health", "/api/alerts/stream"))

	handler := api.NewHandler(feedCache, queries, db, broadcaster)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	mgr.Stop()
	broadcaster.Close() // ends open SSE streams

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
