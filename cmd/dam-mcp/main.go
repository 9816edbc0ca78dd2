package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mr1hm/go-dam-alerts/internal/cache"
	"github.com/mr1hm/go-dam-alerts/internal/config"
	"github.com/mr1hm/go-dam-alerts/internal/feed"
	"github.com/mr1hm/go-dam-alerts/internal/logging"
	"github.com/mr1hm/go-dam-alerts/internal/mcpserver"
	"github.com/mr1hm/go-dam-alerts/internal/query"
	"github.com/mr1hm/go-dam-alerts/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	// stdout carries the JSON-RPC stream
	logging.Setup(cfg.Logging.Level, os.Stderr)

	slog.Info("MCP server starting", "feed", cfg.Feed.URL, "version", mcpserver.Version)

	feedCache := cache.New(feed.NewClient(cfg.Feed.URL, cfg.Feed.Timeout), cache.Options{
		MaxAge:          cfg.Feed.MaxAge,
		Timeout:         cfg.Feed.Timeout,
		BreakerFailures: uint32(cfg.Feed.BreakerFailures),
		BreakerCooldown: cfg.Feed.BreakerCooldown,
	})
	dams := repository.NewDamRepository(feedCache)

	s := mcpserver.New(query.NewService(dams), dams)
	if err := server.ServeStdio(s); err != nil {
		logging.Fatalf("MCP server error: %v", err)
	}
}
