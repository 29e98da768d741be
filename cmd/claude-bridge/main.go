package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/modelbridge/claude-bridge/internal/config"
	"github.com/modelbridge/claude-bridge/internal/metrics"
	"github.com/modelbridge/claude-bridge/internal/provider"
	"github.com/modelbridge/claude-bridge/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)
	cfg.LogStartup(log)

	backend, err := provider.New(cfg)
	if err != nil {
		log.Error("backend setup failed", "error", err)
		os.Exit(1)
	}

	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := server.New(cfg, backend, metrics.New(), log)
	if err := srv.Router().Run(cfg.Addr()); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
