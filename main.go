package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stayswap/engine/engine"
	"github.com/stayswap/engine/engine/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := engine.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Level, cfg.Log.AddSource)))
	slog.Info("Starting stayswap engine",
		slog.String("version", version),
		slog.String("commit", commit))

	setupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	eng := engine.New(*cfg)
	if err := eng.Setup(setupCtx, engine.Options{}); err != nil {
		slog.Error("Engine setup failed", slog.Any("error", err))
		os.Exit(-1)
	}
	defer eng.Close()

	slog.Info("Engine ready",
		slog.String("database", cfg.DB.Database),
		slog.Duration("sweep_interval", cfg.Auction.SweepInterval()))

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Scheduler.Run(runCtx); err != nil && err != context.Canceled {
		slog.Error("Sweep scheduler stopped", slog.Any("error", err))
		os.Exit(-1)
	}

	slog.Info("Shutting down")
}
