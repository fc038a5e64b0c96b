package main

import (
	"context"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/jobradar/jobradar/internal/app"
	"github.com/jobradar/jobradar/internal/config"
	"github.com/jobradar/jobradar/pkg/logging"
	"github.com/jobradar/jobradar/pkg/shutdown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	resources, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to wire resources", "err", err)
		os.Exit(1)
	}

	if err := resources.Start(ctx); err != nil {
		logger.Error("failed to start workers", "err", err)
		os.Exit(1)
	}

	logger.Info("ingestion service started",
		"workers", cfg.Queue.Workers,
		"schedulerEnabled", cfg.Scheduler.Enabled,
		"sites", resources.Registry.EnabledSites())

	shutdown.Graceful(
		[]os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP},
		resources,
		10*time.Second,
		logger,
	)

	logger.Info("ingestion service stopped")
}
