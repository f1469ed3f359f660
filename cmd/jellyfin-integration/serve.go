package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jellyfin-integration/internal/cleanup"
	"jellyfin-integration/internal/config"
	"jellyfin-integration/internal/db"
	"jellyfin-integration/internal/jellyfin"
	"jellyfin-integration/internal/prefs"

	"github.com/gofiber/fiber/v3"
	"github.com/gofrs/flock"
)

func runServe(ctx context.Context) error {
	cfg := config.Load()
	logger := setupLogger(cfg)

	lock := flock.New(cfg.SQLitePath + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another server is already using " + cfg.SQLitePath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", "error", err.Error())
		}
	}()

	sqlDB, err := db.Open(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer sqlDB.Close()

	if err := db.MigrateUp(sqlDB, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	store := prefs.New(sqlDB, cfg.AppID)
	gw := jellyfin.New(store, jellyfin.Options{
		Logger:  logger.With("component", "jellyfin"),
		AppURL:  cfg.AppURL(),
		Timeout: cfg.JellyfinTimeout(),
	})

	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN is not set; admin routes accept admin sessions only")
	}

	sweeper := cleanup.NewSweeper(sqlDB, cfg.SessionSweepInterval(), logger.With("component", "cleanup"))
	sweeper.Start(ctx)
	defer sweeper.Stop()

	app := newApp(deps{cfg: cfg, db: sqlDB, store: store, gw: gw, logger: logger})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting Jellyfin integration server", "port", cfg.Port, "app_url", cfg.AppURL())
		errCh <- app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	}
}
