// Copyright 2025 The Franky Authors
// SPDX-License-Identifier: MIT

// Command franky runs the sync layer standalone: it bootstraps the local
// cache for one viewer, starts the background coordinators and keeps them
// aligned until interrupted. The in-app integration embeds app.Service
// directly; this binary exists for manual smoke-testing against a real
// Nexus and homeserver.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pubky/franky-sub016/app"
	"github.com/pubky/franky-sub016/homeserver"
	"github.com/pubky/franky-sub016/localdb"
	"github.com/pubky/franky-sub016/nexus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	viewerID := os.Getenv("FRANKY_VIEWER_ID")
	if viewerID == "" {
		return fmt.Errorf("FRANKY_VIEWER_ID is required")
	}
	nexusURL := envOr("FRANKY_NEXUS_URL", "https://nexus.pubky.app")
	homeserverURL := envOr("FRANKY_HOMESERVER_URL", "https://homeserver.pubky.app")
	dbPath := envOr("FRANKY_DB_PATH", "franky.db")
	sessionSecret := os.Getenv("FRANKY_SESSION_SECRET")
	if sessionSecret == "" {
		return fmt.Errorf("FRANKY_SESSION_SECRET is required")
	}

	cfg := app.LoadFromEnv(nil)

	db, err := localdb.Open(dbPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	session := homeserver.NewSessionAuth(sessionSecret).TokenSource(viewerID, time.Hour)
	svc := app.NewService(cfg, db,
		nexus.NewClient(nexusURL, logger),
		homeserver.NewClient(homeserverURL, viewerID, session, logger),
		viewerID, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("bootstrapping", "viewer", viewerID, "nexus", nexusURL)
	if err := svc.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	notifications := app.NewNotificationCoordinator(svc)
	timeline := app.NewStreamCoordinator(svc)
	notifications.Start(ctx)
	timeline.Start(ctx)
	defer notifications.Stop()
	defer timeline.Stop()

	logger.Info("coordinators running; ctrl-c to stop")
	<-ctx.Done()
	return nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
