// Package main implements the entry point for the Platewise API server,
// which accepts meal photos and produces nutrition feedback asynchronously
// through the background task processor.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// run loads configuration, wires the application and serves until a
// shutdown signal arrives or ctx is cancelled.
func run(ctx context.Context) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}

	logger, err := setupAppLogger(cfg)
	if err != nil {
		return err
	}

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.Run(ctx)
}
