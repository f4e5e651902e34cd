package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/platewise-api/internal/config"
)

// loadAppConfig loads the application configuration from environment variables or config file.
// Returns the loaded config and any loading error.
func loadAppConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)
	slog.Debug("Task configuration",
		"max_workers", cfg.Task.MaxWorkers,
		"queue_size", cfg.Task.QueueSize,
		"default_max_retries", cfg.Task.DefaultMaxRetries,
		"cleanup_interval", cfg.Task.CleanupInterval)

	return cfg, nil
}
