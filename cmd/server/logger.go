package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/platewise-api/internal/config"
	"github.com/phrazzld/platewise-api/internal/platform/logger"
)

// setupAppLogger configures and initializes the application logger based on config settings.
// Returns the configured logger or an error if setup fails.
func setupAppLogger(cfg *config.Config) (*slog.Logger, error) {
	l, err := logger.Setup(logger.LoggerConfig{
		Level: cfg.Server.LogLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return l, nil
}
