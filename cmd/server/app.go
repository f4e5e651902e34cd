package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/platewise-api/internal/analysis"
	"github.com/phrazzld/platewise-api/internal/config"
	"github.com/phrazzld/platewise-api/internal/platform/gemini"
	"github.com/phrazzld/platewise-api/internal/task"
	"github.com/phrazzld/platewise-api/internal/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	// Configuration
	config *config.Config

	// Core services
	logger   *slog.Logger
	registry *prometheus.Registry

	// Analysis
	analyzer  analysis.Analyzer
	workflows *workflow.Service

	// Task handling
	processor *task.Processor
}

// newApplication creates a new application instance backed by the Gemini
// analyzer.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	analyzer, err := gemini.NewAnalyzer(ctx, logger, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini analyzer: %w", err)
	}
	logger.Info("Gemini analyzer initialized", "model", cfg.LLM.ModelName)

	return newApplicationWithAnalyzer(cfg, logger, analyzer)
}

// newApplicationWithAnalyzer wires the application around the given analyzer
// and starts the task processor.
func newApplicationWithAnalyzer(
	cfg *config.Config,
	logger *slog.Logger,
	analyzer analysis.Analyzer,
) (*application, error) {
	app := &application{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		analyzer: analyzer,
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app.processor = setupTaskProcessor(app)

	var err error
	app.workflows, err = workflow.NewService(app.processor, analyzer, workflow.Config{
		AnalysisTimeout:  cfg.Task.AnalysisTimeout,
		BatchConcurrency: cfg.Task.BatchConcurrency,
	}, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create workflow service: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// setupTaskProcessor creates the background task processor from the task
// configuration and starts its workers.
func setupTaskProcessor(app *application) *task.Processor {
	cfg := app.config.Task
	processor := task.NewProcessor(task.ProcessorConfig{
		MaxWorkers: cfg.MaxWorkers,
		QueueSize:  cfg.QueueSize,
		DefaultRetry: task.RetryPolicy{
			MaxRetries: cfg.DefaultMaxRetries,
			Delay:      cfg.DefaultRetryDelay,
			Strategy:   task.BackoffConstant,
		},
		CleanupInterval: cfg.CleanupInterval,
		CompletedTTL:    cfg.CompletedTTL,
	}, app.logger, task.WithRegisterer(app.registry))

	processor.Start()
	app.logger.Info("Task processor started",
		"max_workers", cfg.MaxWorkers,
		"queue_size", cfg.QueueSize)
	return processor
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.processor != nil {
		app.processor.Stop()
		app.logger.Info("Task processor stopped")
	}
}
