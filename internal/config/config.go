package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Task   TaskConfig   `mapstructure:"task" validate:"required"`
	LLM    LLMConfig    `mapstructure:"llm" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// TaskConfig contains the settings of the background task processor.
type TaskConfig struct {
	// MaxWorkers is the number of tasks executed concurrently
	MaxWorkers int `mapstructure:"max_workers" validate:"gt=0"`

	// QueueSize bounds pending tasks; submitters wait beyond it
	QueueSize int `mapstructure:"queue_size" validate:"gt=0"`

	DefaultMaxRetries int           `mapstructure:"default_max_retries" validate:"gte=0"`
	DefaultRetryDelay time.Duration `mapstructure:"default_retry_delay" validate:"gte=0"`

	// AnalysisTimeout bounds a single meal analysis attempt
	AnalysisTimeout time.Duration `mapstructure:"analysis_timeout" validate:"gt=0"`

	// BatchConcurrency limits parallel analyses within one batch task
	BatchConcurrency int `mapstructure:"batch_concurrency" validate:"gt=0"`

	// CleanupInterval of zero disables the periodic sweep of finished tasks
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gte=0"`
	CompletedTTL    time.Duration `mapstructure:"completed_ttl" validate:"gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name" validate:"required"`
}
