package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
// URL is only required when the postgres queue backend is selected.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// AuthConfig contains the API authentication settings.
// An empty secret disables bearer-token checks on the API.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
}

// QueueConfig contains the task queue settings shared by the server and
// worker processes.
type QueueConfig struct {
	// Backend names the queue store implementation.
	Backend string `mapstructure:"backend" validate:"required,oneof=memory postgres"`

	// Channels the async pool and workers poll. Empty means all channels.
	Channels []string `mapstructure:"channels"`

	// WorkerCount is the number of independent worker loops per process.
	WorkerCount int `mapstructure:"worker_count" validate:"gte=1,lte=256"`

	// PollWaitMs bounds how long a single dequeue blocks.
	PollWaitMs int `mapstructure:"poll_wait_ms" validate:"gte=10"`

	// SweepIntervalSeconds is how often workers reap timed-out claims.
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds" validate:"gte=1"`

	// StorePollIntervalMs is how often SQL stores re-check for work and outcomes.
	StorePollIntervalMs int `mapstructure:"store_poll_interval_ms" validate:"gte=10"`

	// DefaultWaitSeconds caps API enqueue-and-wait requests.
	DefaultWaitSeconds int `mapstructure:"default_wait_seconds" validate:"gte=1"`

	// EmbeddedWorkers runs worker loops inside the API server process.
	EmbeddedWorkers bool `mapstructure:"embedded_workers"`
}

// Shared reports whether the backend is reachable from other processes.
func (q QueueConfig) Shared() bool {
	return q.Backend != "memory"
}
