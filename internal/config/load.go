package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var (
	// ErrUnreachableQueue is returned when the memory backend is configured
	// without embedded workers, so nothing would ever run its tasks.
	ErrUnreachableQueue = errors.New("the memory backend requires queue.embedded_workers")

	// ErrProcessLocalBackend is returned when a standalone worker is started
	// on a backend that lives inside a single process.
	ErrProcessLocalBackend = errors.New("standalone workers need a shared queue backend")
)

// EnvPrefix is the prefix for every environment variable read by Load.
const EnvPrefix = "SCRY"

// configFileEnv names the variable that points Load at a config file.
const configFileEnv = "SCRY_CONFIG_FILE"

// bindings lists every configuration key with its environment variable.
var bindings = []struct {
	key    string
	envVar string
}{
	{"server.port", "SCRY_SERVER_PORT"},
	{"server.log_level", "SCRY_SERVER_LOG_LEVEL"},
	{"database.url", "SCRY_DATABASE_URL"},
	{"auth.jwt_secret", "SCRY_AUTH_JWT_SECRET"},
	{"queue.backend", "SCRY_QUEUE_BACKEND"},
	{"queue.channels", "SCRY_QUEUE_CHANNELS"},
	{"queue.worker_count", "SCRY_QUEUE_WORKER_COUNT"},
	{"queue.poll_wait_ms", "SCRY_QUEUE_POLL_WAIT_MS"},
	{"queue.sweep_interval_seconds", "SCRY_QUEUE_SWEEP_INTERVAL_SECONDS"},
	{"queue.store_poll_interval_ms", "SCRY_QUEUE_STORE_POLL_INTERVAL_MS"},
	{"queue.default_wait_seconds", "SCRY_QUEUE_DEFAULT_WAIT_SECONDS"},
	{"queue.embedded_workers", "SCRY_QUEUE_EMBEDDED_WORKERS"},
}

// Load configuration from environment variables and optionally a config file.
// The file is config.yaml in the working directory, or the path in
// SCRY_CONFIG_FILE. Environment variables take precedence over file values.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path falls
// back to the default lookup.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	switch {
	case path != "":
		v.SetConfigFile(path)
	default:
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.BindEnv("config_file", configFileEnv); err == nil {
			if p := v.GetString("config_file"); p != "" {
				v.SetConfigFile(p)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, b := range bindings {
		if err := v.BindEnv(b.key, b.envVar); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", b.envVar, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags and the rules that span sections.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if cfg.Queue.Backend == "postgres" && cfg.Database.URL == "" {
		return fmt.Errorf("configuration validation failed: database.url is required for the postgres backend")
	}
	if !cfg.Queue.Shared() && !cfg.Queue.EmbeddedWorkers {
		return fmt.Errorf("configuration validation failed: %w", ErrUnreachableQueue)
	}

	return nil
}

// ValidateStandaloneWorker checks that a worker running in its own process
// can see the tasks other processes enqueue.
func ValidateStandaloneWorker(cfg *Config) error {
	if !cfg.Queue.Shared() {
		return fmt.Errorf("queue backend %q: %w", cfg.Queue.Backend, ErrProcessLocalBackend)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.channels", []string{})
	v.SetDefault("queue.worker_count", 2)
	v.SetDefault("queue.poll_wait_ms", 1000)
	v.SetDefault("queue.sweep_interval_seconds", 5)
	v.SetDefault("queue.store_poll_interval_ms", 200)
	v.SetDefault("queue.default_wait_seconds", 30)
	v.SetDefault("queue.embedded_workers", true)
}
