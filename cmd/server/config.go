package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-queue/internal/config"
)

// loadAppConfig loads the configuration from environment variables and the
// optional config file. Returns the loaded config and any loading error.
func loadAppConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	slog.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"queue_backend", cfg.Queue.Backend)

	if cfg.Database.URL != "" {
		slog.Debug("database configuration", "url_present", true)
	}
	if cfg.Auth.JWTSecret != "" {
		slog.Debug("auth configuration", "jwt_secret_present", true)
	}

	return cfg, nil
}
