// Package main prints a bearer token for the task API, signed with the
// configured auth.jwt_secret.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/phrazzld/scry-queue/internal/auth"
	"github.com/phrazzld/scry-queue/internal/config"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML config file")
	subject := flag.String("subject", "", "token subject, e.g. the calling service")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	token, err := issue(*configFile, *subject, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func issue(configFile, subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("-subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("-ttl must be positive")
	}

	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return "", errors.New("auth.jwt_secret is not configured")
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret)
	if err != nil {
		return "", err
	}
	return tokens.GenerateToken(context.Background(), subject, ttl)
}
