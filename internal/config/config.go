// Package config loads the engine's runtime configuration from the
// environment, with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the engine process needs to start.
type Config struct {
	// DatabaseURL is the postgres DSN. Empty runs the engine on the
	// in-memory store, which is only useful for demos and tests.
	DatabaseURL string

	// HTTPAddr is the listen address for the admin/metrics endpoint. Empty
	// disables it.
	HTTPAddr string

	// PaystackSecretKey authenticates gateway calls. Empty disables the
	// hosted checkout flow; direct settlement still works.
	PaystackSecretKey string

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		HTTPAddr:          strings.TrimSpace(os.Getenv("HTTP_ADDR")),
		PaystackSecretKey: strings.TrimSpace(os.Getenv("PAYSTACK_SECRET_KEY")),
		ShutdownTimeout:   15 * time.Second,
	}

	if raw := strings.TrimSpace(os.Getenv("SHUTDOWN_TIMEOUT_SECONDS")); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT_SECONDS %q", raw)
		}
		cfg.ShutdownTimeout = time.Duration(seconds) * time.Second
	}

	return cfg, nil
}
