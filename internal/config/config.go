// Package config loads process configuration from the environment: a
// godotenv-loaded .env file backing plain os.Getenv reads.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/kitetick/engine/kite"
)

// AppConfig is the process-wide configuration for both the REST server and
// the ticker supervisor.
type AppConfig struct {
	ServerAddr      string
	DatabaseURL     string
	KiteCallbackURL string
	OSType          string
}

// FromEnv loads configuration for the REST server, where KITE_CALLBACK_URL
// is required (the OAuth callback route needs it to build login URLs).
func FromEnv() (AppConfig, error) {
	cfg := fromEnvCommon()

	callback := os.Getenv("KITE_CALLBACK_URL")
	if callback == "" {
		return AppConfig{}, fmt.Errorf("%w: KITE_CALLBACK_URL", kite.ErrMissingCredentials)
	}
	cfg.KiteCallbackURL = callback

	return cfg, nil
}

// FromEnvTicker loads configuration for the `ticker` CLI subcommand, which
// never needs KITE_CALLBACK_URL since it talks to the websocket directly
// using an already-issued access token.
func FromEnvTicker() AppConfig {
	cfg := fromEnvCommon()
	cfg.KiteCallbackURL = os.Getenv("KITE_CALLBACK_URL")
	return cfg
}

func fromEnvCommon() AppConfig {
	return AppConfig{
		ServerAddr:  envOr("SERVER_ADDR", "127.0.0.1:8080"),
		DatabaseURL: databaseURLFromEnv(),
		OSType:      envOr("OS_TYPE", normalizeOS(runtime.GOOS)),
	}
}

func databaseURLFromEnv() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}

	host := envOr("PGHOST", "localhost")
	port := envOr("PGPORT", "5432")
	db := envOr("PGDATABASE", "kitetick")
	user := envOr("PGUSER", "kitetick")
	pass := os.Getenv("PGPASSWORD")
	sslmode := os.Getenv("PGSSLMODE")

	parts := []string{
		"host=" + host,
		"port=" + port,
		"dbname=" + db,
		"user=" + user,
	}
	if pass != "" {
		parts = append(parts, "password="+pass)
	}
	if sslmode != "" {
		parts = append(parts, "sslmode="+sslmode)
	}
	return strings.Join(parts, " ")
}

func normalizeOS(goos string) string {
	switch goos {
	case "darwin":
		return "macos"
	case "linux":
		return "ubuntu"
	case "":
		return "unknown"
	default:
		return goos
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
