// Package config provides configuration management for mutguard services.
package config

import (
	"time"

	"github.com/solatis/mutguard/internal/guard"
	"github.com/solatis/mutguard/internal/types"
	"go.uber.org/zap"
)

// Config is the full service configuration.
type Config struct {
	Guard    GuardConfig
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig

	// APIKeys gate the gRPC service. Environment only; empty disables
	// authentication.
	APIKeys []string
}

// GuardConfig holds defaults applied to guards created without explicit
// options.
type GuardConfig struct {
	MaxMutations       int
	StrictMode         bool
	TrackHistory       bool
	AllowReset         bool
	AutoFreeze         bool
	TrackDeepMutations bool
	ErrorMessage       string
}

// ServerConfig holds configuration for the gRPC guard service.
type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the history store connection.
// An empty URL disables persistence.
type DatabaseConfig struct {
	URL string
}

// LogConfig selects level and encoder for the service logger.
type LogConfig struct {
	Level  string
	Format string
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Guard: GuardConfig{
			MaxMutations:       types.DefaultMaxMutations,
			StrictMode:         true,
			TrackHistory:       true,
			AllowReset:         false,
			AutoFreeze:         true,
			TrackDeepMutations: true,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            50051,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// GuardOptions maps the guard section onto engine options.
// Callbacks and sink are left for the caller to attach.
func (c *Config) GuardOptions(logger *zap.Logger) guard.Options {
	return guard.Options{
		DisableStrictMode:   !c.Guard.StrictMode,
		DisableHistory:      !c.Guard.TrackHistory,
		AllowReset:          c.Guard.AllowReset,
		DisableAutoFreeze:   !c.Guard.AutoFreeze,
		DisableDeepTracking: !c.Guard.TrackDeepMutations,
		ErrorMessage:        c.Guard.ErrorMessage,
		Logger:              logger,
	}
}
