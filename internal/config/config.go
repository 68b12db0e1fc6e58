// SPDX-License-Identifier: MIT

// Package config assembles the daemon configuration from environment
// variables. Every knob has a default so a bare `guestflowd` starts with
// an in-memory store and no external dependencies.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// AppConfig is the fully resolved daemon configuration.
type AppConfig struct {
	// ListenAddr is the HTTP bind address.
	ListenAddr string

	// DataDir is the base directory for persistent state.
	DataDir string

	// StoreBackend selects the session store: memory, badger or sqlite.
	StoreBackend string
	// StorePath is the store location; derived from DataDir when empty.
	StorePath string

	// SnapshotPath is the published experience catalog file. Empty
	// disables catalog loading and file watching.
	SnapshotPath string

	// ProjectID scopes guests and the transform pipeline.
	ProjectID string

	// TransformBaseURL is the transform pipeline endpoint. Empty disables
	// transform dispatch.
	TransformBaseURL string

	// RedisAddr enables the Redis catalog cache when non-empty.
	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	// RateLimit is requests per client per minute. Zero disables limiting.
	RateLimit int

	// AdminToken guards the operator API. Empty disables it.
	AdminToken string

	LogLevel        string
	ShutdownTimeout time.Duration
}

// FromEnv builds the configuration from GUESTFLOW_* environment variables.
func FromEnv() *AppConfig {
	return &AppConfig{
		ListenAddr:       ParseString("GUESTFLOW_LISTEN", ":8080"),
		DataDir:          ParseString("GUESTFLOW_DATA_DIR", "./data"),
		StoreBackend:     ParseString("GUESTFLOW_STORE_BACKEND", "memory"),
		StorePath:        ParseString("GUESTFLOW_STORE_PATH", ""),
		SnapshotPath:     ParseString("GUESTFLOW_SNAPSHOT", ""),
		ProjectID:        ParseString("GUESTFLOW_PROJECT_ID", "default"),
		TransformBaseURL: ParseString("GUESTFLOW_TRANSFORM_URL", ""),
		RedisAddr:        ParseString("GUESTFLOW_REDIS_ADDR", ""),
		RedisPassword:    ParseString("GUESTFLOW_REDIS_PASSWORD", ""),
		CacheTTL:         ParseDuration("GUESTFLOW_CACHE_TTL", 30*time.Second),
		RateLimit:        ParseInt("GUESTFLOW_RATE_LIMIT", 300),
		AdminToken:       ParseString("GUESTFLOW_ADMIN_TOKEN", ""),
		LogLevel:         ParseString("GUESTFLOW_LOG_LEVEL", "info"),
		ShutdownTimeout:  ParseDuration("GUESTFLOW_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Validate checks the configuration and fills derived defaults.
func (c *AppConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	switch c.StoreBackend {
	case "memory":
	case "badger":
		if c.StorePath == "" {
			c.StorePath = filepath.Join(c.DataDir, "journey")
		}
	case "sqlite":
		if c.StorePath == "" {
			c.StorePath = filepath.Join(c.DataDir, "journey.db")
		}
	default:
		return fmt.Errorf("unknown store backend %q (want memory, badger or sqlite)", c.StoreBackend)
	}
	if c.ProjectID == "" {
		return fmt.Errorf("project id must not be empty")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}
