package telemetry

import (
	"fmt"
	"time"
)

// Config holds telemetry configuration.
type Config struct {
	// Enabled toggles metric collection. Disabled yields no-op instruments.
	Enabled bool `koanf:"enabled"`

	// ServiceName identifies the service in exported metrics.
	ServiceName string `koanf:"service_name"`

	// ServiceVersion is attached to the metric resource.
	ServiceVersion string `koanf:"service_version"`

	// ShutdownTimeout bounds the final flush on shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// NewDefaultConfig returns telemetry defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:         false,
		ServiceName:     "agentloop",
		ServiceVersion:  "dev",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name cannot be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be > 0, got %v", c.ShutdownTimeout)
	}
	return nil
}
