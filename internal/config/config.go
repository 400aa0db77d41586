// Package config provides configuration loading for agentloop.
//
// Configuration is composed from a YAML file and environment variable
// overrides. Each section delegates defaults and validation to the package
// that owns it.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/agentloop/internal/extexec"
	"github.com/fyrsmithlabs/agentloop/internal/logging"
	"github.com/fyrsmithlabs/agentloop/internal/oracle"
	"github.com/fyrsmithlabs/agentloop/internal/orchestrator"
	"github.com/fyrsmithlabs/agentloop/internal/resilient"
	"github.com/fyrsmithlabs/agentloop/internal/saturation"
	"github.com/fyrsmithlabs/agentloop/internal/telemetry"
)

// Config holds the complete agentloop configuration.
type Config struct {
	Logging    logging.Config      `koanf:"logging"`
	Telemetry  telemetry.Config    `koanf:"telemetry"`
	Autonomous orchestrator.Config `koanf:"autonomous"`
	Oracle     oracle.Config       `koanf:"oracle"`
	Resilience resilient.Settings  `koanf:"resilience"`
	Saturation saturation.Config   `koanf:"saturation"`
	Executor   extexec.Config      `koanf:"executor"`
}

// Default returns a configuration with engine defaults applied.
func Default() Config {
	cfg := Config{
		Logging:    *logging.NewDefaultConfig(),
		Telemetry:  *telemetry.NewDefaultConfig(),
		Autonomous: orchestrator.NewDefaultConfig(),
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	c.Autonomous.ApplyDefaults()
	c.Oracle.ApplyDefaults()

	// Enabling verification in either section enables it in both.
	if c.Oracle.Enabled {
		c.Autonomous.EnableOracle = true
	}
	if c.Autonomous.EnableOracle {
		c.Oracle.Enabled = true
	}

	// The autonomous retry knobs seed the resilience section; explicit
	// resilience values win.
	if c.Resilience.MaxRetries == 0 {
		c.Resilience.MaxRetries = c.Autonomous.RetryOnFailureCount
	}
	if c.Resilience.InitialDelay == 0 {
		c.Resilience.InitialDelay = c.Autonomous.RetryDelay
	}
	c.Resilience.ApplyDefaults()
	c.Saturation.ApplyDefaults()
	c.Executor.ApplyDefaults()

	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "agentloop"
	}
	if c.Telemetry.ServiceVersion == "" {
		c.Telemetry.ServiceVersion = "dev"
	}
	if c.Telemetry.ShutdownTimeout == 0 {
		c.Telemetry.ShutdownTimeout = 5 * time.Second
	}
}

// Validate validates every section. The executor section is only validated
// when a command is configured, so that library users supplying their own
// executor can leave it empty.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if err := c.Autonomous.Validate(); err != nil {
		return fmt.Errorf("autonomous: %w", err)
	}
	if c.Autonomous.EnableOracle {
		if err := c.Oracle.Validate(); err != nil {
			return fmt.Errorf("oracle: %w", err)
		}
	}
	if err := c.Resilience.Validate(); err != nil {
		return fmt.Errorf("resilience: %w", err)
	}
	if c.Executor.Command != "" {
		if err := c.Executor.Validate(); err != nil {
			return fmt.Errorf("executor: %w", err)
		}
	}
	return nil
}
