package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

type ObservabilityConfig struct {
	ServiceName string         `koanf:"service_name"`
	Environment string         `koanf:"environment"`
	Logging     LoggingConfig  `koanf:"logging"`
	NewRelic    NewRelicConfig `koanf:"new_relic"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type NewRelicConfig struct {
	Enabled    bool   `koanf:"enabled"`
	LicenseKey string `koanf:"license_key"`
	AppName    string `koanf:"app_name"`
	// TraceDatabase traces pgx queries through New Relic instead of logging them.
	TraceDatabase bool `koanf:"trace_database"`
}

func DefaultObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		ServiceName: "gameevents",
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func (c *ObservabilityConfig) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Logging.Level, err)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q: must be json or console", c.Logging.Format)
	}
	if c.NewRelic.Enabled && c.NewRelic.LicenseKey == "" {
		return fmt.Errorf("new_relic.license_key is required when new relic is enabled")
	}
	return nil
}

// LogLevel returns the parsed log level, defaulting to info.
func (c *ObservabilityConfig) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// IsProduction reports whether the service runs in production.
func (c *ObservabilityConfig) IsProduction() bool {
	return c.Environment == "production"
}

// AppName is the New Relic application name, defaulting to the service name.
func (c *ObservabilityConfig) AppName() string {
	if c.NewRelic.AppName != "" {
		return c.NewRelic.AppName
	}
	return c.ServiceName
}
