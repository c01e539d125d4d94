// Package observability wires the optional New Relic agent.
package observability

import (
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/akave-ai/gameevents/internal/config"
)

// NewRelic returns the agent application, or nil when New Relic is disabled.
func NewRelic(cfg *config.ObservabilityConfig) (*newrelic.Application, error) {
	if !cfg.NewRelic.Enabled {
		return nil, nil
	}
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName()),
		newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		func(c *newrelic.Config) {
			c.Labels = map[string]string{"env": cfg.Environment}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("new relic: %w", err)
	}
	return app, nil
}
