package sinks

import (
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/pathway100k/intake/internal/config"
)

// Deps is what a Factory receives when building a sink.
// NewRelic is nil when the agent is disabled.
type Deps struct {
	Config   *config.Config
	Logger   zerolog.Logger
	NewRelic *newrelic.Application
}
