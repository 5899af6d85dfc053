package sinks

import "context"

// Factory creates a Recorder from the service configuration.
// Each sink type (log, postgres, o3, etc.) implements and registers a Factory.
// ConfigSpec declares which settings the sink type reads.
type Factory interface {
	Name() string
	ConfigSpec() SinkTypeInfo
	Create(ctx context.Context, deps Deps) (Recorder, error)
}
