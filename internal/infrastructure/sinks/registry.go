package sinks

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// GlobalRegistry holds the sink types linked into the binary.
// Sink packages (e.g. logsink) register their factory in init().
var GlobalRegistry = NewRegistry()

// Registry holds registered sink factories. The server uses it to build the recorder chain.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a new Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory for a sink type.
func (r *Registry) Register(factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[factory.Name()] = factory
}

// Create builds a Recorder for the given type.
func (r *Registry) Create(ctx context.Context, name string, deps Deps) (Recorder, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown sink type: %s", name)
	}
	return factory.Create(ctx, deps)
}

// ListRegistered returns all registered sink type names.
func (r *Registry) ListRegistered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// GetTypeInfo returns the config spec for the given sink type. ok is false if the type is not registered.
func (r *Registry) GetTypeInfo(name string) (info SinkTypeInfo, ok bool) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return SinkTypeInfo{}, false
	}
	return factory.ConfigSpec(), true
}

// AllTypesInfo returns config specs for all registered sink types.
func (r *Registry) AllTypesInfo() []SinkTypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SinkTypeInfo, 0, len(r.factories))
	for _, factory := range r.factories {
		out = append(out, factory.ConfigSpec())
	}
	return out
}

// Build creates one sink per name and chains them into a Fanout.
// Sinks whose spec is marked BestEffort are wrapped so their failures are logged only.
// The log sink is always first. On error every sink built so far is closed.
func (r *Registry) Build(ctx context.Context, names []string, deps Deps) (*Fanout, error) {
	ordered := make([]string, 0, len(names)+1)
	ordered = append(ordered, "log")
	seen := map[string]bool{"log": true}
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			ordered = append(ordered, n)
		}
	}

	fan := &Fanout{}
	for _, name := range ordered {
		rec, err := r.Create(ctx, name, deps)
		if err != nil {
			closeErr := fan.Close(ctx)
			return nil, errors.Join(fmt.Errorf("create %s sink: %w", name, err), closeErr)
		}
		if info, ok := r.GetTypeInfo(name); ok && info.BestEffort {
			rec = &BestEffort{Name: name, Next: rec, Logger: deps.Logger}
		}
		fan.Add(name, rec)
		deps.Logger.Info().Str("sink", name).Msg("recording sink enabled")
	}
	return fan, nil
}
