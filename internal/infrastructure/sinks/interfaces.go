package sinks

import (
	"context"

	"github.com/pathway100k/intake/internal/model"
)

// Recorder accepts a validated submission and records it.
// Implementations must be safe for concurrent use; Record may be called
// from many request goroutines at once and must not rely on ordering.
type Recorder interface {
	Record(ctx context.Context, rec model.SubmissionRecord) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, rec model.SubmissionRecord) error

func (f RecorderFunc) Record(ctx context.Context, rec model.SubmissionRecord) error {
	return f(ctx, rec)
}

// Pinger is implemented by sinks backed by a remote store. Readiness checks call it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Closer is implemented by sinks that hold connections.
type Closer interface {
	Close(ctx context.Context) error
}
