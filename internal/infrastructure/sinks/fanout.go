package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pathway100k/intake/internal/model"
	"github.com/pathway100k/intake/internal/observability"
)

const tracerName = "github.com/pathway100k/intake/internal/infrastructure/sinks"

type namedRecorder struct {
	name string
	rec  Recorder
}

// Fanout records a submission to every sink in order.
// Every sink is attempted; the joined error of all failures is returned.
// Sinks are added during startup only, so Record needs no locking.
type Fanout struct {
	sinks   []namedRecorder
	metrics *observability.Metrics
}

// Add appends a sink. Not safe to call once the fanout is serving requests.
func (f *Fanout) Add(name string, rec Recorder) {
	f.sinks = append(f.sinks, namedRecorder{name: name, rec: rec})
}

// Instrument attaches sink latency metrics. m may be nil.
func (f *Fanout) Instrument(m *observability.Metrics) {
	f.metrics = m
}

// Names lists the sinks in recording order.
func (f *Fanout) Names() []string {
	out := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		out = append(out, s.name)
	}
	return out
}

func (f *Fanout) Record(ctx context.Context, rec model.SubmissionRecord) error {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "sinks.record", trace.WithAttributes(
		attribute.String("application.id", rec.ID),
		attribute.Int("sinks.count", len(f.sinks)),
	))
	defer span.End()

	var errs []error
	for _, s := range f.sinks {
		if err := f.recordOne(ctx, tracer, s, rec); err != nil {
			errs = append(errs, fmt.Errorf("%s sink: %w", s.name, err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record failed")
	}
	return err
}

func (f *Fanout) recordOne(ctx context.Context, tracer trace.Tracer, s namedRecorder, rec model.SubmissionRecord) error {
	ctx, span := tracer.Start(ctx, "sink."+s.name)
	defer span.End()

	start := time.Now()
	err := s.rec.Record(ctx, rec)
	f.metrics.ObserveSink(s.name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Ping checks every sink that implements Pinger.
func (f *Fanout) Ping(ctx context.Context) error {
	var errs []error
	for _, s := range f.sinks {
		if p, ok := unwrap(s.rec).(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s sink: %w", s.name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Close releases every sink that implements Closer.
func (f *Fanout) Close(ctx context.Context) error {
	var errs []error
	for _, s := range f.sinks {
		if c, ok := unwrap(s.rec).(Closer); ok {
			if err := c.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s sink: %w", s.name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func unwrap(r Recorder) Recorder {
	if be, ok := r.(*BestEffort); ok {
		return be.Next
	}
	return r
}

// BestEffort records through Next and logs, rather than returns, its failures.
type BestEffort struct {
	Name   string
	Next   Recorder
	Logger zerolog.Logger
}

func (b *BestEffort) Record(ctx context.Context, rec model.SubmissionRecord) error {
	if err := b.Next.Record(ctx, rec); err != nil {
		b.Logger.Warn().Err(err).Str("sink", b.Name).Str("application_id", rec.ID).Msg("best-effort sink failed")
	}
	return nil
}
