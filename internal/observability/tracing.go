package observability

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/pathway100k/intake/internal/config"
)

// NewTracerProvider installs a global tracer provider whose finished spans are
// written to the service log at debug level. It returns nil when tracing is off.
func NewTracerProvider(cfg *config.ObservabilityConfig, log zerolog.Logger) *sdktrace.TracerProvider {
	if !cfg.Tracing.Enabled {
		return nil
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRatio))),
		sdktrace.WithBatcher(&LogExporter{Logger: log}),
	)
	otel.SetTracerProvider(tp)
	return tp
}

// LogExporter writes ended spans to zerolog.
type LogExporter struct {
	Logger zerolog.Logger
}

func (e *LogExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		ev := e.Logger.Debug().
			Str("trace_id", s.SpanContext().TraceID().String()).
			Str("span_id", s.SpanContext().SpanID().String()).
			Str("span", s.Name()).
			Dur("duration", s.EndTime().Sub(s.StartTime())).
			Str("status", s.Status().Code.String())
		if parent := s.Parent(); parent.IsValid() {
			ev = ev.Str("parent_span_id", parent.SpanID().String())
		}
		ev.Msg("span")
	}
	return nil
}

func (e *LogExporter) Shutdown(context.Context) error { return nil }
