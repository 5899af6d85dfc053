package logsink

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pathway100k/intake/internal/infrastructure/sinks"
	"github.com/pathway100k/intake/internal/model"
)

// Sink writes each application as one structured log entry.
type Sink struct {
	logger zerolog.Logger
}

// New returns a log sink tagged with component=recording_sink.
func New(logger zerolog.Logger) *Sink {
	return &Sink{logger: logger.With().Str("component", "recording_sink").Logger()}
}

func (s *Sink) Record(_ context.Context, rec model.SubmissionRecord) error {
	s.logger.Info().
		Str("application_id", rec.ID).
		Str("full_name", rec.FullName).
		Str("email", rec.Email).
		Str("phone", rec.CountryCode+" "+rec.Phone).
		Str("plan", rec.Plan).
		Str("experience", rec.Experience).
		Str("submitted_at", rec.SubmittedAtISO()).
		Str("source_ip", rec.SourceIP).
		Msg("new application received")
	return nil
}

// Factory registers the log sink as "log".
type Factory struct{}

func (f *Factory) Name() string { return "log" }

func (f *Factory) ConfigSpec() sinks.SinkTypeInfo {
	return sinks.SinkTypeInfo{
		Type:        "log",
		Description: "Writes every application to the service log. Always enabled.",
		Fields:      []sinks.ConfigField{},
	}
}

func (f *Factory) Create(_ context.Context, deps sinks.Deps) (sinks.Recorder, error) {
	return New(deps.Logger), nil
}

func init() {
	sinks.GlobalRegistry.Register(&Factory{})
}
