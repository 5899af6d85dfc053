package o3sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pathway100k/intake/internal/infrastructure/sinks"
	"github.com/pathway100k/intake/internal/model"
	"github.com/pathway100k/intake/internal/storage"
)

// Sink archives each application as a JSON object in an O3 bucket.
type Sink struct {
	client *storage.O3Client
	prefix string
}

func New(client *storage.O3Client, prefix string) *Sink {
	return &Sink{client: client, prefix: prefix}
}

func (s *Sink) Record(ctx context.Context, rec model.SubmissionRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode application: %w", err)
	}
	key := storage.KeyForApplication(s.prefix, rec)
	if err := s.client.PutObject(ctx, key, body, "application/json"); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Sink) Ping(ctx context.Context) error {
	return s.client.HeadBucket(ctx)
}

// Factory registers the O3 sink as "o3".
type Factory struct{}

func (f *Factory) Name() string { return "o3" }

func (f *Factory) ConfigSpec() sinks.SinkTypeInfo {
	return sinks.SinkTypeInfo{
		Type:        "o3",
		Description: "Uploads each application as JSON to an S3-compatible bucket (Akave O3) under <prefix>/YYYY/MM/DD/<id>.json.",
		Fields: []sinks.ConfigField{
			{Name: "sinks.o3.endpoint", Env: "INTAKE_SINKS__O3__ENDPOINT", Type: "string", Required: true, Description: "S3 API endpoint", Example: "https://o3-rc2.akave.xyz"},
			{Name: "sinks.o3.bucket", Env: "INTAKE_SINKS__O3__BUCKET", Type: "string", Required: true, Description: "Bucket name; created if missing", Example: "pathway-applications"},
			{Name: "sinks.o3.region", Env: "INTAKE_SINKS__O3__REGION", Type: "string", Required: false, Description: "Signing region", Example: "us-east-1"},
			{Name: "sinks.o3.access_key", Env: "INTAKE_SINKS__O3__ACCESS_KEY", Type: "string", Required: false, Description: "Access key id"},
			{Name: "sinks.o3.secret_key", Env: "INTAKE_SINKS__O3__SECRET_KEY", Type: "string", Required: false, Description: "Secret access key"},
			{Name: "sinks.o3.prefix", Env: "INTAKE_SINKS__O3__PREFIX", Type: "string", Required: false, Description: "Key prefix", Example: "applications"},
		},
	}
}

func (f *Factory) Create(ctx context.Context, deps sinks.Deps) (sinks.Recorder, error) {
	o3cfg := deps.Config.Sinks.O3
	client, err := storage.NewO3Client(o3cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("o3 endpoint and bucket are required")
	}
	if err := client.EnsureBucket(ctx); err != nil {
		deps.Logger.Warn().Err(err).Msg("o3 ensure bucket failed; uploads may fail")
	}
	return New(client, o3cfg.Prefix), nil
}

func init() {
	sinks.GlobalRegistry.Register(&Factory{})
}
