package pgsink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pathway100k/intake/internal/database"
	"github.com/pathway100k/intake/internal/infrastructure/sinks"
	"github.com/pathway100k/intake/internal/model"
	"github.com/pathway100k/intake/internal/repository"
)

// Sink stores applications in the Postgres applications table.
type Sink struct {
	pool *pgxpool.Pool
	repo *repository.ApplicationRepository
}

// New wraps an open pool. The sink owns the pool and closes it on Close.
func New(pool *pgxpool.Pool) *Sink {
	return &Sink{pool: pool, repo: repository.NewApplicationRepository(pool)}
}

func (s *Sink) Record(ctx context.Context, rec model.SubmissionRecord) error {
	if _, err := s.repo.Create(ctx, rec); err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *Sink) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Sink) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// Factory registers the postgres sink as "postgres".
type Factory struct{}

func (f *Factory) Name() string { return "postgres" }

func (f *Factory) ConfigSpec() sinks.SinkTypeInfo {
	return sinks.SinkTypeInfo{
		Type:        "postgres",
		Description: "Inserts each application into the applications table. Migrations run at startup.",
		Fields: []sinks.ConfigField{
			{Name: "database.host", Env: "INTAKE_DATABASE__HOST", Type: "string", Required: true, Description: "Postgres host", Example: "localhost"},
			{Name: "database.port", Env: "INTAKE_DATABASE__PORT", Type: "number", Required: false, Description: "Postgres port", Example: "5432"},
			{Name: "database.user", Env: "INTAKE_DATABASE__USER", Type: "string", Required: false, Description: "Role used to connect", Example: "postgres"},
			{Name: "database.password", Env: "INTAKE_DATABASE__PASSWORD", Type: "string", Required: false, Description: "Role password"},
			{Name: "database.name", Env: "INTAKE_DATABASE__NAME", Type: "string", Required: true, Description: "Database name", Example: "pathway"},
			{Name: "database.ssl_mode", Env: "INTAKE_DATABASE__SSL_MODE", Type: "string", Required: false, Description: "libpq sslmode", Example: "disable"},
		},
	}
}

func (f *Factory) Create(ctx context.Context, deps sinks.Deps) (sinks.Recorder, error) {
	dbCfg := deps.Config.Database
	if err := database.RunMigrations(ctx, dbCfg.URL(), deps.Logger); err != nil {
		return nil, err
	}
	pool, err := database.NewPool(ctx, dbCfg, deps.Logger, deps.NewRelic)
	if err != nil {
		return nil, err
	}
	return New(pool), nil
}

func init() {
	sinks.GlobalRegistry.Register(&Factory{})
}
