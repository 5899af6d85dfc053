package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pathway100k/intake/internal/model"
)

// ApplicationRepository persists submitted applications in Postgres.
type ApplicationRepository struct {
	pool *pgxpool.Pool
}

// NewApplicationRepository returns an ApplicationRepository using the given pool.
func NewApplicationRepository(pool *pgxpool.Pool) *ApplicationRepository {
	return &ApplicationRepository{pool: pool}
}

const insertApplication = `
	INSERT INTO applications (row_id, application_id, full_name, email, country_code, phone, plan, experience, submitted_at, source_ip)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Create inserts one application row and returns its generated row id.
// application_id is not unique across replicas, so rows are keyed by a UUID.
func (r *ApplicationRepository) Create(ctx context.Context, rec model.SubmissionRecord) (uuid.UUID, error) {
	rowID := uuid.New()
	_, err := r.pool.Exec(ctx, insertApplication, insertArgs(rowID, rec)...)
	if err != nil {
		return uuid.Nil, err
	}
	return rowID, nil
}

// Ping checks that the pool can reach the database.
func (r *ApplicationRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// insertArgs orders rec for insertApplication. Postgres text cannot hold NUL,
// so it is stripped; every other byte is stored verbatim.
func insertArgs(rowID uuid.UUID, rec model.SubmissionRecord) []any {
	return []any{
		rowID,
		stripNUL(rec.ID),
		stripNUL(rec.FullName),
		stripNUL(rec.Email),
		stripNUL(rec.CountryCode),
		stripNUL(rec.Phone),
		stripNUL(rec.Plan),
		stripNUL(rec.Experience),
		rec.SubmittedAt,
		stripNUL(rec.SourceIP),
	}
}

func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
