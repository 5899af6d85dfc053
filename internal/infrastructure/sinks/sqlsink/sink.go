// Package sqlsink records applications through database/sql, using the
// embedded modernc SQLite driver or the go-sql-driver MySQL driver.
package sqlsink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/pathway100k/intake/internal/model"
)

// Dialect holds the driver name and DDL for one database flavour.
type Dialect struct {
	Driver string
	Schema []string
	Setup  []string
}

var SQLite = Dialect{
	Driver: "sqlite",
	Setup: []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	},
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS applications (
			row_id         INTEGER PRIMARY KEY AUTOINCREMENT,
			application_id TEXT NOT NULL,
			full_name      TEXT NOT NULL,
			email          TEXT NOT NULL,
			country_code   TEXT NOT NULL,
			phone          TEXT NOT NULL,
			plan           TEXT NOT NULL,
			experience     TEXT NOT NULL,
			submitted_at   TEXT NOT NULL,
			source_ip      TEXT NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_applications_application_id ON applications(application_id)",
	},
}

var MySQL = Dialect{
	Driver: "mysql",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS applications (
			row_id         BIGINT AUTO_INCREMENT PRIMARY KEY,
			application_id VARCHAR(64) NOT NULL,
			full_name      MEDIUMTEXT  NOT NULL,
			email          MEDIUMTEXT  NOT NULL,
			country_code   MEDIUMTEXT  NOT NULL,
			phone          MEDIUMTEXT  NOT NULL,
			plan           MEDIUMTEXT  NOT NULL,
			experience     MEDIUMTEXT  NOT NULL,
			submitted_at   VARCHAR(32) NOT NULL,
			source_ip      MEDIUMTEXT  NOT NULL,
			INDEX idx_applications_application_id (application_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
}

const insertApplication = `INSERT INTO applications
	(application_id, full_name, email, country_code, phone, plan, experience, submitted_at, source_ip)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Sink writes applications to a database/sql store.
type Sink struct {
	db *sql.DB
}

// Open connects with the dialect's driver, applies its setup statements and schema.
func Open(ctx context.Context, d Dialect, dsn string) (*Sink, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Driver, err)
	}
	if d.Driver == "sqlite" {
		db.SetMaxOpenConns(1) // one writer at a time
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	for _, stmt := range append(append([]string{}, d.Setup...), d.Schema...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s schema: %w", d.Driver, err)
		}
	}
	return &Sink{db: db}, nil
}

func (s *Sink) Record(ctx context.Context, rec model.SubmissionRecord) error {
	_, err := s.db.ExecContext(ctx, insertApplication, insertArgs(rec)...)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

// insertArgs orders rec for insertApplication. Fields are free-form text of
// any length up to the body limit, so every column but the id and timestamp
// is TEXT (MEDIUMTEXT on MySQL).
func insertArgs(rec model.SubmissionRecord) []any {
	return []any{
		rec.ID,
		rec.FullName,
		rec.Email,
		rec.CountryCode,
		rec.Phone,
		rec.Plan,
		rec.Experience,
		rec.SubmittedAtISO(),
		rec.SourceIP,
	}
}

func (s *Sink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Sink) Close(context.Context) error {
	return s.db.Close()
}

// Count returns the number of stored applications.
func (s *Sink) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM applications").Scan(&n)
	return n, err
}
