package sqlsink

import (
	"context"

	"github.com/pathway100k/intake/internal/infrastructure/sinks"
)

// SQLiteFactory registers the embedded SQLite sink as "sqlite".
type SQLiteFactory struct{}

func (f *SQLiteFactory) Name() string { return "sqlite" }

func (f *SQLiteFactory) ConfigSpec() sinks.SinkTypeInfo {
	return sinks.SinkTypeInfo{
		Type:        "sqlite",
		Description: "Stores applications in a local SQLite file. The table is created on first use.",
		Fields: []sinks.ConfigField{
			{Name: "sinks.sqlite.path", Env: "INTAKE_SINKS__SQLITE__PATH", Type: "string", Required: true, Description: "Database file path", Example: "intake.db"},
		},
	}
}

func (f *SQLiteFactory) Create(ctx context.Context, deps sinks.Deps) (sinks.Recorder, error) {
	return Open(ctx, SQLite, deps.Config.Sinks.SQLite.Path)
}

// MySQLFactory registers the MySQL sink as "mysql".
type MySQLFactory struct{}

func (f *MySQLFactory) Name() string { return "mysql" }

func (f *MySQLFactory) ConfigSpec() sinks.SinkTypeInfo {
	return sinks.SinkTypeInfo{
		Type:        "mysql",
		Description: "Stores applications in a MySQL table. The table is created on first use.",
		Fields: []sinks.ConfigField{
			{Name: "sinks.mysql.dsn", Env: "INTAKE_SINKS__MYSQL__DSN", Type: "string", Required: true, Description: "go-sql-driver DSN", Example: "user:pass@tcp(localhost:3306)/pathway"},
		},
	}
}

func (f *MySQLFactory) Create(ctx context.Context, deps sinks.Deps) (sinks.Recorder, error) {
	return Open(ctx, MySQL, deps.Config.Sinks.MySQL.DSN)
}

func init() {
	sinks.GlobalRegistry.Register(&SQLiteFactory{})
	sinks.GlobalRegistry.Register(&MySQLFactory{})
}
