package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var embedMigrations embed.FS

const migrationTimeout = 60 * time.Second

// OpenSQL opens a plain database/sql handle for driver, for tools that do not
// need gorm.
func OpenSQL(driver, dsn string) (*sql.DB, error) {
	var name string
	switch driver {
	case DriverSQLite, "":
		// Registered by gorm.io/driver/sqlite.
		name = "sqlite3"
	case DriverPostgres:
		name = "pgx"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	return db, nil
}

// RunMigrations runs the goose command ("up", "down", "status", ...) against db.
func RunMigrations(ctx context.Context, db *sql.DB, driver, command string, log *zap.Logger) error {
	migrationCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()

	dialect, dir := "sqlite3", "migrations/sqlite"
	if driver == DriverPostgres {
		dialect, dir = "postgres", "migrations/postgres"
	}

	goose.SetBaseFS(embedMigrations)
	if log != nil {
		goose.SetLogger(gooseLogger{log.Sugar()})
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.RunContext(migrationCtx, command, db, dir); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// Migrate brings the schema of d up to date.
func (d *Database) Migrate(ctx context.Context, log *zap.Logger) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return RunMigrations(ctx, sqlDB, d.Driver, "up", log)
}

type gooseLogger struct {
	*zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}
