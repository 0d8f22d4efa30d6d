// Package migrations applies the embedded schema migrations with golang-migrate.
//
// Applied versions are recorded in the schema_migrations table. Every migration
// file wraps its statements in a single transaction, so a step is either fully
// applied or not at all; a failed step leaves the log dirty and Run refuses to
// continue until an operator resolves it.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"

	"newsletter-go/internal/logging"
)

// MigrationsTable holds the migration log.
const MigrationsTable = "schema_migrations"

//go:embed sql/*.sql
var files embed.FS

// Files exposes the embedded migration sources.
func Files() fs.FS {
	return files
}

// Run applies every migration that is not yet recorded. Re-running against an
// up-to-date database is a no-op.
func Run(ctx context.Context, pool *pgxpool.Pool, logger *logging.ContextLogger) error {
	m, db, err := newMigrate(pool, logger)
	if err != nil {
		return err
	}
	defer closeMigrate(m, db, logger)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.WithField("database", pool.Config().ConnConfig.Database).Info("schema is up to date")
	case err != nil:
		return fmt.Errorf("apply migrations: %w", err)
	default:
		logger.WithField("database", pool.Config().ConnConfig.Database).Info("migrations applied")
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Version reports the latest applied migration and whether it is dirty.
// A database with no applied migrations reports version 0.
func Version(ctx context.Context, pool *pgxpool.Pool, logger *logging.ContextLogger) (uint, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	m, db, err := newMigrate(pool, logger)
	if err != nil {
		return 0, false, err
	}
	defer closeMigrate(m, db, logger)

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return version, dirty, nil
}

func newMigrate(pool *pgxpool.Pool, logger *logging.ContextLogger) (*migrate.Migrate, *sql.DB, error) {
	source, err := iofs.New(files, "sql")
	if err != nil {
		return nil, nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	// Closing this *sql.DB does not close the pool.
	db := stdlib.OpenDBFromPool(pool)
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		_ = source.Close()
		_ = db.Close()
		return nil, nil, fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		_ = source.Close()
		_ = driver.Close()
		_ = db.Close()
		return nil, nil, fmt.Errorf("create migrator: %w", err)
	}
	m.Log = &migrateLogger{logger: logger}
	return m, db, nil
}

func closeMigrate(m *migrate.Migrate, db *sql.DB, logger *logging.ContextLogger) {
	srcErr, dbErr := m.Close()
	if err := db.Close(); err != nil && dbErr == nil {
		dbErr = err
	}
	if srcErr != nil || dbErr != nil {
		logger.WithFields(logrus.Fields{
			"source_error":   srcErr,
			"database_error": dbErr,
		}).Warn("failed to close migrator")
	}
}

// migrateLogger adapts logrus to migrate.Logger.
type migrateLogger struct {
	logger *logging.ContextLogger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debugf(format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return l.logger.IsLevelEnabled(logrus.DebugLevel)
}
