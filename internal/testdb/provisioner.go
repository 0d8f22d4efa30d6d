// Package testdb provisions an isolated, migrated PostgreSQL database per test.
//
// Every call creates a new database named test_<uuid> on the target server, so
// tests running concurrently (in one process or several) never see each
// other's rows. Databases are not dropped afterwards.
//
// The package is a test helper: it imports testing and testify, and only
// _test.go files import it. Production code never does.
package testdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"newsletter-go/internal/config"
	"newsletter-go/internal/database"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/migrations"
)

// Database is a freshly provisioned database and a pool bound to it.
type Database struct {
	Name     string
	Settings config.DatabaseSettings
	Pool     *pgxpool.Pool
}

// Close releases the pool. The database itself is left on the server.
func (d *Database) Close() {
	d.Pool.Close()
}

type Provisioner struct {
	server config.DatabaseSettings
	logger *logging.ContextLogger
}

// NewProvisioner targets the server described by settings; settings.DatabaseName is ignored.
func NewProvisioner(server config.DatabaseSettings, logger *logging.ContextLogger) *Provisioner {
	return &Provisioner{server: server, logger: logger}
}

// Provision creates a uniquely named database, migrates it and returns a pool on it.
func (p *Provisioner) Provision(ctx context.Context) (*Database, error) {
	name := NewDatabaseName()

	if err := p.createDatabase(ctx, name); err != nil {
		return nil, err
	}

	settings := p.server.WithDatabase(name)
	pool, err := database.NewPool(ctx, settings, p.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", name, err)
	}

	if err := migrations.Run(ctx, pool, p.logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate %s: %w", name, err)
	}

	p.logger.WithField("database", name).Debug("test database provisioned")
	return &Database{Name: name, Settings: settings, Pool: pool}, nil
}

func (p *Provisioner) createDatabase(ctx context.Context, name string) error {
	conn, err := pgx.Connect(ctx, p.server.ConnectionStringWithoutDB())
	if err != nil {
		return fmt.Errorf("connect to maintenance database: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}

// NewDatabaseName returns a database name that is unique per call.
func NewDatabaseName() string {
	return "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
