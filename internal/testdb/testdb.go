package testdb

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"newsletter-go/internal/config"
	"newsletter-go/internal/logging"
)

// ServerURLEnv points the tests at an existing server instead of a container.
const ServerURLEnv = "TEST_DATABASE_URL"

const (
	containerImage    = "postgres:16-alpine"
	containerUser     = "postgres"
	containerPassword = "password"
)

var (
	serverOnce     sync.Once
	serverSettings config.DatabaseSettings
	serverErr      error
)

// New provisions a database for t, skipping the test when no server is reachable.
func New(t *testing.T) *Database {
	t.Helper()

	settings, err := Server()
	if err != nil {
		t.Skipf("skip: no postgres server available: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db, err := NewProvisioner(settings, quietLogger()).Provision(ctx)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

// Server resolves the target server once per process: TEST_DATABASE_URL when
// set, otherwise a postgres testcontainer that lives until the process exits.
func Server() (config.DatabaseSettings, error) {
	serverOnce.Do(func() {
		if dsn := os.Getenv(ServerURLEnv); dsn != "" {
			serverSettings, serverErr = settingsFromURL(dsn)
			return
		}
		serverSettings, serverErr = startContainer(context.Background())
	})
	return serverSettings, serverErr
}

func settingsFromURL(dsn string) (config.DatabaseSettings, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return config.DatabaseSettings{}, fmt.Errorf("parse %s: %w", ServerURLEnv, err)
	}
	// sslmode=prefer and allow carry a plaintext fallback; only the
	// require/verify modes leave TLS mandatory.
	return config.DatabaseSettings{
		Host:       cfg.Host,
		Port:       int(cfg.Port),
		Username:   cfg.User,
		Password:   cfg.Password,
		RequireSSL: cfg.TLSConfig != nil && len(cfg.Fallbacks) == 0,
		MaxConns:   10,
	}, nil
}

func startContainer(ctx context.Context) (config.DatabaseSettings, error) {
	req := testcontainers.ContainerRequest{
		Image:        containerImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     containerUser,
			"POSTGRES_PASSWORD": containerPassword,
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
			return fmt.Sprintf("postgres://%s:%s@%s:%s/postgres?sslmode=disable",
				containerUser, containerPassword, host, port.Port())
		}).WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return config.DatabaseSettings{}, fmt.Errorf("start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return config.DatabaseSettings{}, fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return config.DatabaseSettings{}, fmt.Errorf("container port: %w", err)
	}

	return config.DatabaseSettings{
		Host:     host,
		Port:     port.Int(),
		Username: containerUser,
		Password: containerPassword,
		MaxConns: 10,
	}, nil
}

func quietLogger() *logging.ContextLogger {
	logger := logging.NewLogger("error")
	logger.SetOutput(io.Discard)
	return logger
}
