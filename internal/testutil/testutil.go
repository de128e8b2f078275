// Package testutil provides shared test infrastructure for integration tests
// that need a PostgreSQL container.
//
// Usage:
//
//	tc := testutil.StartPostgres(t)
//	db := tc.NewTestDB(t, testutil.TestLogger())
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/khoango6804/MLN-chatbot-debate/internal/storage"
	"github.com/khoango6804/MLN-chatbot-debate/migrations"
)

// TestContainer wraps a testcontainers container with a DSN for connecting.
type TestContainer struct {
	Container testcontainers.Container
	DSN       string
}

// StartPostgres starts a postgres:16-alpine container for t. The test is
// skipped under -short or when no container runtime is available. The
// container is terminated when t finishes.
func StartPostgres(t *testing.T) *TestContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	tc, err := startPostgres(context.Background())
	if err != nil {
		t.Skipf("testutil: postgres unavailable: %v", err)
	}
	t.Cleanup(tc.Terminate)
	return tc
}

// MustStartPostgres starts a container and calls os.Exit(1) on failure
// (suitable for TestMain).
func MustStartPostgres() *TestContainer {
	tc, err := startPostgres(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: %v\n", err)
		os.Exit(1)
	}
	return tc
}

func startPostgres(ctx context.Context) (*TestContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "debate",
			"POSTGRES_PASSWORD": "debate",
			"POSTGRES_DB":       "debate",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("container port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://debate:debate@%s:%s/debate?sslmode=disable", host, port.Port())
	return &TestContainer{Container: container, DSN: dsn}, nil
}

// NewTestDB creates a storage.DB connected to this container and runs all
// migrations. The pool is closed when t finishes.
func (tc *TestContainer) NewTestDB(t *testing.T, logger *slog.Logger) *storage.DB {
	t.Helper()
	ctx := context.Background()
	db, err := storage.New(ctx, tc.DSN, logger)
	if err != nil {
		t.Fatalf("testutil: create DB: %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		t.Fatalf("testutil: run migrations: %v", err)
	}
	return db
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
