package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	pgOnce sync.Once
	pgDSN  string
	pgErr  error
)

// GetPostgresDSN returns the DSN of a shared Postgres container. The
// container outlives individual tests and is reaped by Testcontainers.
func GetPostgresDSN(t *testing.T) string {
	t.Helper()
	pgOnce.Do(func() {
		pgDSN, pgErr = startPostgres()
	})
	requireContainer(t, "Postgres", pgErr)
	return pgDSN
}

func startPostgres() (dsn string, err error) {
	defer guardStart("Postgres", &err)

	// Give generous timeout in CI environments
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	postgresC, err := testcontainers.Run(
		ctx, "postgres:16",
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("ready to accept connections"),
				wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
					return fmt.Sprintf("postgres://perform:perform@%s:%s/perform_test?sslmode=disable", host, port.Port())
				}).WithQuery("SELECT 1"),
			).WithDeadline(2*time.Minute),
		),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "perform",
			"POSTGRES_PASSWORD": "perform",
			"POSTGRES_DB":       "perform_test",
		}),
	)
	if err != nil {
		return "", err
	}

	endpoint, err := postgresC.Endpoint(ctx, "")
	if err != nil {
		_ = postgresC.Terminate(context.Background()) // best-effort cleanup
		return "", err
	}

	return fmt.Sprintf("postgres://perform:perform@%s/perform_test?sslmode=disable", endpoint), nil
}
