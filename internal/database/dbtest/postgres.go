// Package dbtest starts a throwaway Postgres for integration tests.
package dbtest

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer manages a Postgres test container
type PostgresContainer struct {
	container testcontainers.Container
	host      string
	port      string
}

// StartPostgres starts a Postgres container and waits until it accepts connections
func StartPostgres(ctx context.Context) (*PostgresContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "weeklymatch",
			"POSTGRES_PASSWORD": "weeklymatch",
			"POSTGRES_DB":       "weeklymatch",
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
		return nil, err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}

	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, err
	}

	return &PostgresContainer{container: container, host: host, port: mappedPort.Port()}, nil
}

// Stop terminates the container
func (pc *PostgresContainer) Stop(ctx context.Context) error {
	return pc.container.Terminate(ctx)
}

// URL returns a lib/pq connection string for the container
func (pc *PostgresContainer) URL() string {
	return fmt.Sprintf("postgres://weeklymatch:weeklymatch@%s:%s/weeklymatch?sslmode=disable", pc.host, pc.port)
}
