//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/database/postgres"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
)

func startPostgres(t *testing.T) postgres.PostgresConfig {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "nfe",
				"POSTGRES_PASSWORD": "nfe",
				"POSTGRES_DB":       "nfeingest",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	var p int
	_, err = fmt.Sscanf(port.Port(), "%d", &p)
	require.NoError(t, err)

	return postgres.PostgresConfig{
		Host:     host,
		Port:     p,
		Database: "nfeingest",
		Username: "nfe",
		Password: "nfe",
	}
}

func TestPostgresLedger_EndToEnd(t *testing.T) {
	cfg := startPostgres(t)
	log := logging.NewNopLogger()

	conn, err := postgres.NewConnection(cfg, log)
	require.NoError(t, err)

	status, err := conn.Migrate()
	require.NoError(t, err)
	require.EqualValues(t, 1, status.Version)
	require.False(t, status.Dirty)

	// a second run is a no-op
	_, err = conn.Migrate()
	require.NoError(t, err)

	ledger := repositories.NewPostgresLedger(conn, log)
	defer ledger.Close()

	ctx := context.Background()
	key := invoice.FingerprintOf("QQ==")

	created, err := ledger.Record(ctx, key, "11222333000144")
	require.NoError(t, err)
	require.True(t, created)

	created, err = ledger.Record(ctx, key, "11222333000144")
	require.NoError(t, err)
	require.False(t, created)

	exists, err := ledger.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)

	n, err := ledger.Count(ctx, "")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
