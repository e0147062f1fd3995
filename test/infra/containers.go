package infra

import (
	"context"
	"os"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	// EnvDSN points the suite at an existing database instead of Docker.
	EnvDSN = "LEASEFLOW_TEST_PG_DSN"
	// EnvImage overrides the Postgres image used for throwaway containers.
	EnvImage = "LEASEFLOW_TEST_PG_IMAGE"

	defaultImage = "postgres:16-alpine"
)

// Database is the Postgres instance a harness runs against. It only owns a
// container when no external DSN was configured.
type Database struct {
	DSN       string
	container *postgres.PostgresContainer
}

// ExternalDSN returns explicit, or the DSN from EnvDSN when explicit is empty.
func ExternalDSN(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return os.Getenv(EnvDSN)
}

// Shared reports whether the database belongs to someone else; shared
// databases get a private schema and are never stopped.
func (d *Database) Shared() bool { return d.container == nil }

// OpenDatabase resolves the external DSN or boots a container sized for the
// resolution stress run: every actor holds its own connections and chaos
// keeps killing backends, so the default connection limit is too small.
func OpenDatabase(ctx context.Context, dsn string) (*Database, error) {
	if external := ExternalDSN(dsn); external != "" {
		return &Database{DSN: external}, nil
	}

	image := os.Getenv(EnvImage)
	if image == "" {
		image = defaultImage
	}
	pgC, err := postgres.Run(ctx, image,
		postgres.WithDatabase("leaseflow"),
		postgres.WithUsername("leaseflow"),
		postgres.WithPassword("leaseflow"),
		testcontainers.WithCmd("postgres",
			"-c", "fsync=off",
			"-c", "max_connections=200",
			"-c", "log_lock_waits=on",
			"-c", "deadlock_timeout=200ms",
		),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, err
	}

	resolved, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, err
	}
	return &Database{DSN: resolved, container: pgC}, nil
}

// Close stops an owned container. Shared databases are left running.
func (d *Database) Close(ctx context.Context) error {
	if d == nil || d.container == nil {
		return nil
	}
	return d.container.Terminate(ctx)
}
