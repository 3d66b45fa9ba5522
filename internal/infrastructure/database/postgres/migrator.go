package postgres

import (
	"embed"
	stderrors "errors"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/nfe-ingest/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationStatus is the schema version recorded by golang-migrate.
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

// newMigrate builds a migrate instance over the connection using the embedded
// migration files. The caller must not Close it, since that would close c.db.
func (c *Connection) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to open embedded migrations")
	}
	driver, err := pgmigrate.WithInstance(c.db, &pgmigrate.Config{})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeLedger, "failed to create migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeLedger, "failed to create migrate instance")
	}
	return m, nil
}

// Migrate applies every pending migration. No pending migration is not an error.
func (c *Connection) Migrate() (*MigrationStatus, error) {
	m, err := c.newMigrate()
	if err != nil {
		return nil, err
	}
	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return nil, errors.Wrap(err, errors.CodeLedger, "failed to run migrations")
	}
	status, err := readStatus(m)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Database migrations completed",
		logging.Int64("version", int64(status.Version)),
		logging.Bool("dirty", status.Dirty),
	)
	return status, nil
}

// Rollback reverts steps migrations.
func (c *Connection) Rollback(steps int) (*MigrationStatus, error) {
	if steps <= 0 {
		return nil, errors.Newf(errors.CodeValidation, "steps must be greater than 0, got %d", steps)
	}
	m, err := c.newMigrate()
	if err != nil {
		return nil, err
	}
	if err := m.Steps(-steps); err != nil {
		return nil, errors.Wrap(err, errors.CodeLedger, "failed to roll back migrations")
	}
	return readStatus(m)
}

// Status reports the applied schema version.
func (c *Connection) Status() (*MigrationStatus, error) {
	m, err := c.newMigrate()
	if err != nil {
		return nil, err
	}
	return readStatus(m)
}

func readStatus(m *migrate.Migrate) (*MigrationStatus, error) {
	version, dirty, err := m.Version()
	if stderrors.Is(err, migrate.ErrNilVersion) {
		return &MigrationStatus{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeLedger, "failed to get migration version")
	}
	return &MigrationStatus{Version: version, Dirty: dirty}, nil
}
