package warehouse

import (
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"medwarehouse/internal/services"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// newMigrator binds the embedded migrations to the open pool. The returned
// instance must not be closed: closing its database driver closes the pool.
func (s *Store) newMigrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "warehouse", "migrate", "load embedded migrations", err)
	}
	var driver database.Driver
	switch s.driver {
	case DriverPostgres:
		driver, err = postgres.WithInstance(s.db.DB, &postgres.Config{})
	default:
		driver, err = sqlite.WithInstance(s.db.DB, &sqlite.Config{})
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "migrate", "init driver", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, s.driver, driver)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "migrate", "init", err)
	}
	return m, nil
}

func (s *Store) migrate() error {
	m, err := s.newMigrator()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return services.Wrap(services.ErrTransient, "warehouse", "migrate", "apply", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version and its dirty flag.
func (s *Store) SchemaVersion() (uint, bool, error) {
	m, err := s.newMigrator()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}
