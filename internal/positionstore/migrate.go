package positionstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations applies every pending migration to db, using the
// migrate/v4 driver matching driverName. Grounded on
// libs/database.ConnectWithMigrations, which calls the same shaped
// RunMigrations(db, migrationsPath) before handing the connection back.
func RunMigrations(db *sql.DB, driverName string) error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("positionstore: load migration source: %w", err)
	}

	var target migrate.Database
	switch driverName {
	case "postgres":
		target, err = postgres.WithInstance(db, &postgres.Config{})
	case "sqlite3":
		target, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDriver, driverName)
	}
	if err != nil {
		return fmt.Errorf("positionstore: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driverName, target)
	if err != nil {
		return fmt.Errorf("positionstore: migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("positionstore: apply migrations: %w", err)
	}
	return nil
}
