package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// SchemaVersion is the schema version this package reads and writes.
const SchemaVersion = 1

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate brings the schema up to SchemaVersion. It is safe to call on an
// already migrated database.
func Migrate(db *sql.DB) error {
	m, src, err := newMigrator(db)
	if err != nil {
		return err
	}
	// m.Close would also close db, so only the source is released.
	defer src.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back every migration.
func MigrateDown(db *sql.DB) error {
	m, src, err := newMigrator(db)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Version reports the applied schema version and whether the last
// migration left it dirty.
func Version(db *sql.DB) (uint, bool, error) {
	m, src, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}
	defer src.Close()

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func newMigrator(db *sql.DB) (*migrate.Migrate, interface{ Close() error }, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("failed to create migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, src, nil
}
