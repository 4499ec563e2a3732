package loader

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/gowthamrao/eurostat-elt/pkg/log"
)

//go:embed migrations/*
var migrationFiles embed.FS

// bootstrapMetaSchema runs the embedded metadata-namespace migrations
// once per process, creating the ingestion-history and code-list tables
// if absent. The metadata namespace name is fixed by the migration files
// themselves ("meta" schema on PostgreSQL, "meta_"-prefixed tables on
// SQLite); Config.MetaSchema documents that convention rather than
// parameterizing it.
func bootstrapMetaSchema(driverName string, db *sql.DB) error {
	var (
		m   *migrate.Migrate
		err error
	)

	switch driverName {
	case "sqlite3":
		driver, derr := sqlite3.WithInstance(db, &sqlite3.Config{})
		if derr != nil {
			return fmt.Errorf("sqlite3 migration driver: %w", derr)
		}
		d, derr := iofs.New(migrationFiles, "migrations/sqlite3")
		if derr != nil {
			return fmt.Errorf("load embedded sqlite3 migrations: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", d, "sqlite3", driver)
	case "postgres":
		driver, derr := postgres.WithInstance(db, &postgres.Config{})
		if derr != nil {
			return fmt.Errorf("postgres migration driver: %w", derr)
		}
		d, derr := iofs.New(migrationFiles, "migrations/postgres")
		if derr != nil {
			return fmt.Errorf("load embedded postgres migrations: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", d, "postgres", driver)
	default:
		return fmt.Errorf("unsupported database driver: %s", driverName)
	}
	if err != nil {
		return fmt.Errorf("init migration runner: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply metadata schema migrations: %w", err)
	}
	log.Debugf("metadata schema migrations up to date for driver %s", driverName)
	return nil
}
