package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsTable keeps the schema version apart from the news tables.
const MigrationsTable = "bankwatch_schema_migrations"

// ErrDirtySchema means an earlier migration stopped halfway and needs manual repair.
var ErrDirtySchema = errors.New("schema is dirty")

//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations brings the schema to the latest version while holding the write gate, so no
// repository writes interleave with it. It returns the resulting version and dirty flag.
func RunMigrations(db *DB) (uint, bool, error) {
	db.gate.Lock()
	defer db.gate.Unlock()

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return 0, false, fmt.Errorf("failed to create sqlite migration driver: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, false, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	before, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		before = 0
	case err != nil:
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	case dirty:
		return before, true, fmt.Errorf("%w at version %d", ErrDirtySchema, before)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, false, fmt.Errorf("failed to apply migrations from version %d: %w", before, err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	if version != before {
		slog.Info("Schema migrated", "from", before, "to", version)
	}

	return version, dirty, nil
}
