package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for golang-migrate
	"go.uber.org/zap"
)

// RunMigrations brings the schema at dsn up to date with migrationsPath and
// returns the resulting state, the same row CheckReady later reads. A dirty
// schema is refused before anything runs; it needs a manual `migrate force`.
func RunMigrations(dsn, migrationsPath string, logger *zap.Logger) (SchemaState, error) {
	// Own handle: closing the migrator closes the database it was given.
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return SchemaState{}, fmt.Errorf("failed to open migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return SchemaState{}, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		return SchemaState{}, fmt.Errorf("failed to load migrations from %s: %w", migrationsPath, err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("Failed to close migration connection", zap.Error(dbErr))
		}
	}()

	before, err := migrationState(m)
	if err != nil {
		return SchemaState{}, err
	}
	if before.Dirty {
		return before, fmt.Errorf("%w: migration %d is dirty", ErrSchemaNotReady, before.Version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		after, _ := migrationState(m)
		return after, fmt.Errorf("failed to migrate from version %d: %w", before.Version, err)
	}

	after, err := migrationState(m)
	if err != nil {
		return SchemaState{}, err
	}
	if after.Version == before.Version {
		logger.Info("Schema up to date", zap.Uint("version", after.Version))
	} else {
		logger.Info("Schema migrated",
			zap.Uint("from_version", before.Version),
			zap.Uint("to_version", after.Version))
	}
	return after, nil
}

// migrationState reads the version golang-migrate recorded. A database that
// was never migrated reports version 0.
func migrationState(m *migrate.Migrate) (SchemaState, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return SchemaState{}, nil
	}
	if err != nil {
		return SchemaState{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	return SchemaState{Version: version, Dirty: dirty}, nil
}
