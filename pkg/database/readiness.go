package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SchemaState is the row golang-migrate keeps in schema_migrations.
type SchemaState struct {
	Version uint
	Dirty   bool
}

// ErrSchemaNotReady means migrations have not been applied far enough or a
// previous migration failed half way.
var ErrSchemaNotReady = errors.New("database schema not ready")

// ReadSchemaState returns the current migration version.
// A database that was never migrated reports version 0.
func ReadSchemaState(ctx context.Context, db *sql.DB) (SchemaState, error) {
	var state SchemaState
	var version int64
	err := db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &state.Dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return SchemaState{}, nil
	}
	if err != nil {
		return SchemaState{}, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	if version < 0 {
		version = 0
	}
	state.Version = uint(version)
	return state, nil
}

// CheckReady pings the database and verifies the schema is at least
// minVersion and not dirty.
func CheckReady(ctx context.Context, db *sql.DB, minVersion uint) error {
	if db == nil {
		return fmt.Errorf("%w: no database configured", ErrSchemaNotReady)
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	state, err := ReadSchemaState(ctx, db)
	if err != nil {
		return err
	}
	if state.Dirty {
		return fmt.Errorf("%w: migration %d is dirty", ErrSchemaNotReady, state.Version)
	}
	if state.Version < minVersion {
		return fmt.Errorf("%w: at version %d, need %d", ErrSchemaNotReady, state.Version, minVersion)
	}
	return nil
}
