package db

import (
	"context"
	_ "embed"
	"fmt"

	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes shape.
const schemaVersion = "2026-10-17-room-tombstone"

// Migrate applies the embedded schema once and records it in
// schema_migrations. Every statement in schema.sql is IF NOT EXISTS, so a
// crash between applying and recording is safe to rerun.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    text PRIMARY KEY,
			applied_at timestamptz NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var applied bool
	err = db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, schemaVersion,
	).Scan(&applied)
	if err != nil {
		return fmt.Errorf("check migration: %w", err)
	}
	if applied {
		db.logger.Debug("schema up to date", zap.String("version", schemaVersion))
		return nil
	}

	// Exec with no arguments uses the simple protocol, which accepts a
	// multi-statement script.
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.pool.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, schemaVersion); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	db.logger.Info("schema applied", zap.String("version", schemaVersion))
	return nil
}
