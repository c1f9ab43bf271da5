package sqlstore

import (
	"context"
	"fmt"
	"sort"
)

// migrations are applied in version order; each runs in its own transaction.
var migrations = map[int]string{
	1: `
		CREATE TABLE IF NOT EXISTS workers (
			name TEXT PRIMARY KEY,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			data TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS templates (
			name TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			data TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			template_name TEXT NOT NULL,
			topic TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at BIGINT NOT NULL,
			header TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS worker_results (
			execution_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (execution_id, position)
		);

		CREATE INDEX IF NOT EXISTS idx_executions_started_at ON executions(started_at);
	`,
}

// Migrate creates or upgrades the schema.
func (d *DB) Migrate(ctx context.Context) error {
	d.logger.InfoContext(ctx, "starting database migrations", "driver", d.driver)

	if _, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	current, err := d.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	versions := make([]int, 0, len(migrations))
	for v := range migrations {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	for _, v := range versions {
		if v <= current {
			continue
		}
		if err := d.applyMigration(ctx, v, migrations[v]); err != nil {
			return err
		}
		d.logger.InfoContext(ctx, "migration applied", "version", v)
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a fresh database.
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := d.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}

func (d *DB) applyMigration(ctx context.Context, version int, ddl string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute migration %d: %w", version, err)
	}
	if _, err := d.exec(ctx, tx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", version, err)
	}
	return nil
}
