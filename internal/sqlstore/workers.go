package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/registry"
	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// WorkerRegistry implements registry.WorkerRegistry on the workers table.
type WorkerRegistry struct {
	*DB
}

// Workers returns the worker registry view of the database.
func (d *DB) Workers() *WorkerRegistry {
	return &WorkerRegistry{DB: d}
}

// Upsert creates or replaces a worker.
func (r *WorkerRegistry) Upsert(ctx context.Context, w *types.WorkerDescriptor) (*types.WorkerDescriptor, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stored := *w
	stored.UpdatedAt = now
	stored.CreatedAt = now
	if stored.HealthStatus == "" {
		stored.HealthStatus = types.HealthUnknown
	}

	var createdMs int64
	err := r.db.QueryRowContext(ctx, r.rebind("SELECT created_at FROM workers WHERE name = ?"), w.Name).Scan(&createdMs)
	switch {
	case err == nil:
		stored.CreatedAt = time.UnixMilli(createdMs).UTC()
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("lookup worker %s: %w", w.Name, err)
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("marshal worker: %w", err)
	}

	_, err = r.exec(ctx, r.db, `
		INSERT INTO workers (name, is_active, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			is_active = excluded.is_active,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		stored.Name, stored.IsActive, string(data), stored.CreatedAt.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("upsert worker %s: %w", w.Name, err)
	}
	return &stored, nil
}

// Get retrieves a worker by name.
func (r *WorkerRegistry) Get(ctx context.Context, name string) (*types.WorkerDescriptor, error) {
	var data string
	err := r.db.QueryRowContext(ctx, r.rebind("SELECT data FROM workers WHERE name = ?"), name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, registry.ErrWorkerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get worker %s: %w", name, err)
	}

	var w types.WorkerDescriptor
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return nil, fmt.Errorf("unmarshal worker: %w", err)
	}
	return &w, nil
}

// Delete removes a worker.
func (r *WorkerRegistry) Delete(ctx context.Context, name string) error {
	res, err := r.exec(ctx, r.db, "DELETE FROM workers WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete worker %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return registry.ErrWorkerNotFound
	}
	return nil
}

// List returns workers ordered by name.
func (r *WorkerRegistry) List(ctx context.Context, opts *registry.ListOptions) ([]*types.WorkerDescriptor, error) {
	if opts == nil {
		opts = &registry.ListOptions{}
	}

	query, args := "SELECT data FROM workers", []any{}
	if opts.ActiveOnly {
		query += " WHERE is_active = ?"
		args = append(args, true)
	}
	query += " ORDER BY name" + r.limitClause(opts.Limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	workers := []*types.WorkerDescriptor{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		var w types.WorkerDescriptor
		if err := json.Unmarshal([]byte(data), &w); err != nil {
			return nil, fmt.Errorf("unmarshal worker: %w", err)
		}
		workers = append(workers, &w)
	}
	return workers, rows.Err()
}

// Close is a no-op; the owner of the DB closes it.
func (r *WorkerRegistry) Close() error {
	return nil
}

// limitClause renders LIMIT/OFFSET for the driver's dialect.
func (d *DB) limitClause(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0 && d.driver == DriverSQLite:
		// sqlite requires a LIMIT before OFFSET
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
	case offset > 0:
		return fmt.Sprintf(" OFFSET %d", offset)
	}
	return ""
}

var _ registry.WorkerRegistry = (*WorkerRegistry)(nil)
