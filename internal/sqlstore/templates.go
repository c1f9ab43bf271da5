package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/templatestore"
	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// TemplateStore implements templatestore.Store on the templates table.
type TemplateStore struct {
	*DB
}

// Templates returns the template store view of the database.
func (d *DB) Templates() *TemplateStore {
	return &TemplateStore{DB: d}
}

// Upsert validates and saves a template.
func (s *TemplateStore) Upsert(ctx context.Context, t *types.PipelineTemplate) (*types.PipelineTemplate, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stored := *t
	stored.CreatedAt = now
	stored.UpdatedAt = now

	var (
		existingID string
		createdMs  int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id, created_at FROM templates WHERE name = ?"), t.Name).
		Scan(&existingID, &createdMs)
	switch {
	case err == nil:
		stored.CreatedAt = time.UnixMilli(createdMs).UTC()
		if stored.ID == "" {
			stored.ID = existingID
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("lookup template %s: %w", t.Name, err)
	}
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("marshal template: %w", err)
	}

	_, err = s.exec(ctx, s.db, `
		INSERT INTO templates (name, id, is_active, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			id = excluded.id,
			is_active = excluded.is_active,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		stored.Name, stored.ID, stored.IsActive, string(data), stored.CreatedAt.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("upsert template %s: %w", t.Name, err)
	}
	return &stored, nil
}

// Get retrieves a template by name.
func (s *TemplateStore) Get(ctx context.Context, name string) (*types.PipelineTemplate, error) {
	var data string
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT data FROM templates WHERE name = ?"), name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, templatestore.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", name, err)
	}

	var t types.PipelineTemplate
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("unmarshal template: %w", err)
	}
	return &t, nil
}

// Delete removes a template.
func (s *TemplateStore) Delete(ctx context.Context, name string) error {
	res, err := s.exec(ctx, s.db, "DELETE FROM templates WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete template %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return templatestore.ErrTemplateNotFound
	}
	return nil
}

// List returns templates ordered by name.
func (s *TemplateStore) List(ctx context.Context, opts *templatestore.ListOptions) ([]*types.PipelineTemplate, error) {
	if opts == nil {
		opts = &templatestore.ListOptions{}
	}

	query, args := "SELECT data FROM templates", []any{}
	if opts.ActiveOnly {
		query += " WHERE is_active = ?"
		args = append(args, true)
	}
	query += " ORDER BY name" + s.limitClause(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	list := []*types.PipelineTemplate{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		var t types.PipelineTemplate
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("unmarshal template: %w", err)
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// Close is a no-op; the owner of the DB closes it.
func (s *TemplateStore) Close() error {
	return nil
}

var _ templatestore.Store = (*TemplateStore)(nil)
