package templatestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

const (
	templateKeyPrefix = "bitware:template:"
	templateListKey   = "bitware:templates"
)

// RedisStore implements Store using Redis. Templates are stored as JSON
// documents with their steps embedded.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store using an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) templateKey(name string) string {
	return templateKeyPrefix + name
}

// Upsert saves a template.
func (s *RedisStore) Upsert(ctx context.Context, t *types.PipelineTemplate) (*types.PipelineTemplate, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stored := cloneTemplate(t)
	stored.CreatedAt = now
	stored.UpdatedAt = now

	existing, err := s.Get(ctx, t.Name)
	switch {
	case err == nil:
		stored.CreatedAt = existing.CreatedAt
		if stored.ID == "" {
			stored.ID = existing.ID
		}
	case !errors.Is(err, ErrTemplateNotFound):
		return nil, err
	}
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal template: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.templateKey(t.Name), data, 0)
	pipe.SAdd(ctx, templateListKey, t.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}

	return stored, nil
}

// Get retrieves a template by name.
func (s *RedisStore) Get(ctx context.Context, name string) (*types.PipelineTemplate, error) {
	data, err := s.client.Get(ctx, s.templateKey(name)).Bytes()
	if err == redis.Nil {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}

	var t types.PipelineTemplate
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal template: %w", err)
	}
	return &t, nil
}

// Delete removes a template.
func (s *RedisStore) Delete(ctx context.Context, name string) error {
	n, err := s.client.Del(ctx, s.templateKey(name)).Result()
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n == 0 {
		return ErrTemplateNotFound
	}
	s.client.SRem(ctx, templateListKey, name)
	return nil
}

// List returns templates ordered by name.
func (s *RedisStore) List(ctx context.Context, opts *ListOptions) ([]*types.PipelineTemplate, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	names, err := s.client.SMembers(ctx, templateListKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	sort.Strings(names)

	list := make([]*types.PipelineTemplate, 0, len(names))
	for _, name := range names {
		t, err := s.Get(ctx, name)
		if errors.Is(err, ErrTemplateNotFound) {
			s.client.SRem(ctx, templateListKey, name)
			continue
		}
		if err != nil {
			return nil, err
		}
		if opts.ActiveOnly && !t.IsActive {
			continue
		}
		list = append(list, t)
	}

	return paginate(list, opts), nil
}

// Close is a no-op; the shared client is closed by its owner.
func (s *RedisStore) Close() error {
	return nil
}
