package templatestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// MemoryStore implements Store using in-memory storage.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]*types.PipelineTemplate
}

// NewMemoryStore creates a new in-memory template store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[string]*types.PipelineTemplate),
	}
}

// Upsert saves a template.
func (s *MemoryStore) Upsert(ctx context.Context, t *types.PipelineTemplate) (*types.PipelineTemplate, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	stored := cloneTemplate(t)
	stored.CreatedAt = now
	if existing, ok := s.templates[t.Name]; ok {
		stored.CreatedAt = existing.CreatedAt
		if stored.ID == "" {
			stored.ID = existing.ID
		}
	}
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	stored.UpdatedAt = now

	s.templates[t.Name] = stored
	return cloneTemplate(stored), nil
}

// Get retrieves a template by name.
func (s *MemoryStore) Get(ctx context.Context, name string) (*types.PipelineTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[name]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return cloneTemplate(t), nil
}

// Delete removes a template.
func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[name]; !ok {
		return ErrTemplateNotFound
	}
	delete(s.templates, name)
	return nil
}

// List returns templates ordered by name.
func (s *MemoryStore) List(ctx context.Context, opts *ListOptions) ([]*types.PipelineTemplate, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	s.mu.RLock()
	list := make([]*types.PipelineTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		if opts.ActiveOnly && !t.IsActive {
			continue
		}
		list = append(list, cloneTemplate(t))
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return paginate(list, opts), nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
