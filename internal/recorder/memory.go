package recorder

import (
	"context"
	"sort"
	"sync"

	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// MemoryRecorder implements Recorder using in-memory storage.
type MemoryRecorder struct {
	mu         sync.RWMutex
	executions map[string]*types.PipelineExecution
	maxEntries int
}

// NewMemoryRecorder creates an in-memory recorder that keeps at most
// maxEntries executions, evicting the oldest (0 = unbounded).
func NewMemoryRecorder(maxEntries int) *MemoryRecorder {
	return &MemoryRecorder{
		executions: make(map[string]*types.PipelineExecution),
		maxEntries: maxEntries,
	}
}

func (m *MemoryRecorder) Save(ctx context.Context, exec *types.PipelineExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.executions[exec.ID] = cloneExecution(exec)
	if m.maxEntries > 0 && len(m.executions) > m.maxEntries {
		m.evictOldestLocked()
	}
	return nil
}

func (m *MemoryRecorder) evictOldestLocked() {
	var oldest *types.PipelineExecution
	for _, e := range m.executions {
		if oldest == nil || e.StartedAt.Before(oldest.StartedAt) {
			oldest = e
		}
	}
	if oldest != nil {
		delete(m.executions, oldest.ID)
	}
}

func (m *MemoryRecorder) Get(ctx context.Context, id string) (*types.PipelineExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.executions[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	return cloneExecution(e), nil
}

func (m *MemoryRecorder) List(ctx context.Context, limit int) ([]types.ExecutionSummary, error) {
	m.mu.RLock()
	list := make([]types.ExecutionSummary, 0, len(m.executions))
	for _, e := range m.executions {
		list = append(list, e.Summary())
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].StartedAt.After(list[j].StartedAt)
	})
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list, nil
}

func (m *MemoryRecorder) AdapterInfo(ctx context.Context) (map[string]any, error) {
	m.mu.RLock()
	count := len(m.executions)
	m.mu.RUnlock()

	return map[string]any{
		"adapter":         "memory",
		"healthy":         true,
		"execution_count": count,
		"max_entries":     m.maxEntries,
	}, nil
}

func (m *MemoryRecorder) Close() error {
	return nil
}

var _ Recorder = (*MemoryRecorder)(nil)
