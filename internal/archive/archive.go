// Package archive keeps a long-lived JSON copy of finished pipeline executions
// in object storage, outside the recorder's retention window.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// ErrNotFound is returned when an archived object does not exist.
var ErrNotFound = errors.New("archived object not found")

// ObjectRef describes a stored object.
type ObjectRef struct {
	// URI is the full object location (e.g., "s3://bucket/executions/01H.json")
	URI         string    `json:"uri"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Backend defines the object storage interface.
type Backend interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (*ObjectRef, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Name() string
}

// Config holds archive configuration.
type Config struct {
	// Backend type: "" (disabled), "memory", "s3", "minio"
	Type string

	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool

	// PathPrefix is prepended to all object paths
	PathPrefix string
}

// Archive stores executions as JSON documents.
type Archive struct {
	backend Backend
}

// New creates an archive for the configured backend. It returns (nil, nil)
// when archiving is disabled.
func New(ctx context.Context, cfg *Config) (*Archive, error) {
	if cfg == nil || cfg.Type == "" || cfg.Type == "none" {
		return nil, nil
	}

	switch cfg.Type {
	case "memory":
		return NewWithBackend(NewMemoryBackend()), nil
	case "s3", "minio":
		b, err := NewS3Backend(ctx, &S3Config{
			Endpoint:        cfg.Endpoint,
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UseSSL:          cfg.UseSSL,
			PathPrefix:      cfg.PathPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 backend: %w", err)
		}
		return NewWithBackend(b), nil
	default:
		return nil, fmt.Errorf("unknown archive backend: %s", cfg.Type)
	}
}

// NewWithBackend wraps an existing backend.
func NewWithBackend(b Backend) *Archive {
	return &Archive{backend: b}
}

// ExecutionPath returns the object path for an execution id.
func ExecutionPath(id string) string {
	return "executions/" + id + ".json"
}

// StoreExecution writes the execution, results included, as one JSON document.
func (a *Archive) StoreExecution(ctx context.Context, exec *types.PipelineExecution) (*ObjectRef, error) {
	data, err := json.Marshal(exec)
	if err != nil {
		return nil, fmt.Errorf("marshal execution: %w", err)
	}
	return a.backend.Put(ctx, ExecutionPath(exec.ID), data, "application/json")
}

// LoadExecution reads an archived execution. Returns ErrNotFound if absent.
func (a *Archive) LoadExecution(ctx context.Context, id string) (*types.PipelineExecution, error) {
	data, err := a.backend.Get(ctx, ExecutionPath(id))
	if err != nil {
		return nil, err
	}
	var exec types.PipelineExecution
	if err := json.Unmarshal(data, &exec); err != nil {
		return nil, fmt.Errorf("unmarshal execution: %w", err)
	}
	return &exec, nil
}

// BackendName reports the backend in use.
func (a *Archive) BackendName() string {
	return a.backend.Name()
}

// MemoryBackend provides an in-memory storage backend for testing.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string][]byte)}
}

func (m *MemoryBackend) Put(ctx context.Context, path string, data []byte, contentType string) (*ObjectRef, error) {
	buf := append([]byte(nil), data...)

	m.mu.Lock()
	m.objects[path] = buf
	m.mu.Unlock()

	return &ObjectRef{
		URI:         "memory://" + path,
		ContentType: contentType,
		Size:        int64(len(buf)),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (m *MemoryBackend) Get(ctx context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[path]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryBackend) Name() string { return "memory" }
