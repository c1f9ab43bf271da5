// Package catalog loads worker and template definitions from YAML and seeds
// them into the registry and template store.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/metrics"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/registry"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/templatestore"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/validator"
	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

//go:embed default.yaml
var defaultCatalog []byte

// Catalog is the file format: a list of workers and a list of templates.
type Catalog struct {
	Workers   []types.WorkerDescriptor `yaml:"workers"`
	Templates []types.PipelineTemplate `yaml:"templates"`
}

// Parse decodes a YAML catalog. Unknown fields are rejected.
func Parse(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return &c, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &c, nil
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(bytes.NewReader(defaultCatalog))
}

// Report summarizes a seeding run.
type Report struct {
	Workers   int `json:"workers"`
	Templates int `json:"templates"`
}

// Seeder upserts catalog entries after schema validation.
type Seeder struct {
	workers   registry.WorkerRegistry
	templates templatestore.Store
	validator *validator.Validator
	logger    *slog.Logger
}

// NewSeeder creates a seeder. A nil validator skips schema checks.
func NewSeeder(workers registry.WorkerRegistry, templates templatestore.Store, v *validator.Validator, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{workers: workers, templates: templates, validator: v, logger: logger}
}

// Seed validates every entry first and writes nothing if any is invalid.
// Templates that reference workers missing from both the catalog and the
// registry are accepted with a warning; the executor reports them at run time.
func (s *Seeder) Seed(ctx context.Context, c *Catalog) (*Report, error) {
	if err := s.check(c); err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(c.Workers))
	report := &Report{}

	for i := range c.Workers {
		w := &c.Workers[i]
		if _, err := s.workers.Upsert(ctx, w); err != nil {
			return report, fmt.Errorf("seed worker %s: %w", w.Name, err)
		}
		known[w.Name] = true
		report.Workers++
		metrics.CatalogSeeded.WithLabelValues("worker").Inc()
	}

	for i := range c.Templates {
		t := &c.Templates[i]
		for _, step := range t.Steps {
			if known[step.WorkerName] {
				continue
			}
			if _, err := s.workers.Get(ctx, step.WorkerName); errors.Is(err, registry.ErrWorkerNotFound) {
				s.logger.Warn("template references unknown worker",
					slog.String("template", t.Name),
					slog.Int("step_order", step.StepOrder),
					slog.String("worker", step.WorkerName),
				)
			}
		}
		if _, err := s.templates.Upsert(ctx, t); err != nil {
			return report, fmt.Errorf("seed template %s: %w", t.Name, err)
		}
		report.Templates++
		metrics.CatalogSeeded.WithLabelValues("template").Inc()
	}

	s.logger.Info("catalog seeded",
		slog.Int("workers", report.Workers),
		slog.Int("templates", report.Templates),
	)
	return report, nil
}

func (s *Seeder) check(c *Catalog) error {
	var errs []error
	for i := range c.Workers {
		w := &c.Workers[i]
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("worker %d: %w", i, err))
			continue
		}
		if s.validator != nil {
			if err := s.validator.ValidateWorker(w).Err(); err != nil {
				errs = append(errs, fmt.Errorf("worker %s: %w", w.Name, err))
			}
		}
	}
	for i := range c.Templates {
		t := &c.Templates[i]
		if err := t.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("template %d: %w", i, err))
			continue
		}
		if s.validator != nil {
			if err := s.validator.ValidateTemplate(t).Err(); err != nil {
				errs = append(errs, fmt.Errorf("template %s: %w", t.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
