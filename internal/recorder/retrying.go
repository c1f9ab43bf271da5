package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/archive"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/metrics"
	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// Retrying wraps a Recorder and retries a failed Save once. When the retry
// also fails, the whole execution is logged as JSON so it can be restored by
// hand, and the error is returned.
type Retrying struct {
	Recorder
	backoff time.Duration
	logger  *slog.Logger
}

// NewRetrying wraps inner with a single retry after backoff.
func NewRetrying(inner Recorder, backoff time.Duration, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{Recorder: inner, backoff: backoff, logger: logger}
}

func (r *Retrying) Save(ctx context.Context, exec *types.PipelineExecution) error {
	err := r.Recorder.Save(ctx, exec)
	if err == nil {
		metrics.RecorderOperations.WithLabelValues("save", "success").Inc()
		return nil
	}

	metrics.RecorderOperations.WithLabelValues("save", "retry").Inc()
	r.logger.Warn("save execution failed, retrying",
		slog.String("execution_id", exec.ID),
		slog.Any("error", err),
	)

	if r.backoff > 0 {
		t := time.NewTimer(r.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}

	// The retry must run even if the caller's context ended while waiting.
	if err = r.Recorder.Save(context.WithoutCancel(ctx), exec); err == nil {
		metrics.RecorderOperations.WithLabelValues("save", "success").Inc()
		return nil
	}

	metrics.RecorderOperations.WithLabelValues("save", "error").Inc()
	dump, merr := json.Marshal(exec)
	if merr != nil {
		dump = []byte(fmt.Sprintf("%+v", exec))
	}
	r.logger.Error("execution not persisted",
		slog.String("execution_id", exec.ID),
		slog.Any("error", err),
		slog.String("execution", string(dump)),
	)
	return fmt.Errorf("save execution %s: %w", exec.ID, err)
}

// NewDurable retries failed saves on inner once and archives each execution
// a single time, after the retry has settled.
func NewDurable(inner Recorder, a *archive.Archive, backoff time.Duration, logger *slog.Logger) Recorder {
	return NewArchiving(NewRetrying(inner, backoff, logger), a, logger)
}

// Archiving wraps a Recorder and copies every saved execution to an archive.
// Get falls back to the archive when the primary store no longer has the
// execution (e.g. after its TTL expired).
type Archiving struct {
	Recorder
	archive *archive.Archive
	logger  *slog.Logger
}

// NewArchiving wraps inner. A nil archive returns inner unchanged.
func NewArchiving(inner Recorder, a *archive.Archive, logger *slog.Logger) Recorder {
	if a == nil {
		return inner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiving{Recorder: inner, archive: a, logger: logger}
}

func (a *Archiving) Save(ctx context.Context, exec *types.PipelineExecution) error {
	err := a.Recorder.Save(ctx, exec)

	ref, aerr := a.archive.StoreExecution(ctx, exec)
	if aerr != nil {
		metrics.RecorderOperations.WithLabelValues("archive", "error").Inc()
		a.logger.Warn("archive execution failed",
			slog.String("execution_id", exec.ID),
			slog.Any("error", aerr),
		)
	} else {
		metrics.RecorderOperations.WithLabelValues("archive", "success").Inc()
		a.logger.Debug("execution archived",
			slog.String("execution_id", exec.ID),
			slog.String("uri", ref.URI),
		)
	}

	return err
}

func (a *Archiving) Get(ctx context.Context, id string) (*types.PipelineExecution, error) {
	exec, err := a.Recorder.Get(ctx, id)
	if !errors.Is(err, ErrExecutionNotFound) {
		return exec, err
	}

	exec, aerr := a.archive.LoadExecution(ctx, id)
	if errors.Is(aerr, archive.ErrNotFound) {
		return nil, ErrExecutionNotFound
	}
	if aerr != nil {
		return nil, fmt.Errorf("load archived execution: %w", aerr)
	}
	return exec, nil
}

func (a *Archiving) AdapterInfo(ctx context.Context) (map[string]any, error) {
	info, err := a.Recorder.AdapterInfo(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(info)+1)
	for k, v := range info {
		out[k] = v
	}
	out["archive"] = a.archive.BackendName()
	return out, nil
}
