package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/recorder"
	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// ExecutionRecorder implements recorder.Recorder on the executions and
// worker_results tables.
type ExecutionRecorder struct {
	*DB
}

// Executions returns the execution recorder view of the database.
func (d *DB) Executions() *ExecutionRecorder {
	return &ExecutionRecorder{DB: d}
}

// Save writes the header and replaces the stored results in one transaction.
func (r *ExecutionRecorder) Save(ctx context.Context, exec *types.PipelineExecution) error {
	header := *exec
	header.WorkerResults = nil
	headerJSON, err := json.Marshal(&header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	_, err = r.exec(ctx, tx, `
		INSERT INTO executions (id, template_name, topic, status, started_at, header)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			header = excluded.header`,
		exec.ID, exec.TemplateName, exec.Topic, string(exec.Status), exec.StartedAt.UnixMilli(), string(headerJSON))
	if err != nil {
		return fmt.Errorf("save execution %s: %w", exec.ID, err)
	}

	if _, err := r.exec(ctx, tx, "DELETE FROM worker_results WHERE execution_id = ?", exec.ID); err != nil {
		return fmt.Errorf("clear results %s: %w", exec.ID, err)
	}
	for i, res := range exec.WorkerResults {
		b, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("marshal result for step %d: %w", res.StepOrder, err)
		}
		if _, err := r.exec(ctx, tx,
			"INSERT INTO worker_results (execution_id, position, data) VALUES (?, ?, ?)",
			exec.ID, i, string(b)); err != nil {
			return fmt.Errorf("save result %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit execution %s: %w", exec.ID, err)
	}
	return nil
}

// Get returns the header with its results in recorded order.
func (r *ExecutionRecorder) Get(ctx context.Context, id string) (*types.PipelineExecution, error) {
	var headerJSON string
	err := r.db.QueryRowContext(ctx, r.rebind("SELECT header FROM executions WHERE id = ?"), id).Scan(&headerJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recorder.ErrExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", id, err)
	}

	var exec types.PipelineExecution
	if err := json.Unmarshal([]byte(headerJSON), &exec); err != nil {
		return nil, fmt.Errorf("unmarshal header: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		r.rebind("SELECT data FROM worker_results WHERE execution_id = ? ORDER BY position"), id)
	if err != nil {
		return nil, fmt.Errorf("get results %s: %w", id, err)
	}
	defer rows.Close()

	exec.WorkerResults = []*types.WorkerResult{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var res types.WorkerResult
		if err := json.Unmarshal([]byte(data), &res); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		exec.WorkerResults = append(exec.WorkerResults, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return &exec, nil
}

// List returns execution summaries, newest first.
func (r *ExecutionRecorder) List(ctx context.Context, limit int) ([]types.ExecutionSummary, error) {
	query := "SELECT header FROM executions ORDER BY started_at DESC, id DESC" + r.limitClause(limit, 0)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	list := []types.ExecutionSummary{}
	for rows.Next() {
		var headerJSON string
		if err := rows.Scan(&headerJSON); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		var exec types.PipelineExecution
		if err := json.Unmarshal([]byte(headerJSON), &exec); err != nil {
			return nil, fmt.Errorf("unmarshal header: %w", err)
		}
		list = append(list, exec.Summary())
	}
	return list, rows.Err()
}

// AdapterInfo reports connectivity and pool statistics.
func (r *ExecutionRecorder) AdapterInfo(ctx context.Context) (map[string]any, error) {
	pingStart := time.Now()
	if err := r.db.PingContext(ctx); err != nil {
		return map[string]any{
			"adapter": "sql",
			"healthy": false,
			"error":   err.Error(),
		}, nil
	}
	pingLatency := time.Since(pingStart)

	var count int64
	r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions").Scan(&count)
	version, _ := r.SchemaVersion(ctx)
	stats := r.db.Stats()

	return map[string]any{
		"adapter": "sql",
		"healthy": true,
		"details": map[string]any{
			"driver":          r.driver,
			"schema_version":  version,
			"ping_latency":    pingLatency.String(),
			"execution_count": count,
			"pool": map[string]any{
				"open":   stats.OpenConnections,
				"in_use": stats.InUse,
				"idle":   stats.Idle,
			},
		},
	}, nil
}

// Close is a no-op; the owner of the DB closes it.
func (r *ExecutionRecorder) Close() error {
	return nil
}

var _ recorder.Recorder = (*ExecutionRecorder)(nil)
