package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// RedisRecorder implements Recorder backed by Redis.
// Each execution is a header hash plus a list of result documents; a sorted
// set scored by start time indexes them for listing.
type RedisRecorder struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds RedisRecorder settings.
type RedisConfig struct {
	// Prefix for all keys (default: "executions")
	Prefix string

	// TTL for execution data (0 = no expiry)
	TTL time.Duration
}

// NewRedisRecorder creates a recorder using an existing Redis client.
func NewRedisRecorder(client *redis.Client, cfg *RedisConfig) *RedisRecorder {
	if cfg == nil {
		cfg = &RedisConfig{}
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "executions"
	}
	return &RedisRecorder{client: client, prefix: prefix, ttl: cfg.TTL}
}

// Key helpers
func (r *RedisRecorder) keyMeta(id string) string    { return fmt.Sprintf("%s:%s:meta", r.prefix, id) }
func (r *RedisRecorder) keyResults(id string) string { return fmt.Sprintf("%s:%s:results", r.prefix, id) }
func (r *RedisRecorder) keyIndex() string            { return r.prefix + ":index" }

func (r *RedisRecorder) Save(ctx context.Context, exec *types.PipelineExecution) error {
	header := *exec
	header.WorkerResults = nil
	headerJSON, err := json.Marshal(&header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}

	results := make([]any, 0, len(exec.WorkerResults))
	for _, res := range exec.WorkerResults {
		b, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("marshal result for step %d: %w", res.StepOrder, err)
		}
		results = append(results, string(b))
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.keyMeta(exec.ID), map[string]any{
		"id":            exec.ID,
		"topic":         exec.Topic,
		"template_name": exec.TemplateName,
		"status":        string(exec.Status),
		"started_at":    exec.StartedAt.Format(time.RFC3339Nano),
		"header":        string(headerJSON),
	})
	pipe.Del(ctx, r.keyResults(exec.ID))
	if len(results) > 0 {
		pipe.RPush(ctx, r.keyResults(exec.ID), results...)
	}
	pipe.ZAdd(ctx, r.keyIndex(), redis.Z{
		Score:  float64(exec.StartedAt.UnixMilli()),
		Member: exec.ID,
	})
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyMeta(exec.ID), r.ttl)
		pipe.Expire(ctx, r.keyResults(exec.ID), r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save execution: %w", err)
	}
	return nil
}

func (r *RedisRecorder) Get(ctx context.Context, id string) (*types.PipelineExecution, error) {
	pipe := r.client.Pipeline()
	headerCmd := pipe.HGet(ctx, r.keyMeta(id), "header")
	resultsCmd := pipe.LRange(ctx, r.keyResults(id), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get execution: %w", err)
	}

	headerJSON, err := headerCmd.Result()
	if errors.Is(err, redis.Nil) || headerJSON == "" {
		return nil, ErrExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution header: %w", err)
	}

	var exec types.PipelineExecution
	if err := json.Unmarshal([]byte(headerJSON), &exec); err != nil {
		return nil, fmt.Errorf("unmarshal header: %w", err)
	}

	raw, err := resultsCmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get execution results: %w", err)
	}
	exec.WorkerResults = make([]*types.WorkerResult, 0, len(raw))
	for _, item := range raw {
		var res types.WorkerResult
		if err := json.Unmarshal([]byte(item), &res); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		exec.WorkerResults = append(exec.WorkerResults, &res)
	}

	return &exec, nil
}

func (r *RedisRecorder) List(ctx context.Context, limit int) ([]types.ExecutionSummary, error) {
	fetch := func(start, stop int64) ([]string, error) {
		ids, err := r.client.ZRevRange(ctx, r.keyIndex(), start, stop).Result()
		if err != nil {
			return nil, fmt.Errorf("list executions: %w", err)
		}
		return ids, nil
	}
	load := func(id string) (*types.ExecutionSummary, error) {
		headerJSON, err := r.client.HGet(ctx, r.keyMeta(id), "header").Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get execution header: %w", err)
		}
		var exec types.PipelineExecution
		if err := json.Unmarshal([]byte(headerJSON), &exec); err != nil {
			return nil, fmt.Errorf("unmarshal header: %w", err)
		}
		sum := exec.Summary()
		return &sum, nil
	}

	list, stale, err := collectLive(limit, listPageSize, fetch, load)
	if len(stale) > 0 {
		// Expired headers leave their index entries behind
		members := make([]any, len(stale))
		for i, id := range stale {
			members[i] = id
		}
		r.client.ZRem(ctx, r.keyIndex(), members...)
	}
	if err != nil {
		return nil, err
	}
	return list, nil
}

const listPageSize = 100

// collectLive pages through index ids newest first until limit live
// summaries are found (limit <= 0 = all). load returns nil for an expired
// entry; those ids come back as stale.
func collectLive(
	limit, pageSize int,
	fetch func(start, stop int64) ([]string, error),
	load func(id string) (*types.ExecutionSummary, error),
) ([]types.ExecutionSummary, []string, error) {
	if limit > 0 && limit < pageSize {
		pageSize = limit
	}

	list := []types.ExecutionSummary{}
	var stale []string
	for offset := int64(0); ; {
		ids, err := fetch(offset, offset+int64(pageSize)-1)
		if err != nil {
			return nil, stale, err
		}
		for _, id := range ids {
			sum, err := load(id)
			if err != nil {
				return nil, stale, err
			}
			if sum == nil {
				stale = append(stale, id)
				continue
			}
			list = append(list, *sum)
			if limit > 0 && len(list) == limit {
				return list, stale, nil
			}
		}
		if len(ids) < pageSize {
			return list, stale, nil
		}
		offset += int64(len(ids))
	}
}

func (r *RedisRecorder) AdapterInfo(ctx context.Context) (map[string]any, error) {
	pingStart := time.Now()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return map[string]any{
			"adapter": "redis",
			"healthy": false,
			"error":   err.Error(),
		}, nil
	}
	pingLatency := time.Since(pingStart)

	count, _ := r.client.ZCard(ctx, r.keyIndex()).Result()
	poolStats := r.client.PoolStats()

	return map[string]any{
		"adapter": "redis",
		"healthy": true,
		"details": map[string]any{
			"prefix":          r.prefix,
			"ttl_hours":       r.ttl.Hours(),
			"ping_latency":    pingLatency.String(),
			"execution_count": count,
			"pool": map[string]any{
				"hits":       poolStats.Hits,
				"misses":     poolStats.Misses,
				"timeouts":   poolStats.Timeouts,
				"total_conn": poolStats.TotalConns,
				"idle_conn":  poolStats.IdleConns,
			},
		},
	}, nil
}

// Close is a no-op; the shared client is closed by its owner.
func (r *RedisRecorder) Close() error {
	return nil
}

var _ Recorder = (*RedisRecorder)(nil)
