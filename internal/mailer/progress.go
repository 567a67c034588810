package mailer

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Cobiozo/essential-gem-clone-sub008/internal/pkg/logger"
)

// RedisProgress publishes per-batch counters to Redis so the UI can poll
// an in-flight batch. Keys expire on their own; this is observability, not
// delivery state.
type RedisProgress struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProgress creates a reporter with a 24h key TTL.
func NewRedisProgress(client *redis.Client) *RedisProgress {
	return &RedisProgress{client: client, ttl: 24 * time.Hour}
}

func progressKey(batchID uuid.UUID) string {
	return "mailer:batch:" + batchID.String()
}

// Report stores the current counters. Failures are logged and swallowed;
// progress reporting must never affect the batch.
func (p *RedisProgress) Report(ctx context.Context, batchID uuid.UUID, processed, sent, total int) {
	key := progressKey(batchID)
	pipe := p.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"processed":  processed,
		"sent":       sent,
		"total":      total,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
	pipe.Expire(ctx, key, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("batch progress write failed", "batch_id", batchID.String(), "error", err.Error())
	}
}

// ProgressSnapshot is the polled view of a running or recent batch.
type ProgressSnapshot struct {
	Processed int    `json:"processed"`
	Sent      int    `json:"sent"`
	Total     int    `json:"total"`
	UpdatedAt string `json:"updated_at"`
}

// Snapshot returns the stored counters for a batch, or nil when the batch
// is unknown or expired.
func (p *RedisProgress) Snapshot(ctx context.Context, batchID uuid.UUID) (*ProgressSnapshot, error) {
	vals, err := p.client.HGetAll(ctx, progressKey(batchID)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}

	snap := &ProgressSnapshot{UpdatedAt: vals["updated_at"]}
	snap.Processed, _ = strconv.Atoi(vals["processed"])
	snap.Sent, _ = strconv.Atoi(vals["sent"])
	snap.Total, _ = strconv.Atoi(vals["total"])
	return snap, nil
}
