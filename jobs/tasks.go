// Package jobs hosts the asynq background worker for housekeeping tasks.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/listahan/listahan/internal/aging"
	"github.com/listahan/listahan/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup prunes idempotency keys past retention.
	TaskIdempotencyCleanup = "ledger:idempotency-cleanup"
	// TaskAgingWarmup precomputes the aging report cache.
	TaskAgingWarmup = "aging:warmup"
)

// IdempotencyCleanupPayload sets the retention window for key pruning.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// NewAgingWarmupTask constructs the warmup task.
func NewAgingWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskAgingWarmup, nil)
}

// IdempotencyCleanupJob prunes processed mutation keys. Keys only need
// to outlive the longest plausible client retry window.
type IdempotencyCleanupJob struct {
	Store  *shared.IdempotencyStore
	Logger *slog.Logger
}

// Handle processes cleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := time.Duration(payload.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if err := j.Store.Cleanup(ctx, retention); err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("idempotency keys pruned", slog.Duration("retention", retention))
	}
	return nil
}

// AgingWarmupJob precomputes the aging report so the first request
// after a cache bump does not pay the rebuild cost.
type AgingWarmupJob struct {
	Aging  *aging.Service
	Logger *slog.Logger
}

// Handle processes warmup tasks.
func (j *AgingWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Aging == nil {
		return errors.New("aging warmup: handler not configured")
	}
	if err := j.Aging.Warm(ctx); err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("aging report cache warmed")
	}
	return nil
}
