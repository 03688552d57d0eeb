package jobs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewIdempotencyCleanupTask(t *testing.T) {
	task, err := NewIdempotencyCleanupTask(72 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, TaskIdempotencyCleanup, task.Type())

	var payload IdempotencyCleanupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, 72, payload.RetentionHours)
}

func TestNewAgingWarmupTask(t *testing.T) {
	task := NewAgingWarmupTask()
	require.Equal(t, TaskAgingWarmup, task.Type())
	require.Empty(t, task.Payload())
}
