package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/sheetscan/internal/models"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/progress"
)

type statusRecorder struct {
	Queue
	saved []TaskStatus
	err   error
}

func (r *statusRecorder) SaveStatus(_ context.Context, s *TaskStatus) error {
	r.saved = append(r.saved, *s)
	return r.err
}

func TestProgressSinkSavesRunningStatus(t *testing.T) {
	rec := &statusRecorder{}
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	sink := ProgressSink(context.Background(), rec, TaskStatus{TaskID: "t1", FileName: "a.png", CreatedAt: created}, logger.NewTestLogger())

	sink.Report(40, progress.StageRecognizing)
	sink.Report(70, progress.StageRecognized)

	require.Len(t, rec.saved, 2)
	assert.Equal(t, TaskStatus{
		TaskID:    "t1",
		Status:    models.StatusRunning,
		Progress:  40,
		Stage:     string(progress.StageRecognizing),
		FileName:  "a.png",
		CreatedAt: created,
	}, rec.saved[0])
	assert.Equal(t, 70, rec.saved[1].Progress)
}

func TestProgressSinkLogsSaveFailure(t *testing.T) {
	log := logger.NewTestLogger()
	rec := &statusRecorder{err: errors.New("redis down")}

	ProgressSink(context.Background(), rec, TaskStatus{TaskID: "t1"}, log).Report(20, progress.StagePreparing)

	assert.True(t, log.Has("WARN", "Failed to save task progress"))
}

func TestConvertAsynqStatus(t *testing.T) {
	done := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		state asynq.TaskState
		want  models.ProcessingStatus
	}{
		{asynq.TaskStatePending, models.StatusPending},
		{asynq.TaskStateActive, models.StatusRunning},
		{asynq.TaskStateCompleted, models.StatusCompleted},
		{asynq.TaskStateRetry, models.StatusFailed},
		{asynq.TaskStateArchived, models.StatusFailed},
	}
	for _, tt := range tests {
		got := convertAsynqStatus(&asynq.TaskInfo{ID: "x", State: tt.state, CompletedAt: done, LastErr: "boom"})
		assert.Equal(t, tt.want, got.Status, tt.state.String())
	}

	completed := convertAsynqStatus(&asynq.TaskInfo{ID: "x", State: asynq.TaskStateCompleted, CompletedAt: done})
	assert.Equal(t, 100, completed.Progress)
	assert.Equal(t, done, completed.FinishedAt)
}

func TestQueueFor(t *testing.T) {
	assert.Equal(t, "critical", queueFor(1))
	assert.Equal(t, "default", queueFor(2))
	assert.Equal(t, "low", queueFor(0))
}
