package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecutor struct {
	calls []PublishPayload
	err   error
}

func (e *recordingExecutor) Execute(ctx context.Context, postID, unitID string) (models.PublishResult, error) {
	e.calls = append(e.calls, PublishPayload{PostID: postID, UnitID: unitID})
	return models.PublishResult{PostID: postID, UnitID: unitID, Status: models.UnitStatusPublished}, e.err
}

func newTestWorker(exec Executor) *Worker {
	return NewWorker(exec, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandlePublishUnitTask(t *testing.T) {
	exec := &recordingExecutor{}
	w := newTestWorker(exec)

	body, err := json.Marshal(PublishPayload{PostID: "p1", UnitID: "u1"})
	require.NoError(t, err)

	require.NoError(t, w.HandlePublishUnitTask(context.Background(), asynq.NewTask(TaskTypePublishUnit, body)))
	assert.Equal(t, []PublishPayload{{PostID: "p1", UnitID: "u1"}}, exec.calls)
}

func TestHandlePublishUnitTaskBadPayloadSkipsRetry(t *testing.T) {
	exec := &recordingExecutor{}
	w := newTestWorker(exec)

	err := w.HandlePublishUnitTask(context.Background(), asynq.NewTask(TaskTypePublishUnit, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, exec.calls)
}

func TestHandlePublishUnitTaskRepositoryErrorRetries(t *testing.T) {
	exec := &recordingExecutor{err: errors.New("connection refused")}
	w := newTestWorker(exec)

	body, _ := json.Marshal(PublishPayload{PostID: "p1", UnitID: "u1"})
	err := w.HandlePublishUnitTask(context.Background(), asynq.NewTask(TaskTypePublishUnit, body))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestRetryDelayIsExponential(t *testing.T) {
	assert.Equal(t, 5*time.Second, retryDelay(0, nil, nil))
	assert.Equal(t, 10*time.Second, retryDelay(1, nil, nil))
	assert.Equal(t, 20*time.Second, retryDelay(2, nil, nil))
}

func TestPoolShutdownWaitsForRunningUnits(t *testing.T) {
	exec := &recordingExecutor{}
	pool := NewPool(exec, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))

	pool.Submit(PublishPayload{PostID: "p1", UnitID: "u1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
	assert.Len(t, exec.calls, 1)
}
