package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// maxDeliveryRetries bounds asynq's own crash retries of a task, separate from
// the retry job's re-arming of failed units.
const maxDeliveryRetries = 3

// AsynqBackend stores pending units as delayed asynq tasks whose task id is the unit's
// job key, so Redis rejects a second pending task for the same unit.
type AsynqBackend struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	log       *slog.Logger
}

func NewAsynqBackend(opt asynq.RedisConnOpt, log *slog.Logger) *AsynqBackend {
	return &AsynqBackend{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		log:       log.With("component", "asynq"),
	}
}

func (b *AsynqBackend) Enqueue(ctx context.Context, key string, payload PublishPayload, delay time.Duration) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishUnit, taskPayload,
		asynq.TaskID(key),
		asynq.Queue(QueueName),
		asynq.MaxRetry(maxDeliveryRetries),
	)

	info, err := b.client.EnqueueContext(ctx, task, asynq.ProcessIn(delay))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return fmt.Errorf("job %s is still running: %w", key, err)
		}
		return err
	}

	b.log.Info("task scheduled", "key", key, "post_id", payload.PostID, "unit_id", payload.UnitID, "process_at", info.NextProcessAt)
	return nil
}

// Remove deletes a pending task. A task that is already running cannot be stopped
// and is left to finish.
func (b *AsynqBackend) Remove(_ context.Context, key string) error {
	info, err := b.inspector.GetTaskInfo(QueueName, key)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil
		}
		return err
	}
	if info.State == asynq.TaskStateActive {
		b.log.Info("task already running, cancel has no effect", "key", key)
		return nil
	}

	if err := b.inspector.DeleteTask(QueueName, key); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return err
	}
	return nil
}

func (b *AsynqBackend) Close() error {
	return errors.Join(b.client.Close(), b.inspector.Close())
}
