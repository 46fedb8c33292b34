package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
)

const retryBaseDelay = 5 * time.Second

type Worker struct {
	executor Executor
	log      *slog.Logger
}

func NewWorker(executor Executor, log *slog.Logger) *Worker {
	return &Worker{
		executor: executor,
		log:      log.With("component", "worker"),
	}
}

// HandlePublishUnitTask returns an error only when the executor could not reach the
// repository, which makes asynq retry the task with backoff.
func (w *Worker) HandlePublishUnitTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decoding payload: %v: %w", err, asynq.SkipRetry)
	}

	result, err := w.executor.Execute(ctx, payload.PostID, payload.UnitID)
	if err != nil {
		return err
	}

	w.log.Info("task processed", "post_id", payload.PostID, "unit_id", payload.UnitID,
		"status", result.Status, "skipped", result.Skipped)
	return nil
}

func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePublishUnit, w.HandlePublishUnitTask)
	return mux
}

func NewServer(opt asynq.RedisConnOpt, concurrency int, log *slog.Logger) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency:    concurrency,
		Queues:         map[string]int{QueueName: 1},
		RetryDelayFunc: retryDelay,
		Logger:         &asynqLogger{log: log.With("component", "asynq-server")},
	})
}

// retryDelay is 5s, 10s, 20s for the first, second and third retry.
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 0 {
		n = 0
	}
	return retryBaseDelay * time.Duration(1<<uint(n))
}

type asynqLogger struct {
	log *slog.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}
