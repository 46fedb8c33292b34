package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

// Armer hands a scheduled unit to the scheduler.
type Armer interface {
	Arm(ctx context.Context, unit models.DeliveryUnit) error
}

// RetryJob re-arms recently failed units whose failure was transient. attemptCount is
// already incremented by the failed attempt itself, so a unit stops at maxAttempts
// publish attempts in total.
type RetryJob struct {
	pr          repository.PostRepository
	scheduler   Armer
	window      time.Duration
	delay       time.Duration
	maxAttempts int
	log         *slog.Logger
	now         func() time.Time
}

func NewRetryJob(pr repository.PostRepository, scheduler Armer, cfg config.Scheduler, log *slog.Logger) *RetryJob {
	return &RetryJob{
		pr:          pr,
		scheduler:   scheduler,
		window:      cfg.RetryWindow,
		delay:       cfg.RetryDelay,
		maxAttempts: cfg.MaxAttempts,
		log:         log.With("component", "retry"),
		now:         time.Now,
	}
}

func (j *RetryJob) Run(ctx context.Context) error {
	now := j.now()

	units, err := j.pr.FindFailedWithin(ctx, now.Add(-j.window))
	if err != nil {
		return fmt.Errorf("loading failed units: %w", err)
	}

	rearmed := 0
	for _, unit := range units {
		log := j.log.With("post_id", unit.PostID, "unit_id", unit.ID, "platform", unit.Platform)

		if !unit.ErrorKind.Retryable() {
			continue
		}
		if unit.AttemptCount >= j.maxAttempts {
			log.Debug("attempts exhausted", "attempts", unit.AttemptCount)
			continue
		}

		fireAt := now.Add(j.delay)
		ok, err := j.pr.Rearm(ctx, unit.ID, fireAt)
		if err != nil {
			log.Error("failed to re-arm unit", "error", err)
			continue
		}
		if !ok {
			// moved on since the query, e.g. rescheduled by hand
			continue
		}

		unit.Status = models.UnitStatusScheduled
		unit.ScheduledTime = &fireAt
		if err := j.scheduler.Arm(ctx, unit); err != nil {
			log.Error("failed to arm retried unit", "error", err)
		}
		rearmed++
		log.Info("unit re-armed", "attempts", unit.AttemptCount, "fire_at", fireAt)
	}

	j.log.Info("retry pass finished", "failed", len(units), "rearmed", rearmed)
	return nil
}
