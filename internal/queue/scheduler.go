package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

// Scheduler turns fire times into pending jobs. It holds no unit state of its own:
// the repository decides what is scheduled, the backend only holds timing handles.
type Scheduler struct {
	posts   repository.PostRepository
	backend Backend
	pool    *Pool
	log     *slog.Logger
	now     func() time.Time
}

func NewScheduler(posts repository.PostRepository, backend Backend, pool *Pool, log *slog.Logger) *Scheduler {
	return &Scheduler{
		posts:   posts,
		backend: backend,
		pool:    pool,
		log:     log.With("component", "scheduler"),
		now:     time.Now,
	}
}

// Arm replaces any pending job for the unit. A unit that is already due runs now on
// the pool instead of waiting on the backend.
func (s *Scheduler) Arm(ctx context.Context, unit models.DeliveryUnit) error {
	key := unit.JobKey()
	if err := s.backend.Remove(ctx, key); err != nil {
		return fmt.Errorf("replacing job %s: %w", key, err)
	}

	payload := PublishPayload{PostID: unit.PostID, UnitID: unit.ID}

	var delay time.Duration
	if unit.ScheduledTime != nil {
		delay = unit.ScheduledTime.Sub(s.now())
	}
	if delay <= 0 {
		s.log.Info("unit due, firing now", "key", key, "unit_id", unit.ID)
		s.pool.Submit(payload)
		return nil
	}

	if err := s.backend.Enqueue(ctx, key, payload, delay); err != nil {
		return fmt.Errorf("arming job %s: %w", key, err)
	}
	s.log.Debug("unit armed", "key", key, "unit_id", unit.ID, "delay", delay)
	return nil
}

func (s *Scheduler) Cancel(ctx context.Context, postID string, platform models.Platform) error {
	key := models.JobKey(postID, platform)
	if err := s.backend.Remove(ctx, key); err != nil {
		return fmt.Errorf("cancelling job %s: %w", key, err)
	}
	s.log.Debug("job cancelled", "key", key)
	return nil
}

// RecoverOnStartup re-arms every scheduled unit. Overdue units fire immediately.
// One unit failing to arm does not stop the others.
func (s *Scheduler) RecoverOnStartup(ctx context.Context) (int, error) {
	units, err := s.posts.FindScheduled(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading scheduled units: %w", err)
	}

	armed := 0
	for _, unit := range units {
		if err := s.Arm(ctx, unit); err != nil {
			s.log.Error("failed to recover unit", "post_id", unit.PostID, "unit_id", unit.ID, "error", err)
			continue
		}
		armed++
	}

	s.log.Info("recovered scheduled units", "found", len(units), "armed", armed)
	return armed, nil
}

// Sweep fires scheduled units that are overdue by more than grace. It bounds the
// delay of any unit whose pending job was lost; a unit fired twice is claimed once.
func (s *Scheduler) Sweep(ctx context.Context, grace time.Duration) (int, error) {
	units, err := s.posts.FindDueScheduled(ctx, s.now().Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("loading due units: %w", err)
	}

	for _, unit := range units {
		s.log.Info("firing overdue unit", "post_id", unit.PostID, "unit_id", unit.ID, "scheduled_time", unit.ScheduledTime)
		s.pool.Submit(PublishPayload{PostID: unit.PostID, UnitID: unit.ID})
	}
	return len(units), nil
}
