package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinzhu/copier"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// RecurrenceJob materializes concrete posts from recurring templates. Each template
// fires at most once per local calendar day, keyed by its last_fired_on column.
type RecurrenceJob struct {
	pr        repository.PostRepository
	scheduler Armer
	offset    time.Duration
	log       *slog.Logger
	now       func() time.Time
}

func NewRecurrenceJob(pr repository.PostRepository, scheduler Armer, cfg config.Scheduler, log *slog.Logger) *RecurrenceJob {
	return &RecurrenceJob{
		pr:        pr,
		scheduler: scheduler,
		offset:    cfg.RecurringDelay,
		log:       log.With("component", "recurrence"),
		now:       time.Now,
	}
}

func (j *RecurrenceJob) Run(ctx context.Context) error {
	now := j.now()

	templates, err := j.pr.FindActiveRecurring(ctx, now)
	if err != nil {
		return fmt.Errorf("loading recurring templates: %w", err)
	}

	created := 0
	for _, tpl := range templates {
		if !tpl.Due(now) {
			continue
		}
		if err := j.fire(ctx, tpl, now); err != nil {
			j.log.Error("failed to fire template", "template_id", tpl.ID, "error", err)
			continue
		}
		created++
	}

	j.log.Info("recurrence pass finished", "templates", len(templates), "created", created)
	return nil
}

// fire claims the day before creating the post: a failed save loses one firing
// rather than risking two.
func (j *RecurrenceJob) fire(ctx context.Context, tpl *models.RecurringTemplate, now time.Time) error {
	day := tpl.LocalDay(now)
	claimed, err := j.pr.ClaimTemplateDay(ctx, tpl.ID, day)
	if err != nil {
		return fmt.Errorf("claiming %s: %w", day, err)
	}
	if !claimed {
		return nil
	}

	post, err := materialize(tpl, now.Add(j.offset))
	if err != nil {
		return err
	}
	if err := models.Validate(post); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidPost, err)
	}
	if err := j.pr.Save(ctx, post); err != nil {
		return fmt.Errorf("saving post: %w", err)
	}

	for _, unit := range post.Units {
		if err := j.scheduler.Arm(ctx, unit); err != nil {
			j.log.Error("failed to arm unit", "post_id", post.ID, "unit_id", unit.ID, "error", err)
		}
	}
	j.log.Info("recurring post created", "template_id", tpl.ID, "post_id", post.ID, "day", day, "units", len(post.Units))
	return nil
}

// materialize builds a plain post owning its own copy of the template content.
func materialize(tpl *models.RecurringTemplate, fireAt time.Time) (*models.Post, error) {
	postID, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		ID:         postID,
		UserID:     tpl.UserID,
		TemplateID: tpl.ID,
	}
	if err := copier.CopyWithOption(&post.Content, &tpl.Content, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("copying template content: %w", err)
	}

	for _, target := range tpl.Targets {
		unitID, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		unit := models.DeliveryUnit{
			ID:            unitID,
			PostID:        postID,
			Platform:      target.Platform,
			AccountID:     target.AccountID,
			Status:        models.UnitStatusScheduled,
			ScheduledTime: &fireAt,
		}
		if err := copier.CopyWithOption(&unit.Settings, &target.Settings, copier.Option{DeepCopy: true}); err != nil {
			return nil, fmt.Errorf("copying target settings: %w", err)
		}
		post.Units = append(post.Units, unit)
	}
	return post, nil
}
