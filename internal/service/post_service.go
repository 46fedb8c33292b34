package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// UnitScheduler owns the timing handles of delivery units.
type UnitScheduler interface {
	Arm(ctx context.Context, unit models.DeliveryUnit) error
	Cancel(ctx context.Context, postID string, platform models.Platform) error
}

type Executor interface {
	Execute(ctx context.Context, postID, unitID string) (models.PublishResult, error)
}

type PostService interface {
	Create(ctx context.Context, userID string, pc *transfer.PostCreation) (*models.Post, error)
	Get(ctx context.Context, userID, postID string) (*models.Post, error)
	UpdateContent(ctx context.Context, userID, postID string, content models.Content) (*models.Post, error)
	ScheduleUnit(ctx context.Context, userID, postID, unitID string, at time.Time) (*models.DeliveryUnit, error)
	CancelUnit(ctx context.Context, userID, postID string, platform models.Platform) error
	PublishNow(ctx context.Context, userID, postID, unitID string) (models.PublishResult, error)
	Remove(ctx context.Context, userID, postID string) error
}

type postService struct {
	pr        repository.PostRepository
	scheduler UnitScheduler
	executor  Executor
	now       func() time.Time
}

func NewPostService(pr repository.PostRepository, scheduler UnitScheduler, executor Executor) PostService {
	return &postService{
		pr:        pr,
		scheduler: scheduler,
		executor:  executor,
		now:       time.Now,
	}
}

func (s *postService) Create(ctx context.Context, userID string, pc *transfer.PostCreation) (*models.Post, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return nil, err
	}

	postID, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	post := &models.Post{
		ID:      postID,
		UserID:  userID,
		Content: pc.Content,
	}

	seen := make(map[models.Platform]bool, len(pc.Units))
	for _, uc := range pc.Units {
		if seen[uc.Platform] {
			return nil, fmt.Errorf("%w: %s", models.ErrDuplicatePlatform, uc.Platform)
		}
		seen[uc.Platform] = true

		unitID, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		status := models.UnitStatusDraft
		if uc.ScheduledTime != nil {
			status = models.UnitStatusScheduled
		}
		post.Units = append(post.Units, models.DeliveryUnit{
			ID:            unitID,
			PostID:        postID,
			Platform:      uc.Platform,
			AccountID:     uc.AccountID,
			Status:        status,
			ScheduledTime: uc.ScheduledTime,
			Settings:      uc.Settings,
		})
	}

	if err := models.Validate(post); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPost, err)
	}

	if err := s.pr.Save(ctx, post); err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}

	for _, unit := range post.Units {
		if unit.Status != models.UnitStatusScheduled {
			continue
		}
		// The unit is persisted as scheduled, so the due sweep still fires it if arming fails.
		if err := s.scheduler.Arm(ctx, unit); err != nil {
			slog.Error("failed to arm delivery unit", "post_id", post.ID, "unit_id", unit.ID, "error", err)
		}
	}

	return post, nil
}

// load returns the caller's live post. Posts of other users are reported as missing.
func (s *postService) load(ctx context.Context, userID, postID string) (*models.Post, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, models.ErrPostNotFound
	}
	if post.Deleted() {
		return nil, models.ErrPostDeleted
	}
	return post, nil
}

func (s *postService) Get(ctx context.Context, userID, postID string) (*models.Post, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, models.ErrPostNotFound
	}
	return post, nil
}

// UpdateContent edits a post's content. Once any unit is published the content is frozen.
func (s *postService) UpdateContent(ctx context.Context, userID, postID string, content models.Content) (*models.Post, error) {
	post, err := s.load(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if post.HasPublished() {
		return nil, models.ErrUnitPublished
	}

	post.Content = content
	if err := models.Validate(post); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPost, err)
	}

	// Only the content is written, so units that moved since load keep their status.
	updated, err := s.pr.UpdateContent(ctx, postID, content)
	if err != nil {
		return nil, fmt.Errorf("error updating post: %w", err)
	}
	if !updated {
		if _, err := s.load(ctx, userID, postID); err != nil {
			return nil, err
		}
		return nil, models.ErrUnitPublished
	}
	return s.pr.GetByID(ctx, postID)
}

func (s *postService) ScheduleUnit(ctx context.Context, userID, postID, unitID string, at time.Time) (*models.DeliveryUnit, error) {
	if at.IsZero() {
		return nil, models.ErrNoScheduledTime
	}

	post, err := s.load(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	unit, ok := post.Unit(unitID)
	if !ok {
		return nil, models.ErrUnitNotFound
	}
	if unit.Status == models.UnitStatusPublished {
		return nil, models.ErrUnitPublished
	}

	if err := s.scheduler.Cancel(ctx, postID, unit.Platform); err != nil {
		return nil, fmt.Errorf("cancelling previous job: %w", err)
	}

	var updated bool
	if unit.Status == models.UnitStatusFailed {
		updated, err = s.pr.Rearm(ctx, unitID, at)
	} else {
		updated, err = s.pr.UpdateSchedule(ctx, unitID, at)
	}
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, fmt.Errorf("%w: unit %s is %s", models.ErrInvalidTransition, unitID, unit.Status)
	}

	unit.Status = models.UnitStatusScheduled
	unit.ScheduledTime = &at
	if err := s.scheduler.Arm(ctx, *unit); err != nil {
		slog.Error("failed to arm delivery unit", "post_id", postID, "unit_id", unitID, "error", err)
	}
	return unit, nil
}

// CancelUnit drops the pending job and returns a scheduled unit to draft so that
// recovery does not arm it again. Units past scheduled are left alone.
func (s *postService) CancelUnit(ctx context.Context, userID, postID string, platform models.Platform) error {
	post, err := s.load(ctx, userID, postID)
	if err != nil {
		return err
	}
	unit, ok := post.UnitByPlatform(platform)
	if !ok {
		return models.ErrUnitNotFound
	}

	if err := s.scheduler.Cancel(ctx, postID, platform); err != nil {
		return fmt.Errorf("cancelling job: %w", err)
	}

	if unit.Status != models.UnitStatusScheduled {
		return nil
	}
	if _, err := s.pr.CompareAndSetStatus(ctx, unit.ID, models.UnitStatusScheduled, models.UnitStatusDraft); err != nil {
		return err
	}
	return nil
}

// PublishNow bypasses timing but goes through the same executor, so a concurrent
// scheduled firing and a manual publish still produce one publish call.
func (s *postService) PublishNow(ctx context.Context, userID, postID, unitID string) (models.PublishResult, error) {
	result := models.PublishResult{PostID: postID, UnitID: unitID}

	post, err := s.load(ctx, userID, postID)
	if err != nil {
		return result, err
	}
	unit, ok := post.Unit(unitID)
	if !ok {
		return result, models.ErrUnitNotFound
	}
	result.Platform = unit.Platform

	switch unit.Status {
	case models.UnitStatusPublished:
		return result, models.ErrUnitPublished
	case models.UnitStatusPublishing:
		result.Status = unit.Status
		result.Skipped = true
		return result, nil
	case models.UnitStatusDraft, models.UnitStatusFailed:
		if _, err := s.pr.CompareAndSetStatus(ctx, unitID, unit.Status, models.UnitStatusScheduled); err != nil {
			return result, err
		}
	}

	if err := s.scheduler.Cancel(ctx, postID, unit.Platform); err != nil {
		slog.Warn("failed to cancel pending job before manual publish", "post_id", postID, "unit_id", unitID, "error", err)
	}

	return s.executor.Execute(ctx, postID, unitID)
}

// Remove tombstones the post after dropping every pending job it owns.
func (s *postService) Remove(ctx context.Context, userID, postID string) error {
	post, err := s.load(ctx, userID, postID)
	if err != nil {
		if errors.Is(err, models.ErrPostDeleted) {
			return nil
		}
		return err
	}

	for _, unit := range post.Units {
		if !unit.Status.Cancellable() {
			continue
		}
		if err := s.scheduler.Cancel(ctx, postID, unit.Platform); err != nil {
			return fmt.Errorf("cancelling job for %s: %w", unit.Platform, err)
		}
	}

	if err := s.pr.SoftDelete(ctx, postID, s.now()); err != nil {
		return fmt.Errorf("error removing post: %w", err)
	}
	return nil
}
