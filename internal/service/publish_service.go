package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

// PublishService executes one delivery unit: claim it, publish it, record the outcome.
// It never loops; retry policy belongs to the retry job.
type PublishService struct {
	posts    repository.PostRepository
	creds    CredentialStore
	adapters Adapters
	log      *slog.Logger
	now      func() time.Time
}

func NewPublishService(posts repository.PostRepository, creds CredentialStore, adapters Adapters, log *slog.Logger) *PublishService {
	return &PublishService{
		posts:    posts,
		creds:    creds,
		adapters: adapters,
		log:      log.With("component", "executor"),
		now:      time.Now,
	}
}

// Execute returns an error only when the repository itself fails. Publish failures are
// recorded on the unit and reported through the result.
func (s *PublishService) Execute(ctx context.Context, postID, unitID string) (models.PublishResult, error) {
	result := models.PublishResult{PostID: postID, UnitID: unitID}
	log := s.log.With("post_id", postID, "unit_id", unitID)

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, models.ErrPostNotFound) {
			log.Info("post no longer exists, skipping")
			result.Skipped = true
			return result, nil
		}
		return result, fmt.Errorf("loading post %s: %w", postID, err)
	}

	unit, ok := post.Unit(unitID)
	if !ok {
		log.Info("delivery unit no longer exists, skipping")
		result.Skipped = true
		return result, nil
	}
	result.Platform = unit.Platform
	result.Status = unit.Status

	if post.Deleted() || unit.Status != models.UnitStatusScheduled {
		log.Info("delivery unit not publishable, skipping", "status", unit.Status, "deleted", post.Deleted())
		result.Skipped = true
		return result, nil
	}

	claimed, err := s.posts.CompareAndSetStatus(ctx, unitID, models.UnitStatusScheduled, models.UnitStatusPublishing)
	if err != nil {
		return result, fmt.Errorf("claiming unit %s: %w", unitID, err)
	}
	if !claimed {
		log.Info("delivery unit claimed elsewhere, skipping")
		result.Skipped = true
		return result, nil
	}
	unit.Status = models.UnitStatusPublishing

	externalID, publishErr := s.publish(ctx, post, unit)

	// The outcome must land even if the caller's context was cancelled mid-publish.
	writeCtx := context.WithoutCancel(ctx)
	var outcome models.Outcome
	if publishErr != nil {
		kind := KindOf(publishErr)
		outcome = models.Outcome{
			Status:       models.UnitStatusFailed,
			Error:        MessageOf(publishErr),
			ErrorKind:    kind,
			CountAttempt: kind.Retryable(),
		}
		log.Warn("publish failed", "platform", unit.Platform, "kind", kind, "error", publishErr)
	} else {
		published := s.now()
		outcome = models.Outcome{
			Status:        models.UnitStatusPublished,
			ExternalID:    externalID,
			PublishedTime: &published,
		}
		log.Info("published", "platform", unit.Platform, "external_id", externalID)
	}

	recorded, err := s.posts.RecordOutcome(writeCtx, unitID, outcome)
	if err != nil {
		return result, fmt.Errorf("recording outcome of unit %s: %w", unitID, err)
	}
	if !recorded {
		log.Warn("unit left publishing state before its outcome was recorded")
	}

	result.Status = outcome.Status
	result.ExternalID = outcome.ExternalID
	result.Error = outcome.Error
	result.ErrorKind = outcome.ErrorKind
	return result, nil
}

func (s *PublishService) publish(ctx context.Context, post *models.Post, unit *models.DeliveryUnit) (string, error) {
	adapter, err := s.adapters.Resolve(unit.Platform)
	if err != nil {
		return "", err
	}

	cred, err := s.creds.GetAccessToken(ctx, post.UserID, unit.Platform, unit.AccountID)
	if err != nil {
		var pe *PublishError
		if errors.As(err, &pe) {
			return "", err
		}
		return "", Credential(unit.Platform, nil, "credential unavailable")
	}

	return adapter.Publish(ctx, post, unit, cred)
}
