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

type RecurringService interface {
	Create(ctx context.Context, userID string, rc *transfer.RecurringCreation) (*models.RecurringTemplate, error)
}

type recurringService struct {
	pr repository.PostRepository
}

func NewRecurringService(pr repository.PostRepository) RecurringService {
	return &recurringService{pr: pr}
}

func (s *recurringService) Create(ctx context.Context, userID string, rc *transfer.RecurringCreation) (*models.RecurringTemplate, error) {
	if rc == nil {
		return nil, errors.New("recurring template data is nil")
	}
	if rc.Timezone != "" {
		if _, err := time.LoadLocation(rc.Timezone); err != nil {
			return nil, fmt.Errorf("%w: unknown timezone %q", models.ErrInvalidPost, rc.Timezone)
		}
	}

	seen := make(map[models.Platform]bool, len(rc.Targets))
	for _, target := range rc.Targets {
		if seen[target.Platform] {
			return nil, fmt.Errorf("%w: %s", models.ErrDuplicatePlatform, target.Platform)
		}
		seen[target.Platform] = true
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	tpl := &models.RecurringTemplate{
		ID:         id,
		UserID:     userID,
		Frequency:  rc.Frequency,
		Interval:   rc.Interval,
		DaysOfWeek: rc.DaysOfWeek,
		EndDate:    rc.EndDate,
		Timezone:   rc.Timezone,
		Content:    rc.Content,
		Targets:    rc.Targets,
	}
	if err := models.Validate(tpl); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPost, err)
	}

	if err := s.pr.SaveTemplate(ctx, tpl); err != nil {
		return nil, fmt.Errorf("error creating recurring template: %w", err)
	}
	return tpl, nil
}
