package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"golang.org/x/sync/errgroup"
)

const (
	refreshHorizon     = 30 * time.Minute
	refreshConcurrency = 10
)

type Refresher interface {
	Refresh(ctx context.Context, acc *models.SocialAccount) error
}

type TokenRefreshJob struct {
	sr        repository.SocialAccountRepository
	refresher Refresher
	log       *slog.Logger
	now       func() time.Time
}

func NewTokenRefreshJob(sr repository.SocialAccountRepository, refresher Refresher, log *slog.Logger) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr:        sr,
		refresher: refresher,
		log:       log.With("component", "token-refresh"),
		now:       time.Now,
	}
}

// RefreshTokens refreshes every account whose token expires within the next 30 minutes.
// One account failing does not stop the others.
func (c *TokenRefreshJob) RefreshTokens(ctx context.Context) error {
	currentTime := c.now()

	accounts, err := c.sr.ListByTimeInterval(ctx, currentTime, currentTime.Add(refreshHorizon))
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(refreshConcurrency)

	for _, acc := range accounts {
		acc := acc
		g.Go(func() error {
			err := c.refresher.Refresh(ctx, acc)
			switch {
			case err == nil:
				c.log.Info("token refreshed", "account_id", acc.ID, "platform", acc.Platform)
			case errors.Is(err, service.ErrNotRefreshable):
				c.log.Debug("token not refreshable", "account_id", acc.ID, "platform", acc.Platform)
			case errors.Is(err, repository.ErrTokenRaced):
				c.log.Info("token refreshed concurrently elsewhere", "account_id", acc.ID)
			default:
				c.log.Warn("unable to refresh token", "account_id", acc.ID, "platform", acc.Platform, "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}
