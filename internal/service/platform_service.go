package service

import (
	"context"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
)

// Adapter publishes one delivery unit to one platform and returns the platform's id for it.
// Every error it returns is a *PublishError.
type Adapter interface {
	Publish(ctx context.Context, post *models.Post, unit *models.DeliveryUnit, cred *models.Credential) (string, error)
}

var (
	_ Adapter = (*instagramService)(nil)
	_ Adapter = (*facebookService)(nil)
	_ Adapter = (*tiktokService)(nil)
	_ Adapter = (*pinterestService)(nil)
)

// Adapters is the static platform dispatch table.
type Adapters map[models.Platform]Adapter

func NewAdapters(cfg config.Platforms, media MediaFetcher) Adapters {
	return Adapters{
		models.PlatformInstagram: NewInstagramService(cfg),
		models.PlatformFacebook:  NewFacebookService(cfg),
		models.PlatformTiktok:    NewTiktokService(cfg, media),
		models.PlatformPinterest: NewPinterestService(cfg),
	}
}

func (a Adapters) Resolve(platform models.Platform) (Adapter, error) {
	if !platform.Valid() {
		return nil, Validation(platform, "unsupported platform %q", platform)
	}
	adapter, ok := a[platform]
	if !ok {
		return nil, Validation(platform, "no adapter registered for %s", platform)
	}
	return adapter, nil
}
