package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	instagramMaxCarousel = 10
	// instagramNotReadySubcode is returned by media_publish while a container is still processing.
	instagramNotReadySubcode = 2207027
)

type instagramService struct {
	client        *platformClient
	containerWait time.Duration
}

func NewInstagramService(cfg config.Platforms) Adapter {
	return &instagramService{
		client:        newPlatformClient(models.PlatformInstagram, cfg.InstagramBaseURL, cfg),
		containerWait: cfg.InstagramContainerWait,
	}
}

func (s *instagramService) Publish(ctx context.Context, post *models.Post, unit *models.DeliveryUnit, cred *models.Credential) (string, error) {
	media := post.Content.Media
	if len(media) == 0 {
		return "", Validation(models.PlatformInstagram, "instagram requires at least one media item")
	}
	if len(media) > instagramMaxCarousel {
		return "", Validation(models.PlatformInstagram, "instagram carousel accepts at most %d items, got %d", instagramMaxCarousel, len(media))
	}

	caption := formatCaption(post.Content, unit.Settings)

	var containerID string
	var err error
	if len(media) == 1 {
		containerID, err = s.createSingleContainer(ctx, cred, media[0], caption, unit.Settings.Location)
	} else {
		containerID, err = s.createCarouselContainer(ctx, cred, media, caption)
	}
	if err != nil {
		return "", err
	}

	if err := sleep(ctx, s.containerWait); err != nil {
		return "", Transient(models.PlatformInstagram, err, "waiting for media container")
	}

	mediaID, err := s.publishContainer(ctx, cred, containerID)
	if err != nil {
		return "", err
	}

	if unit.Settings.FirstComment != "" {
		s.postFirstComment(ctx, cred, mediaID, unit.Settings.FirstComment)
	}

	return mediaID, nil
}

func (s *instagramService) createSingleContainer(ctx context.Context, cred *models.Credential, item models.MediaItem, caption, location string) (string, error) {
	payload := transfer.InstagramContainerRequest{
		Caption:     caption,
		LocationID:  location,
		AccessToken: cred.AccessToken,
	}
	if item.Type == models.MediaTypeVideo {
		payload.MediaType = "REELS"
		payload.VideoURL = item.URL
	} else {
		payload.ImageURL = item.URL
	}
	return s.createContainer(ctx, cred, "create media container", payload)
}

func (s *instagramService) createCarouselContainer(ctx context.Context, cred *models.Credential, media []models.MediaItem, caption string) (string, error) {
	children := make([]string, 0, len(media))
	for i, item := range media {
		if item.Type != models.MediaTypeImage {
			return "", Validation(models.PlatformInstagram, "carousel item %d must be an image", i)
		}
		childID, err := s.createContainer(ctx, cred, fmt.Sprintf("create carousel item %d", i), transfer.InstagramContainerRequest{
			ImageURL:       item.URL,
			IsCarouselItem: true,
			AccessToken:    cred.AccessToken,
		})
		if err != nil {
			return "", err
		}
		children = append(children, childID)
	}

	return s.createContainer(ctx, cred, "create carousel container", transfer.InstagramContainerRequest{
		MediaType:   "CAROUSEL",
		Caption:     caption,
		Children:    children,
		AccessToken: cred.AccessToken,
	})
}

func (s *instagramService) createContainer(ctx context.Context, cred *models.Credential, step string, payload transfer.InstagramContainerRequest) (string, error) {
	var result transfer.GraphIDResponse
	url := fmt.Sprintf("/%s/media", cred.ExternalAccountID)
	if err := s.client.call(ctx, step, http.MethodPost, url, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", Transient(models.PlatformInstagram, nil, "%s returned no container id", step)
	}
	return result.ID, nil
}

// publishContainer makes a single publish attempt. A container that is still processing
// fails the attempt as transient instead of being polled.
func (s *instagramService) publishContainer(ctx context.Context, cred *models.Credential, containerID string) (string, error) {
	var result transfer.GraphIDResponse
	var apiErr transfer.GraphErrorResponse
	url := fmt.Sprintf("/%s/media_publish", cred.ExternalAccountID)
	err := s.client.call(ctx, "publish media container", http.MethodPost, url, transfer.InstagramPublishRequest{
		CreationID:  containerID,
		AccessToken: cred.AccessToken,
	}, &result, func(r *resty.Request) { r.SetError(&apiErr) })
	if err != nil {
		if apiErr.Error.ErrorSubcode == instagramNotReadySubcode {
			return "", Transient(models.PlatformInstagram, err, "media container %s not ready", containerID)
		}
		return "", err
	}
	if result.ID == "" {
		return "", Transient(models.PlatformInstagram, nil, "publish returned no media id")
	}
	return result.ID, nil
}

// postFirstComment runs after the media is live, so its failure does not fail the unit.
func (s *instagramService) postFirstComment(ctx context.Context, cred *models.Credential, mediaID, message string) {
	url := fmt.Sprintf("/%s/comments", mediaID)
	err := s.client.call(ctx, "post first comment", http.MethodPost, url, map[string]string{
		"message":      message,
		"access_token": cred.AccessToken,
	}, nil)
	if err != nil {
		slog.Warn("instagram first comment failed", "media_id", mediaID, "error", err)
	}
}
