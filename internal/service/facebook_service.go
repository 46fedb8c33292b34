package service

import (
	"context"
	"fmt"
	"net/http"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type facebookService struct {
	client *platformClient
}

func NewFacebookService(cfg config.Platforms) Adapter {
	return &facebookService{client: newPlatformClient(models.PlatformFacebook, cfg.FacebookBaseURL, cfg)}
}

// Publish sends exactly one media type per call: the first image as a photo, otherwise
// the first video, otherwise a plain feed post.
func (s *facebookService) Publish(ctx context.Context, post *models.Post, unit *models.DeliveryUnit, cred *models.Credential) (string, error) {
	message := formatCaption(post.Content, unit.Settings)
	pageID := cred.ExternalAccountID

	var (
		step    string
		url     string
		payload any
	)
	image, hasImage := firstOfType(post.Content.Media, models.MediaTypeImage)
	video, hasVideo := firstOfType(post.Content.Media, models.MediaTypeVideo)
	switch {
	case hasImage && hasVideo:
		return "", Validation(models.PlatformFacebook, "facebook posts take one media type, got images and videos")
	case hasImage:
		step, url = "upload photo", fmt.Sprintf("/%s/photos", pageID)
		payload = transfer.FacebookPhotoRequest{Message: message, URL: image.URL, AccessToken: cred.AccessToken}
	case hasVideo:
		step, url = "upload video", fmt.Sprintf("/%s/videos", pageID)
		payload = transfer.FacebookVideoRequest{Description: message, FileURL: video.URL, AccessToken: cred.AccessToken}
	default:
		step, url = "create feed post", fmt.Sprintf("/%s/feed", pageID)
		payload = transfer.FacebookFeedRequest{Message: message, Link: unit.Settings.Link, AccessToken: cred.AccessToken}
	}

	var result transfer.GraphIDResponse
	if err := s.client.call(ctx, step, http.MethodPost, url, payload, &result); err != nil {
		return "", err
	}

	// Photo uploads report the feed story as post_id alongside the photo id.
	id := result.PostID
	if id == "" {
		id = result.ID
	}
	if id == "" {
		return "", Transient(models.PlatformFacebook, nil, "%s returned no id", step)
	}
	return id, nil
}

func firstOfType(media []models.MediaItem, t models.MediaType) (models.MediaItem, bool) {
	for _, m := range media {
		if m.Type == t {
			return m, true
		}
	}
	return models.MediaItem{}, false
}
