package service

import (
	"context"
	"net/http"

	"github.com/go-resty/resty/v2"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type pinterestService struct {
	client *platformClient
}

func NewPinterestService(cfg config.Platforms) Adapter {
	return &pinterestService{client: newPlatformClient(models.PlatformPinterest, cfg.PinterestBaseURL, cfg)}
}

func (s *pinterestService) Publish(ctx context.Context, post *models.Post, unit *models.DeliveryUnit, cred *models.Credential) (string, error) {
	media := post.Content.Media
	if len(media) != 1 || media[0].Type != models.MediaTypeImage {
		return "", Validation(models.PlatformPinterest, "pinterest requires exactly one image")
	}

	boardID := resolveBoard(unit.Settings, cred.Metadata)
	if boardID == "" {
		return "", Validation(models.PlatformPinterest, "pinterest board not specified in unit settings or account metadata")
	}

	pin := transfer.PinRequest{
		BoardID: boardID,
		MediaSource: transfer.PinMediaSource{
			SourceType: "image_url",
			URL:        media[0].URL,
		},
		Title:       truncate(titleOf(post.Content), 100),
		Description: truncate(post.Content.Body, 500),
		Link:        unit.Settings.Link,
		AltText:     unit.Settings.AltText,
	}

	var result transfer.PinResponse
	err := s.client.call(ctx, "create pin", http.MethodPost, "/pins", pin, &result, func(r *resty.Request) {
		r.SetAuthToken(cred.AccessToken)
	})
	if err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", Transient(models.PlatformPinterest, nil, "create pin returned no id")
	}
	return result.ID, nil
}

// resolveBoard prefers the unit's explicit board, then the first board cached on the account.
func resolveBoard(settings models.CustomSettings, meta models.AccountMetadata) string {
	if settings.BoardID != "" {
		return settings.BoardID
	}
	if len(meta.Boards) > 0 {
		return meta.Boards[0].ID
	}
	return ""
}
