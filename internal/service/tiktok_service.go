package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const defaultTiktokChunkSize int64 = 10 * 1024 * 1024

type tiktokService struct {
	client    *platformClient
	media     MediaFetcher
	chunkSize int64
}

func NewTiktokService(cfg config.Platforms, media MediaFetcher) Adapter {
	chunk := cfg.TiktokChunkSize
	if chunk <= 0 {
		chunk = defaultTiktokChunkSize
	}
	return &tiktokService{
		client:    newPlatformClient(models.PlatformTiktok, cfg.TiktokBaseURL, cfg),
		media:     media,
		chunkSize: chunk,
	}
}

// Publish runs init, chunked upload and status fetch. Any failing step fails the
// whole attempt and a retry starts again from init.
func (s *tiktokService) Publish(ctx context.Context, post *models.Post, unit *models.DeliveryUnit, cred *models.Credential) (string, error) {
	media := post.Content.Media
	if len(media) != 1 || media[0].Type != models.MediaTypeVideo {
		return "", Validation(models.PlatformTiktok, "tiktok requires exactly one video")
	}

	video, err := s.media.Fetch(ctx, media[0].URL)
	if err != nil {
		if errors.Is(err, ErrMediaNotFound) {
			return "", Validation(models.PlatformTiktok, "video %s not found", media[0].URL)
		}
		if errors.Is(err, ErrMediaTooLarge) {
			return "", Validation(models.PlatformTiktok, "video %s is too large", media[0].URL)
		}
		return "", Transient(models.PlatformTiktok, err, "fetch video")
	}
	if !video.IsVideo() {
		return "", Validation(models.PlatformTiktok, "tiktok requires video content, got %s", video.MIME)
	}

	size := int64(len(video.Data))
	chunkSize, chunkCount := chunkPlan(size, s.chunkSize)

	init, err := s.initUpload(ctx, cred, transfer.VideoInitRequest{
		PostInfo: transfer.VideoPostInfo{
			Title:        truncate(formatCaption(post.Content, unit.Settings), 2200),
			PrivacyLevel: "PUBLIC_TO_EVERYONE",
		},
		SourceInfo: transfer.VideoSourceInfo{
			Source:          "FILE_UPLOAD",
			VideoSize:       size,
			ChunkSize:       chunkSize,
			TotalChunkCount: chunkCount,
		},
	})
	if err != nil {
		return "", err
	}

	for i := int64(0); i < chunkCount; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if i == chunkCount-1 {
			end = size
		}
		if err := s.uploadChunk(ctx, init.Data.UploadURL, video, start, end, size); err != nil {
			return "", err
		}
	}

	return s.fetchStatus(ctx, cred, init.Data.PublishID)
}

// chunkPlan splits size into whole chunks; the last chunk absorbs the remainder, and a
// file smaller than one chunk is sent as a single chunk.
func chunkPlan(size, chunk int64) (int64, int64) {
	if size <= chunk {
		return size, 1
	}
	return chunk, size / chunk
}

func (s *tiktokService) initUpload(ctx context.Context, cred *models.Credential, payload transfer.VideoInitRequest) (*transfer.VideoInitResponse, error) {
	var result transfer.VideoInitResponse
	err := s.client.call(ctx, "init upload", http.MethodPost, "/post/publish/video/init/", payload, &result, bearer(cred))
	if err != nil {
		return nil, err
	}
	if !result.Error.OK() {
		return nil, tiktokError("init upload", result.Error)
	}
	if result.Data.UploadURL == "" || result.Data.PublishID == "" {
		return nil, Transient(models.PlatformTiktok, nil, "init upload returned no upload url")
	}
	return &result, nil
}

func (s *tiktokService) uploadChunk(ctx context.Context, uploadURL string, video *Media, start, end, total int64) error {
	req, err := s.client.request(ctx)
	if err != nil {
		return err
	}
	resp, err := req.
		SetHeader("Content-Type", video.MIME).
		SetHeader("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, total)).
		SetBody(video.Data[start:end]).
		Put(uploadURL)
	if err != nil {
		return Transient(models.PlatformTiktok, err, "upload bytes %d-%d", start, end-1)
	}
	if resp.IsError() {
		return statusError(models.PlatformTiktok, "upload video", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	slog.Debug("tiktok chunk uploaded", "start", start, "end", end-1, "total", total)
	return nil
}

func (s *tiktokService) fetchStatus(ctx context.Context, cred *models.Credential, publishID string) (string, error) {
	var result transfer.PublishStatusResponse
	err := s.client.call(ctx, "fetch publish status", http.MethodPost, "/post/publish/status/fetch/",
		transfer.PublishStatusRequest{PublishID: publishID}, &result, bearer(cred))
	if err != nil {
		return "", err
	}
	if !result.Error.OK() {
		return "", tiktokError("fetch publish status", result.Error)
	}
	if result.Data.Status == "FAILED" {
		return "", Permanent(models.PlatformTiktok, nil, "publish %s failed: %s", publishID, result.Data.FailReason)
	}
	if result.Data.ShareID != "" {
		return result.Data.ShareID, nil
	}
	// Processing continues on TikTok's side; the publish id stays a stable reference.
	return publishID, nil
}

func bearer(cred *models.Credential) func(*resty.Request) {
	return func(r *resty.Request) {
		r.SetAuthToken(cred.AccessToken)
	}
}

// tiktokError classifies the error codes TikTok returns inside a 200 envelope.
func tiktokError(step string, e transfer.TiktokError) *PublishError {
	switch {
	case strings.Contains(e.Code, "rate_limit") || e.Code == "internal_error":
		return Transient(models.PlatformTiktok, nil, "%s: %s %s", step, e.Code, e.Message)
	case strings.Contains(e.Code, "access_token") || strings.Contains(e.Code, "scope"):
		return Credential(models.PlatformTiktok, nil, "%s: %s %s", step, e.Code, e.Message)
	default:
		return Permanent(models.PlatformTiktok, nil, "%s: %s %s", step, e.Code, e.Message)
	}
}
