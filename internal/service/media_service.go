package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-resty/resty/v2"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	config "github.com/maheshrc27/postflow/configs"
)

const defaultMaxMediaBytes = 512 << 20

var (
	ErrMediaNotFound = errors.New("media object not found")
	ErrMediaTooLarge = errors.New("media object exceeds size limit")
)

// Media is a downloaded media item with its sniffed type.
type Media struct {
	Data      []byte
	MIME      string
	Extension string
}

func (m *Media) IsVideo() bool {
	return strings.HasPrefix(m.MIME, "video/")
}

type MediaFetcher interface {
	Fetch(ctx context.Context, url string) (*Media, error)
}

// MediaService reads post media back from the R2 bucket it was uploaded to, or over
// plain HTTP for URLs hosted elsewhere.
type MediaService struct {
	cfg  config.R2
	r2   *s3.Client
	http *resty.Client
}

func NewMediaService(ctx context.Context, cfg config.R2, timeout time.Duration) (*MediaService, error) {
	s := &MediaService{
		cfg:  cfg,
		http: resty.New().SetTimeout(timeout),
	}
	if cfg.AccountID == "" {
		return s, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("loading r2 config: %w", err)
	}
	s.r2 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
	})
	return s, nil
}

func (s *MediaService) Fetch(ctx context.Context, url string) (*Media, error) {
	var data []byte
	var err error
	if key, ok := s.bucketKey(url); ok {
		data, err = s.getObject(ctx, key)
	} else {
		data, err = s.download(ctx, url)
	}
	if err != nil {
		return nil, err
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return &Media{Data: data, MIME: "application/octet-stream"}, nil
	}
	return &Media{Data: data, MIME: kind.MIME.Value, Extension: kind.Extension}, nil
}

// bucketKey maps a public bucket URL back to its object key.
func (s *MediaService) bucketKey(url string) (string, bool) {
	if s.r2 == nil || s.cfg.PublicURL == "" {
		return "", false
	}
	prefix := strings.TrimSuffix(s.cfg.PublicURL, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

func (s *MediaService) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.r2.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *s3types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: %s", ErrMediaNotFound, key)
		}
		slog.Info(err.Error())
		return nil, err
	}
	defer out.Body.Close()
	if aws.ToInt64(out.ContentLength) > s.maxBytes() {
		return nil, fmt.Errorf("%w: %s", ErrMediaTooLarge, key)
	}
	return s.readCapped(out.Body, key)
}

func (s *MediaService) download(ctx context.Context, url string) ([]byte, error) {
	resp, err := s.http.R().SetContext(ctx).SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return nil, err
	}
	body := resp.RawBody()
	defer body.Close()

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrMediaNotFound, url)
	case resp.IsError():
		return nil, fmt.Errorf("downloading %s: status %d", url, resp.StatusCode())
	case resp.RawResponse.ContentLength > s.maxBytes():
		return nil, fmt.Errorf("%w: %s", ErrMediaTooLarge, url)
	}
	return s.readCapped(body, url)
}

// readCapped reads at most maxBytes, failing instead of truncating when r holds more.
func (s *MediaService) readCapped(r io.Reader, name string) ([]byte, error) {
	limit := s.maxBytes()
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s", ErrMediaTooLarge, name)
	}
	return data, nil
}

func (s *MediaService) maxBytes() int64 {
	if s.cfg.MaxMediaBytes > 0 {
		return s.cfg.MaxMediaBytes
	}
	return defaultMaxMediaBytes
}
