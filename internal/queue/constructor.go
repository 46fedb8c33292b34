package queue

import (
	"context"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

const (
	TaskTypePublishUnit = "publish:unit"
	QueueName           = "publish"
)

// Executor runs one delivery unit to its outcome.
type Executor interface {
	Execute(ctx context.Context, postID, unitID string) (models.PublishResult, error)
}

type PublishPayload struct {
	PostID string `json:"post_id"`
	UnitID string `json:"unit_id"`
}

// Backend holds the pending timing handles, keyed by "{postId}-{platform}".
// Enqueue replaces any handle under the same key; Remove of a missing key is a no-op.
type Backend interface {
	Enqueue(ctx context.Context, key string, payload PublishPayload, delay time.Duration) error
	Remove(ctx context.Context, key string) error
	Close() error
}
