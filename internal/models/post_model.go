package models

import (
	"time"
)

type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformTiktok    Platform = "tiktok"
	PlatformPinterest Platform = "pinterest"
)

// Platforms lists every publishable platform in dispatch order.
var Platforms = []Platform{PlatformInstagram, PlatformFacebook, PlatformTiktok, PlatformPinterest}

func (p Platform) Valid() bool {
	switch p {
	case PlatformInstagram, PlatformFacebook, PlatformTiktok, PlatformPinterest:
		return true
	}
	return false
}

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

type MediaItem struct {
	Type         MediaType `json:"type" validate:"oneof=image video"`
	URL          string    `json:"url" validate:"required,url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Duration     float64   `json:"duration,omitempty"`
	AspectRatio  string    `json:"aspect_ratio,omitempty"`
}

// Content is the immutable part of a post. Recurring templates carry the same shape.
type Content struct {
	Title    string      `json:"title" validate:"max=200"`
	Body     string      `json:"body" validate:"required,max=2200"`
	Media    []MediaItem `json:"media" validate:"dive"`
	Hashtags []string    `json:"hashtags"`
	Mentions []string    `json:"mentions"`
}

type Post struct {
	ID         string         `db:"id" json:"id"`
	UserID     string         `db:"user_id" json:"user_id" validate:"required"`
	Content    Content        `db:"content" json:"content"`
	Units      []DeliveryUnit `json:"units" validate:"required,min=1,dive"`
	TemplateID string         `db:"template_id" json:"template_id,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
	DeletedAt  *time.Time     `db:"deleted_at" json:"deleted_at,omitempty"`
}

func (p *Post) Unit(unitID string) (*DeliveryUnit, bool) {
	for i := range p.Units {
		if p.Units[i].ID == unitID {
			return &p.Units[i], true
		}
	}
	return nil, false
}

func (p *Post) UnitByPlatform(platform Platform) (*DeliveryUnit, bool) {
	for i := range p.Units {
		if p.Units[i].Platform == platform {
			return &p.Units[i], true
		}
	}
	return nil, false
}

func (p *Post) HasPublished() bool {
	for _, u := range p.Units {
		if u.Status == UnitStatusPublished {
			return true
		}
	}
	return false
}

func (p *Post) Deleted() bool {
	return p.DeletedAt != nil
}

type CustomSettings struct {
	BoardID      string   `json:"board_id,omitempty"`
	AltText      string   `json:"alt_text,omitempty"`
	FirstComment string   `json:"first_comment,omitempty"`
	Link         string   `json:"link,omitempty"`
	Location     string   `json:"location,omitempty"`
	Hashtags     []string `json:"hashtags,omitempty"`
	Mentions     []string `json:"mentions,omitempty"`
}

// Analytics is written by the analytics collaborator only.
type Analytics struct {
	Likes       int64 `json:"likes"`
	Comments    int64 `json:"comments"`
	Shares      int64 `json:"shares"`
	Views       int64 `json:"views"`
	Saves       int64 `json:"saves"`
	Reach       int64 `json:"reach"`
	Impressions int64 `json:"impressions"`
}

type DeliveryUnit struct {
	ID            string         `db:"id" json:"id"`
	PostID        string         `db:"post_id" json:"post_id"`
	Platform      Platform       `db:"platform" json:"platform" validate:"oneof=instagram facebook tiktok pinterest"`
	AccountID     string         `db:"account_id" json:"account_id" validate:"required"`
	Status        UnitStatus     `db:"status" json:"status" validate:"oneof=draft scheduled publishing published failed"`
	ScheduledTime *time.Time     `db:"scheduled_time" json:"scheduled_time,omitempty"`
	PublishedTime *time.Time     `db:"published_time" json:"published_time,omitempty"`
	ExternalID    string         `db:"external_id" json:"external_id,omitempty"`
	Error         string         `db:"error" json:"error,omitempty"`
	ErrorKind     FailureKind    `db:"error_kind" json:"error_kind,omitempty"`
	AttemptCount  int            `db:"attempt_count" json:"attempt_count"`
	Settings      CustomSettings `db:"settings" json:"settings"`
	Analytics     Analytics      `db:"analytics" json:"analytics"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// JobKey identifies the pending timing handle of a unit.
func (u DeliveryUnit) JobKey() string {
	return JobKey(u.PostID, u.Platform)
}

func JobKey(postID string, platform Platform) string {
	return postID + "-" + string(platform)
}

// Outcome is what the executor writes back once a publish attempt ends.
type Outcome struct {
	Status        UnitStatus
	ExternalID    string
	Error         string
	ErrorKind     FailureKind
	PublishedTime *time.Time
	// CountAttempt marks a retryable failure that consumes one of the unit's attempts.
	CountAttempt bool
}

// PublishResult is returned to callers of the executor and PublishNow.
type PublishResult struct {
	PostID     string      `json:"post_id"`
	UnitID     string      `json:"unit_id"`
	Platform   Platform    `json:"platform"`
	Status     UnitStatus  `json:"status"`
	ExternalID string      `json:"external_id,omitempty"`
	Error      string      `json:"error,omitempty"`
	ErrorKind  FailureKind `json:"error_kind,omitempty"`
	// Skipped is set when the unit was not in a publishable state and nothing ran.
	Skipped bool `json:"skipped,omitempty"`
}
