package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePosts answers every call with err, recording the arguments it saw.
type fakePosts struct {
	err      error
	userID   string
	postID   string
	unitID   string
	platform models.Platform
	at       time.Time
}

func (f *fakePosts) Create(ctx context.Context, userID string, pc *transfer.PostCreation) (*models.Post, error) {
	f.userID = userID
	if f.err != nil {
		return nil, f.err
	}
	return &models.Post{ID: "p1", UserID: userID, Content: pc.Content}, nil
}

func (f *fakePosts) Get(ctx context.Context, userID, postID string) (*models.Post, error) {
	f.userID, f.postID = userID, postID
	if f.err != nil {
		return nil, f.err
	}
	return &models.Post{ID: postID, UserID: userID}, nil
}

func (f *fakePosts) UpdateContent(ctx context.Context, userID, postID string, content models.Content) (*models.Post, error) {
	f.userID, f.postID = userID, postID
	if f.err != nil {
		return nil, f.err
	}
	return &models.Post{ID: postID, Content: content}, nil
}

func (f *fakePosts) ScheduleUnit(ctx context.Context, userID, postID, unitID string, at time.Time) (*models.DeliveryUnit, error) {
	f.userID, f.postID, f.unitID, f.at = userID, postID, unitID, at
	if f.err != nil {
		return nil, f.err
	}
	return &models.DeliveryUnit{ID: unitID, Status: models.UnitStatusScheduled, ScheduledTime: &at}, nil
}

func (f *fakePosts) CancelUnit(ctx context.Context, userID, postID string, platform models.Platform) error {
	f.userID, f.postID, f.platform = userID, postID, platform
	return f.err
}

func (f *fakePosts) PublishNow(ctx context.Context, userID, postID, unitID string) (models.PublishResult, error) {
	f.userID, f.postID, f.unitID = userID, postID, unitID
	if f.err != nil {
		return models.PublishResult{}, f.err
	}
	return models.PublishResult{PostID: postID, UnitID: unitID, Status: models.UnitStatusPublished, ExternalID: "ext"}, nil
}

func (f *fakePosts) Remove(ctx context.Context, userID, postID string) error {
	f.userID, f.postID = userID, postID
	return f.err
}

type fakeRecurring struct{}

func (fakeRecurring) Create(ctx context.Context, userID string, rc *transfer.RecurringCreation) (*models.RecurringTemplate, error) {
	return &models.RecurringTemplate{ID: "tpl-1", UserID: userID, Frequency: rc.Frequency}, nil
}

func newTestApp(posts *fakePosts) *fiber.App {
	app := fiber.New()
	api := app.Group("/api", func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		return c.Next()
	})
	NewPostHandler(posts, fakeRecurring{}).Register(api)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestCreatePostRoute(t *testing.T) {
	posts := &fakePosts{}
	app := newTestApp(posts)

	code, body := do(t, app, http.MethodPost, "/api/posts", `{"content":{"body":"hi"},"units":[{"platform":"instagram","account_id":"a"}]}`)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "p1", body["id"])
	assert.Equal(t, "user-1", posts.userID)

	code, _ = do(t, app, http.MethodPost, "/api/posts", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestScheduleRoutePassesParams(t *testing.T) {
	posts := &fakePosts{}
	app := newTestApp(posts)

	code, body := do(t, app, http.MethodPost, "/api/posts/p9/units/u3/schedule", `{"scheduled_time":"2026-11-01T10:00:00Z"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "scheduled", body["status"])
	assert.Equal(t, "p9", posts.postID)
	assert.Equal(t, "u3", posts.unitID)
	assert.True(t, posts.at.Equal(time.Date(2026, 11, 1, 10, 0, 0, 0, time.UTC)))
}

func TestCancelRouteValidatesPlatform(t *testing.T) {
	posts := &fakePosts{}
	app := newTestApp(posts)

	code, _ := do(t, app, http.MethodPost, "/api/posts/p1/cancel/myspace", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, app, http.MethodPost, "/api/posts/p1/cancel/pinterest", "")
	assert.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, models.PlatformPinterest, posts.platform)
}

func TestPublishAndRecurringRoutes(t *testing.T) {
	app := newTestApp(&fakePosts{})

	code, body := do(t, app, http.MethodPost, "/api/posts/p1/units/u1/publish", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ext", body["external_id"])

	code, body = do(t, app, http.MethodPost, "/api/recurring", `{"frequency":"daily","targets":[]}`)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "tpl-1", body["id"])
}

func TestErrorsMapToStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{models.ErrPostNotFound, http.StatusNotFound},
		{models.ErrUnitNotFound, http.StatusNotFound},
		{models.ErrPostDeleted, http.StatusGone},
		{models.ErrUnitPublished, http.StatusConflict},
		{models.ErrInvalidTransition, http.StatusConflict},
		{models.ErrInvalidPost, http.StatusBadRequest},
		{models.ErrDuplicatePlatform, http.StatusBadRequest},
		{models.ErrNoScheduledTime, http.StatusBadRequest},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		app := newTestApp(&fakePosts{err: tc.err})
		code, body := do(t, app, http.MethodDelete, "/api/posts/p1", "")
		assert.Equal(t, tc.code, code, tc.err.Error())
		if tc.code == http.StatusInternalServerError {
			assert.Equal(t, "Internal server error", body["error"])
		}
	}
}
