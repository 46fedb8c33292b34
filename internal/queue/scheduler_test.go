package queue

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAdapter struct {
	calls atomic.Int32
	delay time.Duration
}

func (a *countingAdapter) Publish(ctx context.Context, post *models.Post, unit *models.DeliveryUnit, cred *models.Credential) (string, error) {
	a.calls.Add(1)
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	return "ext-" + unit.ID, nil
}

type stubCreds struct{}

func (stubCreds) GetAccessToken(ctx context.Context, userID string, platform models.Platform, accountID string) (*models.Credential, error) {
	return &models.Credential{AccessToken: "token", ExternalAccountID: accountID}, nil
}

type harness struct {
	store     *repository.MemoryStore
	ig        *countingAdapter
	fb        *countingAdapter
	executor  *service.PublishService
	pool      *Pool
	timers    *TimerBackend
	scheduler *Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &harness{
		store: repository.NewMemoryStore(),
		ig:    &countingAdapter{},
		fb:    &countingAdapter{},
	}
	h.executor = service.NewPublishService(h.store, stubCreds{}, service.Adapters{
		models.PlatformInstagram: h.ig,
		models.PlatformFacebook:  h.fb,
	}, log)
	h.pool = NewPool(h.executor, 4, log)
	h.timers = NewTimerBackend(h.pool.Submit)
	h.scheduler = NewScheduler(h.store, h.timers, h.pool, log)

	t.Cleanup(func() {
		h.timers.Close()
		h.pool.Wait()
	})
	return h
}

func (h *harness) seed(t *testing.T, status models.UnitStatus, at *time.Time) *models.Post {
	t.Helper()
	post := &models.Post{
		ID:      "p1",
		UserID:  "user-1",
		Content: models.Content{Body: "launch day"},
		Units: []models.DeliveryUnit{
			{ID: "u-ig", Platform: models.PlatformInstagram, AccountID: "acc-ig", Status: status, ScheduledTime: at},
			{ID: "u-fb", Platform: models.PlatformFacebook, AccountID: "acc-fb", Status: status, ScheduledTime: at},
		},
	}
	require.NoError(t, h.store.Save(context.Background(), post))
	stored, err := h.store.GetByID(context.Background(), post.ID)
	require.NoError(t, err)
	return stored
}

func (h *harness) unit(t *testing.T, unitID string) models.DeliveryUnit {
	t.Helper()
	post, err := h.store.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	u, ok := post.Unit(unitID)
	require.True(t, ok)
	return *u
}

func TestArmOverdueUnitsPublishImmediately(t *testing.T) {
	h := newHarness(t)
	past := time.Now().Add(-time.Second)
	post := h.seed(t, models.UnitStatusScheduled, &past)

	for _, u := range post.Units {
		require.NoError(t, h.scheduler.Arm(context.Background(), u))
	}
	h.pool.Wait()

	for _, id := range []string{"u-ig", "u-fb"} {
		u := h.unit(t, id)
		assert.Equal(t, models.UnitStatusPublished, u.Status)
		assert.NotEmpty(t, u.ExternalID)
		assert.NotNil(t, u.PublishedTime)
	}
	assert.Equal(t, 0, h.timers.Len())
}

func TestArmFutureUnitWaitsOnBackend(t *testing.T) {
	h := newHarness(t)
	later := time.Now().Add(time.Hour)
	post := h.seed(t, models.UnitStatusScheduled, &later)

	require.NoError(t, h.scheduler.Arm(context.Background(), post.Units[0]))

	assert.True(t, h.timers.Pending("p1-instagram"))
	assert.Equal(t, int32(0), h.ig.calls.Load())
}

func TestArmFiresAfterDelay(t *testing.T) {
	h := newHarness(t)
	soon := time.Now().Add(30 * time.Millisecond)
	post := h.seed(t, models.UnitStatusScheduled, &soon)

	require.NoError(t, h.scheduler.Arm(context.Background(), post.Units[0]))

	assert.Eventually(t, func() bool {
		return h.unit(t, "u-ig").Status == models.UnitStatusPublished
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), h.ig.calls.Load())
}

func TestRearmReplacesPendingJob(t *testing.T) {
	h := newHarness(t)
	soon := time.Now().Add(30 * time.Millisecond)
	post := h.seed(t, models.UnitStatusScheduled, &soon)

	require.NoError(t, h.scheduler.Arm(context.Background(), post.Units[0]))
	require.NoError(t, h.scheduler.Arm(context.Background(), post.Units[0]))
	assert.Equal(t, 1, h.timers.Len())

	time.Sleep(100 * time.Millisecond)
	h.pool.Wait()
	assert.Equal(t, int32(1), h.ig.calls.Load())
}

func TestCancelledUnitIsNeverPublished(t *testing.T) {
	h := newHarness(t)
	soon := time.Now().Add(30 * time.Millisecond)
	post := h.seed(t, models.UnitStatusScheduled, &soon)

	require.NoError(t, h.scheduler.Arm(context.Background(), post.Units[0]))
	require.NoError(t, h.scheduler.Cancel(context.Background(), "p1", models.PlatformInstagram))

	time.Sleep(100 * time.Millisecond)
	h.pool.Wait()

	assert.Equal(t, int32(0), h.ig.calls.Load())
	assert.Equal(t, models.UnitStatusScheduled, h.unit(t, "u-ig").Status)
}

func TestCancelMissingJobIsNoop(t *testing.T) {
	h := newHarness(t)
	assert.NoError(t, h.scheduler.Cancel(context.Background(), "nope", models.PlatformTiktok))
}

func TestRecoverOnStartupFiresOverdueAndArmsFuture(t *testing.T) {
	h := newHarness(t)
	past := time.Now().Add(-2 * time.Hour)
	later := time.Now().Add(time.Hour)
	require.NoError(t, h.store.Save(context.Background(), &models.Post{
		ID:      "p1",
		UserID:  "user-1",
		Content: models.Content{Body: "recover me"},
		Units: []models.DeliveryUnit{
			{ID: "u-ig", Platform: models.PlatformInstagram, AccountID: "acc-ig", Status: models.UnitStatusScheduled, ScheduledTime: &past},
			{ID: "u-fb", Platform: models.PlatformFacebook, AccountID: "acc-fb", Status: models.UnitStatusScheduled, ScheduledTime: &later},
		},
	}))

	armed, err := h.scheduler.RecoverOnStartup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, armed)

	h.pool.Wait()
	assert.Equal(t, models.UnitStatusPublished, h.unit(t, "u-ig").Status)
	assert.Equal(t, models.UnitStatusScheduled, h.unit(t, "u-fb").Status)
	assert.True(t, h.timers.Pending("p1-facebook"))
}

func TestConcurrentArmAndExecutePublishOnce(t *testing.T) {
	h := newHarness(t)
	h.ig.delay = 20 * time.Millisecond
	past := time.Now().Add(-time.Second)
	post := h.seed(t, models.UnitStatusScheduled, &past)
	unit := post.Units[0]

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.scheduler.Arm(context.Background(), unit))
		}()
		go func() {
			defer wg.Done()
			_, err := h.executor.Execute(context.Background(), unit.PostID, unit.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	h.pool.Wait()

	assert.Equal(t, int32(1), h.ig.calls.Load())
	assert.Equal(t, models.UnitStatusPublished, h.unit(t, "u-ig").Status)
}

func TestSweepFiresUnitsWithLostJobs(t *testing.T) {
	h := newHarness(t)
	past := time.Now().Add(-10 * time.Minute)
	h.seed(t, models.UnitStatusScheduled, &past)

	fired, err := h.scheduler.Sweep(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, fired)

	h.pool.Wait()
	assert.Equal(t, models.UnitStatusPublished, h.unit(t, "u-ig").Status)
	assert.Equal(t, models.UnitStatusPublished, h.unit(t, "u-fb").Status)
}

func TestSweepIgnoresUnitsWithinGrace(t *testing.T) {
	h := newHarness(t)
	justNow := time.Now().Add(-10 * time.Second)
	h.seed(t, models.UnitStatusScheduled, &justNow)

	fired, err := h.scheduler.Sweep(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)
}
