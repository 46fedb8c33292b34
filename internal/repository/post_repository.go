package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/postflow/internal/models"
)

// PostRepository is the single source of truth for post and delivery unit state.
// Every status change goes through a conditional write so concurrent writers cannot
// both win the same transition.
type PostRepository interface {
	// Save inserts a post and its units. For units that already exist it only touches
	// account and settings; status and fire time change through the conditional writes.
	Save(ctx context.Context, post *models.Post) error
	// UpdateContent replaces a live post's content unless one of its units is published.
	UpdateContent(ctx context.Context, postID string, content models.Content) (bool, error)
	GetByID(ctx context.Context, id string) (*models.Post, error)
	FindScheduled(ctx context.Context) ([]models.DeliveryUnit, error)
	FindDueScheduled(ctx context.Context, now time.Time) ([]models.DeliveryUnit, error)
	FindFailedWithin(ctx context.Context, since time.Time) ([]models.DeliveryUnit, error)
	CompareAndSetStatus(ctx context.Context, unitID string, expected, next models.UnitStatus) (bool, error)
	UpdateSchedule(ctx context.Context, unitID string, fireAt time.Time) (bool, error)
	Rearm(ctx context.Context, unitID string, fireAt time.Time) (bool, error)
	RecordOutcome(ctx context.Context, unitID string, outcome models.Outcome) (bool, error)
	SoftDelete(ctx context.Context, postID string, at time.Time) error

	SaveTemplate(ctx context.Context, tpl *models.RecurringTemplate) error
	FindActiveRecurring(ctx context.Context, now time.Time) ([]*models.RecurringTemplate, error)
	ClaimTemplateDay(ctx context.Context, templateID, day string) (bool, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const unitColumns = `u.id, u.post_id, u.platform, u.account_id, u.status, u.scheduled_time, u.published_time,
	u.external_id, u.error, u.error_kind, u.attempt_count, u.settings, u.analytics, u.created_at, u.updated_at`

func (r *postRepository) Save(ctx context.Context, post *models.Post) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	media, err := json.Marshal(post.Content.Media)
	if err != nil {
		return fmt.Errorf("error marshalling media: %w", err)
	}

	now := time.Now()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now

	postQuery := `
		INSERT INTO posts (id, user_id, title, body, media, hashtags, mentions, template_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			media = EXCLUDED.media,
			hashtags = EXCLUDED.hashtags,
			mentions = EXCLUDED.mentions,
			updated_at = EXCLUDED.updated_at
		WHERE posts.deleted_at IS NULL
	`
	_, err = tx.ExecContext(ctx, postQuery,
		post.ID,
		post.UserID,
		post.Content.Title,
		post.Content.Body,
		media,
		pq.Array(post.Content.Hashtags),
		pq.Array(post.Content.Mentions),
		post.TemplateID,
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("error saving post: %w", err)
	}

	// Existing units keep their status and fire time; in-flight and published ones are left alone entirely.
	unitQuery := `
		INSERT INTO delivery_units (id, post_id, platform, account_id, status, scheduled_time, settings, attempt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			settings = EXCLUDED.settings,
			updated_at = EXCLUDED.updated_at
		WHERE delivery_units.status IN ('draft', 'scheduled', 'failed')
	`
	for i := range post.Units {
		u := &post.Units[i]
		u.PostID = post.ID
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
		u.UpdatedAt = now

		settings, err := json.Marshal(u.Settings)
		if err != nil {
			return fmt.Errorf("error marshalling settings: %w", err)
		}

		_, err = tx.ExecContext(ctx, unitQuery,
			u.ID, u.PostID, u.Platform, u.AccountID, u.Status, u.ScheduledTime, settings, u.AttemptCount, u.CreatedAt, u.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return fmt.Errorf("error saving delivery unit %s: %w", u.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *postRepository) UpdateContent(ctx context.Context, postID string, content models.Content) (bool, error) {
	media, err := json.Marshal(content.Media)
	if err != nil {
		return false, fmt.Errorf("error marshalling media: %w", err)
	}

	query := `
		UPDATE posts
		SET title = $2, body = $3, media = $4, hashtags = $5, mentions = $6, updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL
		AND NOT EXISTS (
			SELECT 1 FROM delivery_units u WHERE u.post_id = posts.id AND u.status = 'published'
		)
	`
	updated, err := r.execAffected(ctx, query, postID, content.Title, content.Body, media,
		pq.Array(content.Hashtags), pq.Array(content.Mentions), time.Now())
	if err != nil || updated {
		return updated, err
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, postID).Scan(&exists); err != nil {
		slog.Info(err.Error())
		return false, err
	}
	if !exists {
		return false, models.ErrPostNotFound
	}
	return false, nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	query := `SELECT id, user_id, title, body, media, hashtags, mentions, COALESCE(template_id, ''), created_at, updated_at, deleted_at
		FROM posts WHERE id = $1`

	var post models.Post
	var media []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&post.ID,
		&post.UserID,
		&post.Content.Title,
		&post.Content.Body,
		&media,
		pq.Array(&post.Content.Hashtags),
		pq.Array(&post.Content.Mentions),
		&post.TemplateID,
		&post.CreatedAt,
		&post.UpdatedAt,
		&post.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrPostNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	if len(media) > 0 {
		if err := json.Unmarshal(media, &post.Content.Media); err != nil {
			return nil, fmt.Errorf("error parsing media: %w", err)
		}
	}

	units, err := r.queryUnits(ctx, `SELECT `+unitColumns+` FROM delivery_units u WHERE u.post_id = $1 ORDER BY u.created_at, u.id`, id)
	if err != nil {
		return nil, err
	}
	post.Units = units

	return &post, nil
}

func (r *postRepository) FindScheduled(ctx context.Context) ([]models.DeliveryUnit, error) {
	query := `SELECT ` + unitColumns + `
		FROM delivery_units u JOIN posts p ON p.id = u.post_id
		WHERE u.status = 'scheduled' AND p.deleted_at IS NULL
		ORDER BY u.scheduled_time NULLS FIRST`
	return r.queryUnits(ctx, query)
}

func (r *postRepository) FindDueScheduled(ctx context.Context, now time.Time) ([]models.DeliveryUnit, error) {
	query := `SELECT ` + unitColumns + `
		FROM delivery_units u JOIN posts p ON p.id = u.post_id
		WHERE u.status = 'scheduled' AND (u.scheduled_time IS NULL OR u.scheduled_time <= $1) AND p.deleted_at IS NULL
		ORDER BY u.scheduled_time NULLS FIRST`
	return r.queryUnits(ctx, query, now)
}

func (r *postRepository) FindFailedWithin(ctx context.Context, since time.Time) ([]models.DeliveryUnit, error) {
	query := `SELECT ` + unitColumns + `
		FROM delivery_units u JOIN posts p ON p.id = u.post_id
		WHERE u.status = 'failed' AND u.updated_at >= $1 AND p.deleted_at IS NULL
		ORDER BY u.updated_at`
	return r.queryUnits(ctx, query, since)
}

func (r *postRepository) CompareAndSetStatus(ctx context.Context, unitID string, expected, next models.UnitStatus) (bool, error) {
	if !expected.CanTransition(next) {
		return false, models.ErrInvalidTransition
	}
	query := `UPDATE delivery_units SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	return r.execAffected(ctx, query, unitID, expected, next, time.Now())
}

func (r *postRepository) UpdateSchedule(ctx context.Context, unitID string, fireAt time.Time) (bool, error) {
	query := `
		UPDATE delivery_units
		SET status = 'scheduled', scheduled_time = $2, updated_at = $3
		WHERE id = $1 AND status IN ('draft', 'scheduled')
	`
	return r.execAffected(ctx, query, unitID, fireAt, time.Now())
}

func (r *postRepository) Rearm(ctx context.Context, unitID string, fireAt time.Time) (bool, error) {
	query := `
		UPDATE delivery_units
		SET status = 'scheduled', scheduled_time = $2, updated_at = $3
		WHERE id = $1 AND status = 'failed'
	`
	return r.execAffected(ctx, query, unitID, fireAt, time.Now())
}

func (r *postRepository) RecordOutcome(ctx context.Context, unitID string, outcome models.Outcome) (bool, error) {
	if !models.UnitStatusPublishing.CanTransition(outcome.Status) {
		return false, models.ErrInvalidTransition
	}
	increment := 0
	if outcome.CountAttempt {
		increment = 1
	}
	query := `
		UPDATE delivery_units
		SET status = $2,
			external_id = $3,
			error = $4,
			error_kind = $5,
			published_time = COALESCE($6, published_time),
			attempt_count = attempt_count + $7,
			updated_at = $8
		WHERE id = $1 AND status = 'publishing'
	`
	return r.execAffected(ctx, query, unitID, outcome.Status, outcome.ExternalID, outcome.Error,
		outcome.ErrorKind, outcome.PublishedTime, increment, time.Now())
}

func (r *postRepository) SoftDelete(ctx context.Context, postID string, at time.Time) error {
	query := `UPDATE posts SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, postID, at)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) SaveTemplate(ctx context.Context, tpl *models.RecurringTemplate) error {
	content, err := json.Marshal(tpl.Content)
	if err != nil {
		return fmt.Errorf("error marshalling content: %w", err)
	}
	targets, err := json.Marshal(tpl.Targets)
	if err != nil {
		return fmt.Errorf("error marshalling targets: %w", err)
	}
	days := make([]int64, len(tpl.DaysOfWeek))
	for i, d := range tpl.DaysOfWeek {
		days[i] = int64(d)
	}

	now := time.Now()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now

	query := `
		INSERT INTO recurring_templates (id, user_id, frequency, interval, days_of_week, end_date, timezone, content, targets, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			frequency = EXCLUDED.frequency,
			interval = EXCLUDED.interval,
			days_of_week = EXCLUDED.days_of_week,
			end_date = EXCLUDED.end_date,
			timezone = EXCLUDED.timezone,
			content = EXCLUDED.content,
			targets = EXCLUDED.targets,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.ExecContext(ctx, query, tpl.ID, tpl.UserID, tpl.Frequency, tpl.Interval, pq.Array(days),
		tpl.EndDate, tpl.Timezone, content, targets, tpl.CreatedAt, tpl.UpdatedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) FindActiveRecurring(ctx context.Context, now time.Time) ([]*models.RecurringTemplate, error) {
	query := `
		SELECT id, user_id, frequency, interval, days_of_week, end_date, timezone, content, targets,
			COALESCE(last_fired_on, ''), created_at, updated_at
		FROM recurring_templates
		WHERE end_date IS NULL OR end_date > $1
	`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var templates []*models.RecurringTemplate
	for rows.Next() {
		var tpl models.RecurringTemplate
		var days []int64
		var content, targets []byte
		err := rows.Scan(&tpl.ID, &tpl.UserID, &tpl.Frequency, &tpl.Interval, pq.Array(&days), &tpl.EndDate,
			&tpl.Timezone, &content, &targets, &tpl.LastFiredOn, &tpl.CreatedAt, &tpl.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		for _, d := range days {
			tpl.DaysOfWeek = append(tpl.DaysOfWeek, int(d))
		}
		if err := json.Unmarshal(content, &tpl.Content); err != nil {
			return nil, fmt.Errorf("error parsing template content %s: %w", tpl.ID, err)
		}
		if err := json.Unmarshal(targets, &tpl.Targets); err != nil {
			return nil, fmt.Errorf("error parsing template targets %s: %w", tpl.ID, err)
		}
		templates = append(templates, &tpl)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return templates, nil
}

func (r *postRepository) ClaimTemplateDay(ctx context.Context, templateID, day string) (bool, error) {
	query := `
		UPDATE recurring_templates
		SET last_fired_on = $2, updated_at = $3
		WHERE id = $1 AND last_fired_on IS DISTINCT FROM $2
	`
	return r.execAffected(ctx, query, templateID, day, time.Now())
}

func (r *postRepository) execAffected(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *postRepository) queryUnits(ctx context.Context, query string, args ...any) ([]models.DeliveryUnit, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var units []models.DeliveryUnit
	for rows.Next() {
		var u models.DeliveryUnit
		var settings, analytics []byte
		err := rows.Scan(&u.ID, &u.PostID, &u.Platform, &u.AccountID, &u.Status, &u.ScheduledTime, &u.PublishedTime,
			&u.ExternalID, &u.Error, &u.ErrorKind, &u.AttemptCount, &settings, &analytics, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		if len(settings) > 0 {
			if err := json.Unmarshal(settings, &u.Settings); err != nil {
				return nil, fmt.Errorf("error parsing settings of unit %s: %w", u.ID, err)
			}
		}
		if len(analytics) > 0 {
			if err := json.Unmarshal(analytics, &u.Analytics); err != nil {
				return nil, fmt.Errorf("error parsing analytics of unit %s: %w", u.ID, err)
			}
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return units, nil
}
