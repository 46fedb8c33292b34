package models

import (
	"slices"
	"time"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Target is one platform/account pair a recurring template publishes to.
type Target struct {
	Platform  Platform       `json:"platform" validate:"oneof=instagram facebook tiktok pinterest"`
	AccountID string         `json:"account_id" validate:"required"`
	Settings  CustomSettings `json:"settings"`
}

type RecurringTemplate struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id" validate:"required"`
	Frequency  Frequency  `db:"frequency" json:"frequency" validate:"oneof=daily weekly monthly"`
	Interval   int        `db:"interval" json:"interval" validate:"gte=0"`
	DaysOfWeek []int      `db:"days_of_week" json:"days_of_week" validate:"dive,gte=0,lte=6"`
	EndDate    *time.Time `db:"end_date" json:"end_date,omitempty"`
	Timezone   string     `db:"timezone" json:"timezone"`
	Content    Content    `db:"content" json:"content"`
	Targets    []Target   `db:"targets" json:"targets" validate:"required,min=1,dive"`
	// LastFiredOn is the local calendar day (YYYY-MM-DD) of the most recent firing.
	LastFiredOn string    `db:"last_fired_on" json:"last_fired_on,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (t *RecurringTemplate) Active(now time.Time) bool {
	return t.EndDate == nil || now.Before(*t.EndDate)
}

// Location resolves the template timezone, falling back to UTC for empty or unknown names.
func (t *RecurringTemplate) Location() *time.Location {
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LocalDay is the dedup key for a firing: the calendar day of now in the template timezone.
func (t *RecurringTemplate) LocalDay(now time.Time) string {
	return now.In(t.Location()).Format(time.DateOnly)
}

// Due reports whether the cadence matches the local day of now.
func (t *RecurringTemplate) Due(now time.Time) bool {
	local := now.In(t.Location())
	switch t.Frequency {
	case FrequencyDaily:
		return true
	case FrequencyWeekly:
		return slices.Contains(t.DaysOfWeek, int(local.Weekday()))
	case FrequencyMonthly:
		return local.Day() == t.Interval
	}
	return false
}
