package transfer

import (
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type UnitCreation struct {
	Platform      models.Platform       `json:"platform"`
	AccountID     string                `json:"account_id"`
	ScheduledTime *time.Time            `json:"scheduled_time,omitempty"`
	Settings      models.CustomSettings `json:"settings"`
}

type PostCreation struct {
	Content models.Content `json:"content"`
	Units   []UnitCreation `json:"units"`
}

type ScheduleRequest struct {
	ScheduledTime time.Time `json:"scheduled_time"`
}

type ContentUpdate struct {
	Content models.Content `json:"content"`
}

type RecurringCreation struct {
	Frequency  models.Frequency `json:"frequency"`
	Interval   int              `json:"interval"`
	DaysOfWeek []int            `json:"days_of_week"`
	EndDate    *time.Time       `json:"end_date,omitempty"`
	Timezone   string           `json:"timezone"`
	Content    models.Content   `json:"content"`
	Targets    []models.Target  `json:"targets"`
}
