package models

import "time"

type PublishQueue struct {
	ID         int64            `db:"id" json:"id"`
	ProfileID  int64            `db:"profile_id" json:"profile_id"`
	Name       string           `db:"name" json:"name"`
	Status     string           `db:"status" json:"status"`
	Scheduling SchedulingConfig `json:"scheduling"`
	Stats      QueueStats       `json:"stats"`
	InFlight   bool             `db:"in_flight" json:"-"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

type SchedulingConfig struct {
	Enabled       bool       `db:"sched_enabled" json:"enabled"`
	AutoPost      bool       `db:"auto_post" json:"auto_post"`
	StartAt       time.Time  `db:"start_at" json:"start_at"`
	EndAt         *time.Time `db:"end_at" json:"end_at,omitempty"`
	Interval      string     `db:"post_interval" json:"interval"`
	IntervalHours int        `db:"interval_hours" json:"interval_hours,omitempty"`
	PostingTime   *ClockTime `json:"posting_time,omitempty"`
}

// ClockTime is a wall-clock time of day in a named zone.
type ClockTime struct {
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
	Timezone string `json:"timezone"`
}

type QueueStats struct {
	TotalItems   int        `db:"total_items" json:"total_items"`
	PostedItems  int        `db:"posted_items" json:"posted_items"`
	LastPostedAt *time.Time `db:"last_posted_at" json:"last_posted_at,omitempty"`
	NextDueAt    *time.Time `db:"next_due_at" json:"next_due_at,omitempty"`
}

// QueueEntry positions one content item inside a queue. Position values
// form a contiguous 0..n-1 sequence; Posted flips exactly once.
type QueueEntry struct {
	ID              int64      `db:"id" json:"id"`
	QueueID         int64      `db:"queue_id" json:"queue_id"`
	ItemID          int64      `db:"item_id" json:"item_id"`
	Position        int        `db:"position" json:"position"`
	Posted          bool       `db:"posted" json:"posted"`
	PostedAt        *time.Time `db:"posted_at" json:"posted_at,omitempty"`
	ExternalPostID  string     `db:"external_post_id" json:"external_post_id,omitempty"`
	ExternalPostURL string     `db:"external_post_url" json:"external_post_url,omitempty"`
	Attempts        int        `db:"attempts" json:"attempts"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

type QueueError struct {
	ID        int64     `db:"id" json:"id"`
	QueueID   int64     `db:"queue_id" json:"queue_id"`
	EntryID   int64     `db:"entry_id" json:"entry_id"`
	Platform  Platform  `db:"platform" json:"platform"`
	Kind      string    `db:"kind" json:"kind"`
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

const (
	QueueStatusDraft     = "draft"
	QueueStatusScheduled = "scheduled"
	QueueStatusPosting   = "posting"
	QueueStatusPaused    = "paused"
	QueueStatusCompleted = "completed"
	QueueStatusFailed    = "failed"
)

const (
	IntervalDaily         = "daily"
	IntervalEveryOtherDay = "every_other_day"
	IntervalWeekly        = "weekly"
	IntervalCustomHours   = "custom_hours"
)
