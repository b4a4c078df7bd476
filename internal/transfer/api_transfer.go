package transfer

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/queueflow/queueflow/internal/models"
)

type CustomClaims struct {
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

type CredentialInput struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExternalUserID   string    `json:"external_user_id"`
	ExternalUsername string    `json:"external_username"`
	ExpiresAt        time.Time `json:"expires_at"`
	ExpiresIn        int64     `json:"expires_in"`
}

type PublishRequest struct {
	ItemID   int64  `json:"item_id"`
	Platform string `json:"platform"`
	All      bool   `json:"all"`
	Async    bool   `json:"async"`
}

type QueueCreation struct {
	ProfileID int64  `json:"profile_id"`
	Name      string `json:"name"`
}

type QueueEntryInput struct {
	ItemID int64 `json:"item_id"`
}

type SchedulingInput struct {
	Enabled       bool              `json:"enabled"`
	AutoPost      bool              `json:"auto_post"`
	StartAt       time.Time         `json:"start_at"`
	EndAt         *time.Time        `json:"end_at"`
	Interval      string            `json:"interval"`
	IntervalHours int               `json:"interval_hours"`
	PostingTime   *models.ClockTime `json:"posting_time"`
}

type QueueStatusResponse struct {
	ID        int64             `json:"id"`
	Status    string            `json:"status"`
	Stats     models.QueueStats `json:"stats"`
	NextDueAt *time.Time        `json:"next_due_at,omitempty"`
}

type QueueReorderInput struct {
	EntryIDs []int64 `json:"entry_ids"`
}
