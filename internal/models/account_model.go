package models

import "time"

type Account struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AccountCredential is the parent-level connection for one platform.
// Access and refresh tokens are stored AES-GCM encrypted.
type AccountCredential struct {
	ID               int64     `db:"id" json:"id"`
	AccountID        int64     `db:"account_id" json:"account_id"`
	Platform         Platform  `db:"platform" json:"platform"`
	Connected        bool      `db:"connected" json:"connected"`
	AccessToken      string    `db:"access_token" json:"-"`
	RefreshToken     string    `db:"refresh_token" json:"-"`
	ExternalUserID   string    `db:"external_user_id" json:"external_user_id"`
	ExternalUsername string    `db:"external_username" json:"external_username"`
	TokenExpiresAt   time.Time `db:"token_expires_at" json:"token_expires_at"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
