package models

import "time"

type Profile struct {
	ID        int64     `db:"id" json:"id"`
	AccountID int64     `db:"account_id" json:"account_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProfileCredential is a profile's connection record for one platform.
// Exactly one of {own credential, parent delegation} is active at a time:
// setting UseParent clears the token fields and vice versa.
type ProfileCredential struct {
	ID               int64     `db:"id" json:"id"`
	ProfileID        int64     `db:"profile_id" json:"profile_id"`
	Platform         Platform  `db:"platform" json:"platform"`
	UseParent        bool      `db:"use_parent" json:"use_parent"`
	Connected        bool      `db:"connected" json:"connected"`
	AccessToken      string    `db:"access_token" json:"-"`
	RefreshToken     string    `db:"refresh_token" json:"-"`
	ExternalUserID   string    `db:"external_user_id" json:"external_user_id"`
	ExternalUsername string    `db:"external_username" json:"external_username"`
	TokenExpiresAt   time.Time `db:"token_expires_at" json:"token_expires_at"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
