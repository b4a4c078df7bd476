package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/queueflow/queueflow/internal/models"
)

var ErrProfileNotFound = errors.New("profile not found")

type ProfileRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Profile, error)
	GetCredential(ctx context.Context, profileID int64, platform models.Platform) (*models.ProfileCredential, error)
	SetOwnCredential(ctx context.Context, cred *models.ProfileCredential) error
	SetUseParent(ctx context.Context, profileID int64, platform models.Platform) error
	SetToken(ctx context.Context, profileID int64, platform models.Platform, accessToken, refreshToken string, expiresAt time.Time) error
	ListExpiringCredentials(ctx context.Context, initialTime, finalTime time.Time) ([]*models.ProfileCredential, error)
}

type profileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) GetByID(ctx context.Context, id int64) (*models.Profile, error) {
	query := `SELECT id, account_id, name, created_at, updated_at FROM profiles WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var p models.Profile
	err := row.Scan(&p.ID, &p.AccountID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &p, nil
}

func (r *profileRepository) GetCredential(ctx context.Context, profileID int64, platform models.Platform) (*models.ProfileCredential, error) {
	query := `SELECT id, profile_id, platform, use_parent, connected, access_token, refresh_token,
			external_user_id, external_username, token_expires_at, created_at, updated_at
			FROM profile_credentials
			WHERE profile_id = $1 AND platform = $2`
	row := r.db.QueryRowContext(ctx, query, profileID, platform)

	var c models.ProfileCredential
	err := row.Scan(&c.ID, &c.ProfileID, &c.Platform, &c.UseParent, &c.Connected, &c.AccessToken,
		&c.RefreshToken, &c.ExternalUserID, &c.ExternalUsername, &c.TokenExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &c, nil
}

// SetOwnCredential installs a profile-owned credential and clears any
// parent delegation for the platform in the same statement, keeping the
// one-active-mode invariant.
func (r *profileRepository) SetOwnCredential(ctx context.Context, cred *models.ProfileCredential) error {
	query := `INSERT INTO profile_credentials(
				profile_id, platform, use_parent, connected, access_token, refresh_token,
				external_user_id, external_username, token_expires_at)
			VALUES ($1, $2, FALSE, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (profile_id, platform) DO UPDATE SET
				use_parent = FALSE,
				connected = EXCLUDED.connected,
				access_token = EXCLUDED.access_token,
				refresh_token = EXCLUDED.refresh_token,
				external_user_id = EXCLUDED.external_user_id,
				external_username = EXCLUDED.external_username,
				token_expires_at = EXCLUDED.token_expires_at,
				updated_at = CURRENT_TIMESTAMP`

	_, err := r.db.ExecContext(ctx, query,
		cred.ProfileID, cred.Platform, cred.Connected, cred.AccessToken, cred.RefreshToken,
		cred.ExternalUserID, cred.ExternalUsername, cred.TokenExpiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// SetUseParent flips the platform to parent delegation and wipes the
// profile-owned token fields so no stale credential can resurface.
func (r *profileRepository) SetUseParent(ctx context.Context, profileID int64, platform models.Platform) error {
	query := `INSERT INTO profile_credentials(profile_id, platform, use_parent, connected)
			VALUES ($1, $2, TRUE, FALSE)
			ON CONFLICT (profile_id, platform) DO UPDATE SET
				use_parent = TRUE,
				connected = FALSE,
				access_token = '',
				refresh_token = '',
				external_user_id = '',
				external_username = '',
				token_expires_at = to_timestamp(0),
				updated_at = CURRENT_TIMESTAMP`

	_, err := r.db.ExecContext(ctx, query, profileID, platform)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *profileRepository) SetToken(ctx context.Context, profileID int64, platform models.Platform, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `UPDATE profile_credentials
			SET access_token = $3,
				refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
				token_expires_at = $5,
				updated_at = CURRENT_TIMESTAMP
			WHERE profile_id = $1 AND platform = $2 AND use_parent = FALSE`

	_, err := r.db.ExecContext(ctx, query, profileID, platform, accessToken, refreshToken, expiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *profileRepository) ListExpiringCredentials(ctx context.Context, initialTime, finalTime time.Time) ([]*models.ProfileCredential, error) {
	query := `SELECT id, profile_id, platform, access_token, refresh_token, token_expires_at
			FROM profile_credentials
			WHERE connected = TRUE AND use_parent = FALSE
			AND (token_expires_at BETWEEN $1 AND $2 OR token_expires_at < $1)`

	rows, err := r.db.QueryContext(ctx, query, initialTime, finalTime)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var creds []*models.ProfileCredential
	for rows.Next() {
		var c models.ProfileCredential
		err := rows.Scan(&c.ID, &c.ProfileID, &c.Platform, &c.AccessToken, &c.RefreshToken, &c.TokenExpiresAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		creds = append(creds, &c)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return creds, nil
}
