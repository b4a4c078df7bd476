package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/queueflow/queueflow/internal/models"
)

type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetCredential(ctx context.Context, accountID int64, platform models.Platform) (*models.AccountCredential, error)
	UpsertCredential(ctx context.Context, cred *models.AccountCredential) error
	SetToken(ctx context.Context, accountID int64, platform models.Platform, accessToken, refreshToken string, expiresAt time.Time) error
	ListExpiringCredentials(ctx context.Context, initialTime, finalTime time.Time) ([]*models.AccountCredential, error)
}

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT id, name, email, created_at, updated_at FROM accounts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var a models.Account
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) GetCredential(ctx context.Context, accountID int64, platform models.Platform) (*models.AccountCredential, error) {
	query := `SELECT id, account_id, platform, connected, access_token, refresh_token,
			external_user_id, external_username, token_expires_at, created_at, updated_at
			FROM account_credentials
			WHERE account_id = $1 AND platform = $2`
	row := r.db.QueryRowContext(ctx, query, accountID, platform)

	var c models.AccountCredential
	err := row.Scan(&c.ID, &c.AccountID, &c.Platform, &c.Connected, &c.AccessToken, &c.RefreshToken,
		&c.ExternalUserID, &c.ExternalUsername, &c.TokenExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &c, nil
}

func (r *accountRepository) UpsertCredential(ctx context.Context, cred *models.AccountCredential) error {
	query := `INSERT INTO account_credentials(
				account_id, platform, connected, access_token, refresh_token,
				external_user_id, external_username, token_expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (account_id, platform) DO UPDATE SET
				connected = EXCLUDED.connected,
				access_token = EXCLUDED.access_token,
				refresh_token = EXCLUDED.refresh_token,
				external_user_id = EXCLUDED.external_user_id,
				external_username = EXCLUDED.external_username,
				token_expires_at = EXCLUDED.token_expires_at,
				updated_at = CURRENT_TIMESTAMP`

	_, err := r.db.ExecContext(ctx, query,
		cred.AccountID, cred.Platform, cred.Connected, cred.AccessToken, cred.RefreshToken,
		cred.ExternalUserID, cred.ExternalUsername, cred.TokenExpiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) SetToken(ctx context.Context, accountID int64, platform models.Platform, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `UPDATE account_credentials
			SET access_token = $3,
				refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
				token_expires_at = $5,
				updated_at = CURRENT_TIMESTAMP
			WHERE account_id = $1 AND platform = $2`

	_, err := r.db.ExecContext(ctx, query, accountID, platform, accessToken, refreshToken, expiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) ListExpiringCredentials(ctx context.Context, initialTime, finalTime time.Time) ([]*models.AccountCredential, error) {
	query := `SELECT id, account_id, platform, access_token, refresh_token, token_expires_at
			FROM account_credentials
			WHERE connected = TRUE
			AND (token_expires_at BETWEEN $1 AND $2 OR token_expires_at < $1)`

	rows, err := r.db.QueryContext(ctx, query, initialTime, finalTime)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var creds []*models.AccountCredential
	for rows.Next() {
		var c models.AccountCredential
		err := rows.Scan(&c.ID, &c.AccountID, &c.Platform, &c.AccessToken, &c.RefreshToken, &c.TokenExpiresAt)
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
