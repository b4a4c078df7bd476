package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	config "github.com/queueflow/queueflow/configs"
	"github.com/queueflow/queueflow/internal/connection"
	"github.com/queueflow/queueflow/internal/models"
	"github.com/queueflow/queueflow/internal/repository"
	"github.com/queueflow/queueflow/internal/transfer"
	"github.com/queueflow/queueflow/pkg/utils"
)

type ConnectionService interface {
	Resolve(ctx context.Context, profileID int64, platform models.Platform) (connection.EffectiveConnection, error)
	SetOwnCredential(ctx context.Context, profileID int64, platform models.Platform, input *transfer.CredentialInput) error
	UseParentConnection(ctx context.Context, profileID int64, platform models.Platform) error
}

type connectionService struct {
	cfg config.Config
	pr  repository.ProfileRepository
	ar  repository.AccountRepository
}

func NewConnectionService(cfg config.Config, pr repository.ProfileRepository, ar repository.AccountRepository) ConnectionService {
	return &connectionService{cfg: cfg, pr: pr, ar: ar}
}

// Resolve produces the effective connection for one profile+platform,
// with the stored access token decrypted and ready for remote calls. A
// disconnected platform is a normal result; only a missing profile is
// an error.
func (s *connectionService) Resolve(ctx context.Context, profileID int64, platform models.Platform) (connection.EffectiveConnection, error) {
	if !platform.Valid() {
		return connection.EffectiveConnection{}, fmt.Errorf("unknown platform %q", platform)
	}

	profile, err := s.pr.GetByID(ctx, profileID)
	if err != nil {
		return connection.EffectiveConnection{}, err
	}
	if profile == nil {
		return connection.EffectiveConnection{}, repository.ErrProfileNotFound
	}

	own, err := s.pr.GetCredential(ctx, profileID, platform)
	if err != nil {
		return connection.EffectiveConnection{}, err
	}

	parent, err := s.ar.GetCredential(ctx, profile.AccountID, platform)
	if err != nil {
		return connection.EffectiveConnection{}, err
	}

	conn := connection.Resolve(platform, own, parent)
	if !conn.Connected {
		return conn, nil
	}

	accessToken, err := utils.Decrypt(conn.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		slog.Info(err.Error())
		return connection.EffectiveConnection{}, fmt.Errorf("decrypting access token: %w", err)
	}
	conn.AccessToken = accessToken
	conn.RefreshToken = ""
	return conn, nil
}

// SetOwnCredential stores a profile-owned connection. Any parent
// delegation for the platform is cleared by the write itself.
func (s *connectionService) SetOwnCredential(ctx context.Context, profileID int64, platform models.Platform, input *transfer.CredentialInput) error {
	if !platform.Valid() {
		return fmt.Errorf("unknown platform %q", platform)
	}
	if input == nil || input.AccessToken == "" {
		err := errors.New("access token is required")
		slog.Info(err.Error())
		return err
	}

	profile, err := s.pr.GetByID(ctx, profileID)
	if err != nil {
		return err
	}
	if profile == nil {
		return repository.ErrProfileNotFound
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(input.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	encryptedRefreshToken := ""
	if input.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(input.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return err
		}
	}

	// A credential with no stated lifetime stays at the zero time,
	// which the resolver treats as non-expiring.
	expiresAt := input.ExpiresAt
	if expiresAt.IsZero() && input.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(input.ExpiresIn) * time.Second)
	}

	return s.pr.SetOwnCredential(ctx, &models.ProfileCredential{
		ProfileID:        profileID,
		Platform:         platform,
		Connected:        true,
		AccessToken:      encryptedAccessToken,
		RefreshToken:     encryptedRefreshToken,
		ExternalUserID:   input.ExternalUserID,
		ExternalUsername: input.ExternalUsername,
		TokenExpiresAt:   expiresAt,
	})
}

// UseParentConnection switches the platform to the owning account's
// credential, discarding the profile's own one.
func (s *connectionService) UseParentConnection(ctx context.Context, profileID int64, platform models.Platform) error {
	if !platform.Valid() {
		return fmt.Errorf("unknown platform %q", platform)
	}

	profile, err := s.pr.GetByID(ctx, profileID)
	if err != nil {
		return err
	}
	if profile == nil {
		return repository.ErrProfileNotFound
	}

	return s.pr.SetUseParent(ctx, profileID, platform)
}
