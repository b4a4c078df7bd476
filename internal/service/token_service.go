package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	config "github.com/queueflow/queueflow/configs"
	"github.com/queueflow/queueflow/internal/models"
	"github.com/queueflow/queueflow/internal/repository"
	"github.com/queueflow/queueflow/internal/transfer"
	"github.com/queueflow/queueflow/pkg/utils"
)

type TokenService interface {
	RefreshProfileToken(ctx context.Context, cred *models.ProfileCredential) error
	RefreshAccountToken(ctx context.Context, cred *models.AccountCredential) error
}

type TokenConfig struct {
	InstagramBaseURL string
	TiktokBaseURL    string
	Client           *http.Client
}

type tokenService struct {
	cfg config.Config
	pr  repository.ProfileRepository
	ar  repository.AccountRepository

	instagramBaseURL string
	tiktokBaseURL    string
	client           *http.Client

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewTokenService(cfg config.Config, pr repository.ProfileRepository, ar repository.AccountRepository, tc TokenConfig) TokenService {
	if tc.InstagramBaseURL == "" {
		tc.InstagramBaseURL = "https://graph.instagram.com"
	}
	if tc.TiktokBaseURL == "" {
		tc.TiktokBaseURL = "https://open.tiktokapis.com/v2"
	}
	if tc.Client == nil {
		tc.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &tokenService{
		cfg:              cfg,
		pr:               pr,
		ar:               ar,
		instagramBaseURL: tc.InstagramBaseURL,
		tiktokBaseURL:    tc.TiktokBaseURL,
		client:           tc.Client,
		locks:            make(map[string]*sync.Mutex),
	}
}

// ownerLock serializes refreshes per credential so two overlapping
// refresh runs cannot both spend the same single-use refresh token.
func (s *tokenService) ownerLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *tokenService) RefreshProfileToken(ctx context.Context, cred *models.ProfileCredential) error {
	lock := s.ownerLock(fmt.Sprintf("profile:%d:%s", cred.ProfileID, cred.Platform))
	lock.Lock()
	defer lock.Unlock()

	accessToken, refreshToken, expiresAt, err := s.refresh(ctx, cred.Platform, cred.AccessToken, cred.RefreshToken)
	if err != nil {
		return err
	}
	return s.pr.SetToken(ctx, cred.ProfileID, cred.Platform, accessToken, refreshToken, expiresAt)
}

func (s *tokenService) RefreshAccountToken(ctx context.Context, cred *models.AccountCredential) error {
	lock := s.ownerLock(fmt.Sprintf("account:%d:%s", cred.AccountID, cred.Platform))
	lock.Lock()
	defer lock.Unlock()

	accessToken, refreshToken, expiresAt, err := s.refresh(ctx, cred.Platform, cred.AccessToken, cred.RefreshToken)
	if err != nil {
		return err
	}
	return s.ar.SetToken(ctx, cred.AccountID, cred.Platform, accessToken, refreshToken, expiresAt)
}

func (s *tokenService) refresh(ctx context.Context, platform models.Platform, accessToken, refreshToken string) (string, string, time.Time, error) {
	switch platform {
	case models.PlatformInstagram:
		return s.refreshInstagram(ctx, accessToken)
	case models.PlatformTiktok:
		return s.refreshTiktok(ctx, refreshToken)
	}
	return "", "", time.Time{}, fmt.Errorf("unknown platform %q", platform)
}

// refreshInstagram extends a long-lived token. Instagram has no
// separate refresh token, the access token refreshes itself.
func (s *tokenService) refreshInstagram(ctx context.Context, encryptedAccessToken string) (string, string, time.Time, error) {
	accessToken, err := utils.Decrypt(encryptedAccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return "", "", time.Time{}, err
	}

	refreshURL := fmt.Sprintf(
		"%s/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		s.instagramBaseURL, accessToken,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, refreshURL, nil)
	if err != nil {
		return "", "", time.Time{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		slog.Info(string(bodyBytes))
		return "", "", time.Time{}, fmt.Errorf("instagram token refresh returned status %d", resp.StatusCode)
	}

	var result transfer.InstagramTokenRefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", time.Time{}, err
	}
	if result.AccessToken == "" {
		return "", "", time.Time{}, errors.New("instagram token refresh returned no token")
	}

	expiresAt := time.Now().Add(time.Second * time.Duration(result.ExpiresIn))

	encrypted, err := utils.Encrypt([]byte(result.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return "", "", time.Time{}, err
	}
	return encrypted, "", expiresAt, nil
}

func (s *tokenService) refreshTiktok(ctx context.Context, encryptedRefreshToken string) (string, string, time.Time, error) {
	refreshToken, err := utils.Decrypt(encryptedRefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return "", "", time.Time{}, err
	}

	data := url.Values{}
	data.Set("client_key", s.cfg.TiktokClientKey)
	data.Set("client_secret", s.cfg.TiktokClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tiktokBaseURL+"/oauth/token/", bytes.NewBufferString(data.Encode()))
	if err != nil {
		return "", "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		slog.Info(string(bodyBytes))
		return "", "", time.Time{}, fmt.Errorf("tiktok token refresh returned status %d", resp.StatusCode)
	}

	var tokenResponse transfer.TiktokTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return "", "", time.Time{}, err
	}
	if tokenResponse.AccessToken == "" {
		return "", "", time.Time{}, errors.New("tiktok token refresh returned no token")
	}

	expiresAt := time.Now().Add(time.Second * time.Duration(tokenResponse.ExpiresIn))

	encryptedAccessToken, err := utils.Encrypt([]byte(tokenResponse.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return "", "", time.Time{}, err
	}
	encryptedNewRefreshToken, err := utils.Encrypt([]byte(tokenResponse.RefreshToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return "", "", time.Time{}, err
	}
	return encryptedAccessToken, encryptedNewRefreshToken, expiresAt, nil
}
