package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/queueflow/queueflow/internal/models"
	"github.com/queueflow/queueflow/internal/repository"
	"github.com/queueflow/queueflow/internal/service"
)

// TokenRefreshJob renews credentials expiring within the lookahead
// window. Profile-owned and account-level credentials are refreshed
// independently; a profile delegating to its parent has no token of its
// own to renew.
type TokenRefreshJob struct {
	pr repository.ProfileRepository
	ar repository.AccountRepository
	ts service.TokenService
}

func NewTokenRefreshJob(
	pr repository.ProfileRepository,
	ar repository.AccountRepository,
	ts service.TokenService) *TokenRefreshJob {
	return &TokenRefreshJob{
		pr: pr,
		ar: ar,
		ts: ts,
	}
}

func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	profileCreds, err := c.pr.ListExpiringCredentials(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	accountCreds, err := c.ar.ListExpiringCredentials(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, cred := range profileCreds {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(cred *models.ProfileCredential) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.ts.RefreshProfileToken(ctx, cred); err != nil {
				slog.Info("Unable to refresh " + string(cred.Platform) + " token for profile")
			}
		}(cred)
	}

	for _, cred := range accountCreds {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(cred *models.AccountCredential) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.ts.RefreshAccountToken(ctx, cred); err != nil {
				slog.Info("Unable to refresh " + string(cred.Platform) + " token for account")
			}
		}(cred)
	}

	wg.Wait()
}
