package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/queueflow/queueflow/internal/connection"
	"github.com/queueflow/queueflow/internal/models"
	"github.com/queueflow/queueflow/internal/transfer"
)

const (
	defaultTiktokBaseURL      = "https://open.tiktokapis.com/v2"
	defaultTiktokPollInterval = 5 * time.Second
	defaultTiktokPollBudget   = 3 * time.Minute
)

const (
	tiktokStatusProcessing = "PROCESSING"
	tiktokStatusUploaded   = "UPLOAD_COMPLETE"
	tiktokStatusFailed     = "FAILED"
)

// TiktokPublisher runs the asynchronous init/upload/poll/commit
// protocol. The remote processes the uploaded video server-side; the
// poll loop waits on a fixed interval under a wall-clock budget.
type TiktokPublisher struct {
	baseURL      string
	client       *http.Client
	media        MediaFetcher
	pollInterval time.Duration
	pollBudget   time.Duration
}

type TiktokConfig struct {
	BaseURL      string
	Client       *http.Client
	Media        MediaFetcher
	PollInterval time.Duration
	PollBudget   time.Duration
}

func NewTiktokPublisher(cfg TiktokConfig) *TiktokPublisher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTiktokBaseURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultTiktokPollInterval
	}
	if cfg.PollBudget <= 0 {
		cfg.PollBudget = defaultTiktokPollBudget
	}
	return &TiktokPublisher{
		baseURL:      cfg.BaseURL,
		client:       cfg.Client,
		media:        cfg.Media,
		pollInterval: cfg.PollInterval,
		pollBudget:   cfg.PollBudget,
	}
}

func (p *TiktokPublisher) Platform() models.Platform {
	return models.PlatformTiktok
}

func (p *TiktokPublisher) Accepts(kind models.MediaKind) bool {
	return kind == models.MediaKindVideo
}

func (p *TiktokPublisher) Publish(ctx context.Context, conn connection.EffectiveConnection, item *models.ContentItem) Result {
	if res, ok := checkConnection(models.PlatformTiktok, conn); !ok {
		return res
	}
	if !p.Accepts(item.MediaKind) {
		return failure(models.PlatformTiktok, ErrUnsupportedMedia,
			fmt.Sprintf("tiktok does not accept %s media", item.MediaKind))
	}

	video, err := p.media.Fetch(ctx, item.ObjectKey)
	if err != nil {
		slog.Info(err.Error())
		return failure(models.PlatformTiktok, ErrTransport, fmt.Sprintf("fetching media: %v", err))
	}

	publishID, uploadURL, res := p.initUpload(ctx, conn, item, int64(len(video)))
	if res != nil {
		return *res
	}

	if res := p.upload(ctx, uploadURL, video); res != nil {
		return *res
	}

	if res := p.waitForProcessing(ctx, conn, publishID); res != nil {
		return *res
	}

	postID, res := p.commit(ctx, conn, publishID)
	if res != nil {
		return *res
	}

	postURL := ""
	if conn.ExternalUsername != "" {
		postURL = fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", conn.ExternalUsername, postID)
	}
	return success(models.PlatformTiktok, postID, postURL)
}

func (p *TiktokPublisher) initUpload(ctx context.Context, conn connection.EffectiveConnection, item *models.ContentItem, size int64) (publishID, uploadURL string, res *Result) {
	payload := transfer.TiktokInitRequest{
		PostInfo: transfer.TiktokVideoPostInfo{
			Title:                 item.Caption,
			PrivacyLevel:          "PUBLIC_TO_EVERYONE",
			VideoCoverTimestampMs: 1000,
		},
		SourceInfo: transfer.TiktokVideoSourceInfo{
			Source:          "FILE_UPLOAD",
			VideoSize:       size,
			ChunkSize:       size,
			TotalChunkCount: 1,
		},
	}

	var result transfer.TiktokInitResponse
	if res := p.postJSON(ctx, p.baseURL+"/post/publish/video/init/", conn.AccessToken, payload, &result); res != nil {
		return "", "", res
	}
	if !result.Error.OK() {
		r := failure(models.PlatformTiktok, ErrRemoteRejected, result.Error.Message)
		return "", "", &r
	}
	if result.Data.PublishID == "" || result.Data.UploadURL == "" {
		r := failure(models.PlatformTiktok, ErrRemoteRejected, "no upload target returned from TikTok")
		return "", "", &r
	}
	return result.Data.PublishID, result.Data.UploadURL, nil
}

func (p *TiktokPublisher) upload(ctx context.Context, uploadURL string, video []byte) *Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(video))
	if err != nil {
		res := failure(models.PlatformTiktok, ErrTransport, err.Error())
		return &res
	}
	req.Header.Set("Content-Type", "video/mp4")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", len(video)-1, len(video)))

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		res := failure(models.PlatformTiktok, ErrTransport, err.Error())
		return &res
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		res := failure(models.PlatformTiktok, ErrRemoteRejected,
			fmt.Sprintf("unexpected status code from upload target: %d", resp.StatusCode))
		return &res
	}
	return nil
}

// waitForProcessing polls the publish status until the remote reports a
// terminal state or the wall-clock budget runs out. The interval wait is
// a timer, never a spin loop.
func (p *TiktokPublisher) waitForProcessing(ctx context.Context, conn connection.EffectiveConnection, publishID string) *Result {
	deadline := time.Now().Add(p.pollBudget)

	for {
		status, failReason, res := p.fetchStatus(ctx, conn, publishID)
		if res != nil {
			return res
		}

		switch status {
		case tiktokStatusUploaded:
			return nil
		case tiktokStatusFailed:
			res := failure(models.PlatformTiktok, ErrProcessingFailed, failReason)
			return &res
		}

		if !time.Now().Add(p.pollInterval).Before(deadline) {
			res := failure(models.PlatformTiktok, ErrTimeout,
				fmt.Sprintf("processing did not finish within %s", p.pollBudget))
			return &res
		}

		select {
		case <-ctx.Done():
			res := failure(models.PlatformTiktok, ErrTimeout, ctx.Err().Error())
			return &res
		case <-time.After(p.pollInterval):
		}
	}
}

func (p *TiktokPublisher) fetchStatus(ctx context.Context, conn connection.EffectiveConnection, publishID string) (status, failReason string, res *Result) {
	var result transfer.TiktokStatusResponse
	if res := p.postJSON(ctx, p.baseURL+"/post/publish/status/fetch/", conn.AccessToken,
		transfer.TiktokStatusRequest{PublishID: publishID}, &result); res != nil {
		return "", "", res
	}
	if !result.Error.OK() {
		r := failure(models.PlatformTiktok, ErrRemoteRejected, result.Error.Message)
		return "", "", &r
	}
	return result.Data.Status, result.Data.FailReason, nil
}

func (p *TiktokPublisher) commit(ctx context.Context, conn connection.EffectiveConnection, publishID string) (string, *Result) {
	var result transfer.TiktokCommitResponse
	if res := p.postJSON(ctx, p.baseURL+"/post/publish/commit/", conn.AccessToken,
		transfer.TiktokCommitRequest{PublishID: publishID}, &result); res != nil {
		return "", res
	}
	if !result.Error.OK() {
		r := failure(models.PlatformTiktok, ErrRemoteRejected, result.Error.Message)
		return "", &r
	}
	return result.Data.PostID, nil
}

func (p *TiktokPublisher) postJSON(ctx context.Context, url, accessToken string, payload, out any) *Result {
	body, err := json.Marshal(payload)
	if err != nil {
		res := failure(models.PlatformTiktok, ErrRemoteRejected, fmt.Sprintf("error marshalling payload: %v", err))
		return &res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		res := failure(models.PlatformTiktok, ErrTransport, err.Error())
		return &res
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		res := failure(models.PlatformTiktok, ErrTransport, err.Error())
		return &res
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		res := failure(models.PlatformTiktok, ErrRemoteRejected, fmt.Sprintf("error parsing response: %v", err))
		return &res
	}

	if resp.StatusCode != http.StatusOK {
		res := failure(models.PlatformTiktok, ErrRemoteRejected,
			fmt.Sprintf("unexpected status code from TikTok: %d", resp.StatusCode))
		return &res
	}
	return nil
}
