package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/queueflow/queueflow/internal/connection"
	"github.com/queueflow/queueflow/internal/models"
	"github.com/queueflow/queueflow/internal/transfer"
)

const defaultInstagramBaseURL = "https://graph.instagram.com/v21.0"

// InstagramPublisher runs the synchronous container/publish/permalink
// protocol. Every step is a single request; no server-side processing
// wait is required between steps.
type InstagramPublisher struct {
	baseURL string
	client  *http.Client
}

type InstagramConfig struct {
	BaseURL string
	Client  *http.Client
}

func NewInstagramPublisher(cfg InstagramConfig) *InstagramPublisher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultInstagramBaseURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &InstagramPublisher{baseURL: cfg.BaseURL, client: cfg.Client}
}

func (p *InstagramPublisher) Platform() models.Platform {
	return models.PlatformInstagram
}

func (p *InstagramPublisher) Accepts(kind models.MediaKind) bool {
	return kind == models.MediaKindImage || kind == models.MediaKindMultiImage
}

func (p *InstagramPublisher) Publish(ctx context.Context, conn connection.EffectiveConnection, item *models.ContentItem) Result {
	if res, ok := checkConnection(models.PlatformInstagram, conn); !ok {
		return res
	}
	if !p.Accepts(item.MediaKind) {
		return failure(models.PlatformInstagram, ErrUnsupportedMedia,
			fmt.Sprintf("instagram does not accept %s media", item.MediaKind))
	}

	containerID, res := p.createContainer(ctx, conn, item)
	if res != nil {
		return *res
	}

	mediaID, res := p.publishContainer(ctx, conn, containerID)
	if res != nil {
		return *res
	}

	permalink, err := p.fetchPermalink(ctx, conn, mediaID)
	if err != nil {
		// The post exists at this point; a failed permalink lookup
		// should not turn a published post into a failure.
		slog.Info("instagram permalink fetch failed", "media_id", mediaID, "error", err)
	}

	return success(models.PlatformInstagram, mediaID, permalink)
}

func (p *InstagramPublisher) createContainer(ctx context.Context, conn connection.EffectiveConnection, item *models.ContentItem) (string, *Result) {
	if item.MediaKind == models.MediaKindImage {
		return p.requestContainer(ctx, conn, transfer.InstagramContainerRequest{
			ImageURL:    item.FileURL,
			Caption:     item.Caption,
			AccessToken: conn.AccessToken,
		})
	}

	// Carousel: one container per image, then a parent container
	// referencing the children.
	urls := append([]string{item.FileURL}, item.ExtraURLs...)
	children := make([]string, 0, len(urls))
	for _, u := range urls {
		id, res := p.requestContainer(ctx, conn, transfer.InstagramContainerRequest{
			ImageURL:       u,
			IsCarouselItem: true,
			AccessToken:    conn.AccessToken,
		})
		if res != nil {
			return "", res
		}
		children = append(children, id)
	}

	return p.requestContainer(ctx, conn, transfer.InstagramContainerRequest{
		MediaType:   "CAROUSEL",
		Caption:     item.Caption,
		Children:    children,
		AccessToken: conn.AccessToken,
	})
}

func (p *InstagramPublisher) requestContainer(ctx context.Context, conn connection.EffectiveConnection, payload transfer.InstagramContainerRequest) (string, *Result) {
	url := fmt.Sprintf("%s/%s/media", p.baseURL, conn.ExternalUserID)

	var result transfer.InstagramContainerResponse
	if res := p.postJSON(ctx, url, payload, &result); res != nil {
		return "", res
	}
	if result.ID == "" {
		res := failure(models.PlatformInstagram, ErrRemoteRejected, "no container ID returned from Instagram")
		return "", &res
	}
	return result.ID, nil
}

func (p *InstagramPublisher) publishContainer(ctx context.Context, conn connection.EffectiveConnection, containerID string) (string, *Result) {
	url := fmt.Sprintf("%s/%s/media_publish", p.baseURL, conn.ExternalUserID)
	payload := transfer.InstagramPublishRequest{
		CreationID:  containerID,
		AccessToken: conn.AccessToken,
	}

	var result transfer.InstagramPublishResponse
	if res := p.postJSON(ctx, url, payload, &result); res != nil {
		return "", res
	}
	if result.ID == "" {
		res := failure(models.PlatformInstagram, ErrRemoteRejected, "no media ID returned from Instagram")
		return "", &res
	}
	return result.ID, nil
}

func (p *InstagramPublisher) fetchPermalink(ctx context.Context, conn connection.EffectiveConnection, mediaID string) (string, error) {
	url := fmt.Sprintf("%s/%s?fields=permalink&access_token=%s", p.baseURL, mediaID, conn.AccessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code from Instagram: %d", resp.StatusCode)
	}

	var result transfer.InstagramPermalinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Permalink, nil
}

// postJSON issues one protocol step and maps its failure modes: network
// errors to Transport, remote non-200 responses to RemoteRejected with
// the remote message attached.
func (p *InstagramPublisher) postJSON(ctx context.Context, url string, payload, out any) *Result {
	body, err := json.Marshal(payload)
	if err != nil {
		res := failure(models.PlatformInstagram, ErrRemoteRejected, fmt.Sprintf("error marshalling payload: %v", err))
		return &res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		res := failure(models.PlatformInstagram, ErrTransport, err.Error())
		return &res
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		res := failure(models.PlatformInstagram, ErrTransport, err.Error())
		return &res
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		res := failure(models.PlatformInstagram, ErrTransport, err.Error())
		return &res
	}

	if resp.StatusCode != http.StatusOK {
		res := failure(models.PlatformInstagram, ErrRemoteRejected, instagramErrorMessage(resp.StatusCode, respBody))
		return &res
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		res := failure(models.PlatformInstagram, ErrRemoteRejected, fmt.Sprintf("error parsing response: %v", err))
		return &res
	}
	return nil
}

func instagramErrorMessage(status int, body []byte) string {
	var errResp transfer.InstagramErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return fmt.Sprintf("unexpected status code from Instagram: %d", status)
}
