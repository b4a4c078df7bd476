package publisher

import (
	"context"
	"time"

	"github.com/queueflow/queueflow/internal/connection"
	"github.com/queueflow/queueflow/internal/models"
)

// ErrorKind classifies an expected publish failure. Publishers encode
// remote and precondition failures as kinds on the Result, never as
// returned errors.
type ErrorKind string

const (
	ErrCredentialInvalid   ErrorKind = "credential_invalid"
	ErrUnsupportedMedia    ErrorKind = "unsupported_media"
	ErrUnsupportedPlatform ErrorKind = "unsupported_platform"
	ErrTransport           ErrorKind = "transport"
	ErrRemoteRejected      ErrorKind = "remote_rejected"
	ErrProcessingFailed    ErrorKind = "processing_failed"
	ErrTimeout             ErrorKind = "timeout"
)

// Retryable reports whether a failure of this kind may succeed on a
// plain retry with the same payload.
func (k ErrorKind) Retryable() bool {
	return k == ErrTransport || k == ErrTimeout
}

// Result is the per-platform outcome of one publish attempt.
type Result struct {
	Platform        models.Platform `json:"platform"`
	Success         bool            `json:"success"`
	ExternalPostID  string          `json:"external_post_id,omitempty"`
	ExternalPostURL string          `json:"external_post_url,omitempty"`
	ErrorKind       ErrorKind       `json:"error_kind,omitempty"`
	Message         string          `json:"message,omitempty"`
}

// Publisher executes the publish protocol for one platform. It never
// persists anything; it is a pure request/response executor.
type Publisher interface {
	Platform() models.Platform
	Accepts(kind models.MediaKind) bool
	Publish(ctx context.Context, conn connection.EffectiveConnection, item *models.ContentItem) Result
}

// Registry maps each supported platform to its publisher.
type Registry map[models.Platform]Publisher

func NewRegistry(pubs ...Publisher) Registry {
	r := make(Registry, len(pubs))
	for _, p := range pubs {
		r[p.Platform()] = p
	}
	return r
}

func (r Registry) Get(platform models.Platform) (Publisher, bool) {
	p, ok := r[platform]
	return p, ok
}

// MediaFetcher resolves a stored object key to its raw bytes. The
// TikTok publisher needs bytes; Instagram only needs the public URL.
type MediaFetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

func success(platform models.Platform, postID, postURL string) Result {
	return Result{
		Platform:        platform,
		Success:         true,
		ExternalPostID:  postID,
		ExternalPostURL: postURL,
	}
}

func failure(platform models.Platform, kind ErrorKind, message string) Result {
	return Result{
		Platform:  platform,
		ErrorKind: kind,
		Message:   message,
	}
}

// checkConnection enforces the shared precondition: a known-bad
// credential short-circuits before any remote call is made.
func checkConnection(platform models.Platform, conn connection.EffectiveConnection) (Result, bool) {
	if !conn.Connected {
		return failure(platform, ErrCredentialInvalid, "platform not connected"), false
	}
	if conn.Expired(time.Now()) {
		return failure(platform, ErrCredentialInvalid, "access token expired"), false
	}
	return Result{}, true
}
