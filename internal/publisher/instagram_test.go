package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queueflow/queueflow/internal/connection"
	"github.com/queueflow/queueflow/internal/models"
)

func igConnection() connection.EffectiveConnection {
	return connection.EffectiveConnection{
		Connected:      true,
		Platform:       models.PlatformInstagram,
		AccessToken:    "ig-token",
		ExternalUserID: "17890",
		Source:         connection.SourceOwn,
	}
}

func imageItem() *models.ContentItem {
	return &models.ContentItem{
		ID:        1,
		ProfileID: 1,
		Caption:   "hello world",
		MediaKind: models.MediaKindImage,
		FileURL:   "https://cdn.example.com/img.jpg",
	}
}

func TestInstagramPublish_SingleImage(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Path {
		case "/17890/media":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "https://cdn.example.com/img.jpg", req["image_url"])
			assert.Equal(t, "hello world", req["caption"])
			assert.Equal(t, "ig-token", req["access_token"])
			json.NewEncoder(w).Encode(map[string]string{"id": "container-1"})
		case "/17890/media_publish":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "container-1", req["creation_id"])
			json.NewEncoder(w).Encode(map[string]string{"id": "media-9"})
		case "/media-9":
			assert.Equal(t, "permalink", r.URL.Query().Get("fields"))
			json.NewEncoder(w).Encode(map[string]string{"id": "media-9", "permalink": "https://www.instagram.com/p/abc/"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	p := NewInstagramPublisher(InstagramConfig{BaseURL: server.URL})
	result := p.Publish(context.Background(), igConnection(), imageItem())

	assert.True(t, result.Success)
	assert.Equal(t, "media-9", result.ExternalPostID)
	assert.Equal(t, "https://www.instagram.com/p/abc/", result.ExternalPostURL)
	assert.Empty(t, result.ErrorKind)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInstagramPublish_Carousel(t *testing.T) {
	var containers atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/17890/media":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req["media_type"] == "CAROUSEL" {
				assert.Len(t, req["children"], 3)
				json.NewEncoder(w).Encode(map[string]string{"id": "carousel-1"})
				return
			}
			assert.Equal(t, true, req["is_carousel_item"])
			n := containers.Add(1)
			json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("child-%d", n)})
		case "/17890/media_publish":
			json.NewEncoder(w).Encode(map[string]string{"id": "media-10"})
		case "/media-10":
			json.NewEncoder(w).Encode(map[string]string{"permalink": "https://www.instagram.com/p/xyz/"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	item := imageItem()
	item.MediaKind = models.MediaKindMultiImage
	item.ExtraURLs = []string{"https://cdn.example.com/b.jpg", "https://cdn.example.com/c.jpg"}

	p := NewInstagramPublisher(InstagramConfig{BaseURL: server.URL})
	result := p.Publish(context.Background(), igConnection(), item)

	assert.True(t, result.Success)
	assert.Equal(t, "media-10", result.ExternalPostID)
	assert.Equal(t, int32(3), containers.Load())
}

func TestInstagramPublish_DisconnectedMakesNoRemoteCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	p := NewInstagramPublisher(InstagramConfig{BaseURL: server.URL})
	result := p.Publish(context.Background(), connection.EffectiveConnection{Source: connection.SourceNone}, imageItem())

	assert.False(t, result.Success)
	assert.Equal(t, ErrCredentialInvalid, result.ErrorKind)
	assert.Equal(t, int32(0), calls.Load())
}

func TestInstagramPublish_ExpiredTokenMakesNoRemoteCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	conn := igConnection()
	conn.ExpiresAt = time.Now().Add(-time.Hour)

	p := NewInstagramPublisher(InstagramConfig{BaseURL: server.URL})
	result := p.Publish(context.Background(), conn, imageItem())

	assert.Equal(t, ErrCredentialInvalid, result.ErrorKind)
	assert.Equal(t, int32(0), calls.Load())
}

func TestInstagramPublish_RejectsVideo(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	item := imageItem()
	item.MediaKind = models.MediaKindVideo

	p := NewInstagramPublisher(InstagramConfig{BaseURL: server.URL})
	result := p.Publish(context.Background(), igConnection(), item)

	assert.Equal(t, ErrUnsupportedMedia, result.ErrorKind)
	assert.Equal(t, int32(0), calls.Load())
}

func TestInstagramPublish_RemoteRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid image URL","code":100}}`))
	}))
	defer server.Close()

	p := NewInstagramPublisher(InstagramConfig{BaseURL: server.URL})
	result := p.Publish(context.Background(), igConnection(), imageItem())

	assert.False(t, result.Success)
	assert.Equal(t, ErrRemoteRejected, result.ErrorKind)
	assert.Equal(t, "Invalid image URL", result.Message)
}

func TestInstagramPublish_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	p := NewInstagramPublisher(InstagramConfig{BaseURL: server.URL})
	result := p.Publish(context.Background(), igConnection(), imageItem())

	assert.False(t, result.Success)
	assert.Equal(t, ErrTransport, result.ErrorKind)
}
