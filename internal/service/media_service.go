package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/queueflow/queueflow/internal/models"
	"github.com/queueflow/queueflow/internal/repository"
	"github.com/queueflow/queueflow/internal/storage"
)

type MediaService interface {
	CreateItem(ctx context.Context, profileID int64, caption string, platforms []models.Platform, files []*multipart.FileHeader) (int64, error)
	ItemInfo(ctx context.Context, profileID, itemID int64) (*models.ContentItem, error)
	List(ctx context.Context, profileID int64) ([]*models.ContentItem, error)
	Remove(ctx context.Context, profileID, itemID int64) error
}

type mediaService struct {
	cr repository.ContentItemRepository
	r2 *storage.R2Store
}

func NewMediaService(cr repository.ContentItemRepository, r2 *storage.R2Store) MediaService {
	return &mediaService{cr: cr, r2: r2}
}

var imageExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "webp": {},
}

var videoExtensions = map[string]struct{}{
	"mp4": {}, "mov": {},
}

// CreateItem sniffs the uploaded bytes, stores them, and records one
// content item. One image file makes an image item, several make a
// multi-image item, a single video makes a video item. Mixing videos
// with other files is rejected.
func (s *mediaService) CreateItem(ctx context.Context, profileID int64, caption string, platforms []models.Platform, files []*multipart.FileHeader) (int64, error) {
	if len(files) == 0 {
		err := errors.New("no files provided")
		slog.Info(err.Error())
		return 0, err
	}
	if len(platforms) == 0 {
		err := errors.New("no platforms selected")
		slog.Info(err.Error())
		return 0, err
	}
	for _, p := range platforms {
		if !p.Valid() {
			err := fmt.Errorf("unknown platform %q", p)
			slog.Info(err.Error())
			return 0, err
		}
	}

	type upload struct {
		key  string
		url  string
		mime string
	}

	var (
		uploads []upload
		videos  int
	)
	for _, file := range files {
		fileContent, err := file.Open()
		if err != nil {
			return 0, fmt.Errorf("error opening file: %w", err)
		}

		fileBytes, err := io.ReadAll(fileContent)
		fileContent.Close()
		if err != nil {
			return 0, fmt.Errorf("error reading file content: %w", err)
		}

		fileType, err := filetype.Match(fileBytes)
		if err != nil || fileType == types.Unknown {
			return 0, errors.New("unsupported file type")
		}

		if _, ok := videoExtensions[fileType.Extension]; ok {
			videos++
		} else if _, ok := imageExtensions[fileType.Extension]; !ok {
			return 0, fmt.Errorf("file type %s is not allowed", fileType.Extension)
		}

		key, err := gonanoid.New()
		if err != nil {
			return 0, err
		}
		if err := s.r2.Upload(ctx, key, fileBytes, fileType.MIME.Value); err != nil {
			return 0, fmt.Errorf("error uploading file: %w", err)
		}
		uploads = append(uploads, upload{key: key, url: s.r2.PublicURL(key), mime: fileType.MIME.Value})
	}

	var kind models.MediaKind
	switch {
	case videos == 1 && len(uploads) == 1:
		kind = models.MediaKindVideo
	case videos == 0 && len(uploads) == 1:
		kind = models.MediaKindImage
	case videos == 0:
		kind = models.MediaKindMultiImage
	default:
		err := errors.New("videos cannot be combined with other files")
		slog.Info(err.Error())
		return 0, err
	}

	item := &models.ContentItem{
		ProfileID: profileID,
		Caption:   caption,
		MediaKind: kind,
		FileURL:   uploads[0].url,
		ObjectKey: uploads[0].key,
		Platforms: platforms,
	}
	for _, u := range uploads[1:] {
		item.ExtraURLs = append(item.ExtraURLs, u.url)
	}

	return s.cr.Create(ctx, item)
}

func (s *mediaService) ItemInfo(ctx context.Context, profileID, itemID int64) (*models.ContentItem, error) {
	item, err := s.cr.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.ProfileID != profileID {
		err := errors.New("content item doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}
	return item, nil
}

func (s *mediaService) List(ctx context.Context, profileID int64) ([]*models.ContentItem, error) {
	return s.cr.ListByProfileID(ctx, profileID)
}

func (s *mediaService) Remove(ctx context.Context, profileID, itemID int64) error {
	item, err := s.ItemInfo(ctx, profileID, itemID)
	if err != nil {
		return err
	}
	if item.ObjectKey != "" {
		if err := s.r2.Remove(ctx, item.ObjectKey); err != nil {
			slog.Info(err.Error())
		}
	}
	return s.cr.Remove(ctx, itemID)
}
