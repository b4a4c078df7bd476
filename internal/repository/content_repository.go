package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/lib/pq"

	"github.com/queueflow/queueflow/internal/models"
)

type ContentItemRepository interface {
	Create(ctx context.Context, item *models.ContentItem) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ContentItem, error)
	ListByProfileID(ctx context.Context, profileID int64) ([]*models.ContentItem, error)
	Remove(ctx context.Context, id int64) error
}

type contentItemRepository struct {
	db *sql.DB
}

func NewContentItemRepository(db *sql.DB) ContentItemRepository {
	return &contentItemRepository{db: db}
}

func (r *contentItemRepository) Create(ctx context.Context, item *models.ContentItem) (int64, error) {
	query := `INSERT INTO content_items(profile_id, caption, media_kind, file_url, object_key, extra_urls, platforms)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`

	platforms := make([]string, len(item.Platforms))
	for i, p := range item.Platforms {
		platforms[i] = string(p)
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		item.ProfileID, item.Caption, item.MediaKind, item.FileURL, item.ObjectKey,
		pq.Array(item.ExtraURLs), pq.Array(platforms)).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *contentItemRepository) GetByID(ctx context.Context, id int64) (*models.ContentItem, error) {
	query := `SELECT id, profile_id, caption, media_kind, file_url, object_key, extra_urls, platforms, created_at
			FROM content_items WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	item, err := scanContentItem(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return item, nil
}

func (r *contentItemRepository) ListByProfileID(ctx context.Context, profileID int64) ([]*models.ContentItem, error) {
	query := `SELECT id, profile_id, caption, media_kind, file_url, object_key, extra_urls, platforms, created_at
			FROM content_items WHERE profile_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, profileID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var items []*models.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows.Scan)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return items, nil
}

func (r *contentItemRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM content_items WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func scanContentItem(scan func(dest ...any) error) (*models.ContentItem, error) {
	var item models.ContentItem
	var extraURLs, platforms pq.StringArray

	err := scan(&item.ID, &item.ProfileID, &item.Caption, &item.MediaKind, &item.FileURL,
		&item.ObjectKey, &extraURLs, &platforms, &item.CreatedAt)
	if err != nil {
		return nil, err
	}

	item.ExtraURLs = extraURLs
	item.Platforms = make([]models.Platform, len(platforms))
	for i, p := range platforms {
		item.Platforms[i] = models.Platform(p)
	}
	return &item, nil
}
