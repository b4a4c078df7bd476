package models

import "time"

// ContentItem is an immutable media reference plus caption owned by a
// profile. FileURL is publicly fetchable (required by Instagram);
// ObjectKey addresses the raw bytes in storage (required by TikTok).
type ContentItem struct {
	ID        int64      `db:"id" json:"id"`
	ProfileID int64      `db:"profile_id" json:"profile_id"`
	Caption   string     `db:"caption" json:"caption"`
	MediaKind MediaKind  `db:"media_kind" json:"media_kind"`
	FileURL   string     `db:"file_url" json:"file_url"`
	ObjectKey string     `db:"object_key" json:"object_key"`
	ExtraURLs []string   `db:"extra_urls" json:"extra_urls"`
	Platforms []Platform `db:"platforms" json:"platforms"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
