package models

// Platform identifies a publishing target. The set is closed: adding a
// platform means adding a publisher implementation for it.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTiktok    Platform = "tiktok"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformInstagram, PlatformTiktok:
		return true
	}
	return false
}

// AllPlatforms lists every supported platform in a stable order.
func AllPlatforms() []Platform {
	return []Platform{PlatformInstagram, PlatformTiktok}
}

type MediaKind string

const (
	MediaKindImage      MediaKind = "image"
	MediaKindVideo      MediaKind = "video"
	MediaKindMultiImage MediaKind = "multi_image"
)
