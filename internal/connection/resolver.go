package connection

import (
	"time"

	"github.com/queueflow/queueflow/internal/models"
)

// Source records where an effective connection came from.
type Source string

const (
	SourceOwn    Source = "own"
	SourceParent Source = "parent"
	SourceNone   Source = "none"
)

// EffectiveConnection is the single credential set that applies to a
// profile+platform after resolving profile-vs-parent precedence.
type EffectiveConnection struct {
	Connected        bool            `json:"connected"`
	Platform         models.Platform `json:"platform"`
	AccessToken      string          `json:"-"`
	RefreshToken     string          `json:"-"`
	ExternalUserID   string          `json:"external_user_id,omitempty"`
	ExternalUsername string          `json:"external_username,omitempty"`
	ExpiresAt        time.Time       `json:"expires_at,omitempty"`
	Source           Source          `json:"source"`
}

// Expired reports whether the connection carries an expiry that has
// already passed. A zero expiry means the token does not expire.
func (c EffectiveConnection) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !c.ExpiresAt.After(now)
}

// Resolve picks the credential that applies to one platform. Own
// credentials win unless the profile delegates to its parent account;
// a missing or disconnected record on both levels resolves to a normal
// not-connected result, never an error. Either record may be nil.
func Resolve(platform models.Platform, own *models.ProfileCredential, parent *models.AccountCredential) EffectiveConnection {
	if own != nil && !own.UseParent && own.Connected {
		return EffectiveConnection{
			Connected:        true,
			Platform:         platform,
			AccessToken:      own.AccessToken,
			RefreshToken:     own.RefreshToken,
			ExternalUserID:   own.ExternalUserID,
			ExternalUsername: own.ExternalUsername,
			ExpiresAt:        own.TokenExpiresAt,
			Source:           SourceOwn,
		}
	}

	if parent != nil && parent.Connected {
		return EffectiveConnection{
			Connected:        true,
			Platform:         platform,
			AccessToken:      parent.AccessToken,
			RefreshToken:     parent.RefreshToken,
			ExternalUserID:   parent.ExternalUserID,
			ExternalUsername: parent.ExternalUsername,
			ExpiresAt:        parent.TokenExpiresAt,
			Source:           SourceParent,
		}
	}

	return EffectiveConnection{Platform: platform, Source: SourceNone}
}
