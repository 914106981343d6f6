package domain

import (
	"time"

	"github.com/heronworks/authcore/pkg/idx"
)

// RefreshToken models a stored session credential. The raw opaque secret is
// never persisted; TokenHash holds its SHA-256 fingerprint. Rows are
// immutable after insert except for the revocation fields, and are physically
// deleted only by the expiry sweeper.
type RefreshToken struct {
	ID          idx.ID
	UserID      idx.ID
	TokenHash   string // base64url SHA-256 fingerprint of the opaque secret
	ExpiresAt   time.Time
	Revoked     bool
	CreatedAt   time.Time
	CreatedByIP string
	RevokedAt   *time.Time
	RevokedByIP string
	// ReplacedBy is the fingerprint of the token minted by the rotation
	// that retired this one. Set exactly once, alongside Revoked.
	ReplacedBy string
}

// IsActive reports whether the token is usable at the given instant.
// Active means not revoked and not past expiry; expiry is derived, never a
// stored state.
func (t RefreshToken) IsActive(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// Session is the success outcome of an authentication flow.
type Session struct {
	AccessToken   string      `json:"access_token"`
	RefreshToken  string      `json:"refresh_token"` // the raw opaque secret
	AccessExpires time.Time   `json:"access_expires"`
	User          UserSummary `json:"user"`
}
