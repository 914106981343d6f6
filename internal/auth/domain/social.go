package domain

import (
	"time"

	"github.com/heronworks/authcore/pkg/idx"
)

// SocialLogin links one external OAuth identity to one local user. The
// (provider, provider key) pair is globally unique, and a user holds at most
// one link per provider.
type SocialLogin struct {
	ID           idx.ID
	UserID       idx.ID
	Provider     string
	ProviderKey  string // provider-assigned unique user id
	ProviderData string // optional JSON blob of provider profile fields
	CreatedAt    time.Time
}

// SocialIdentity is the provider-neutral record produced by the identity
// normalizer. Field-name and shape differences between providers are resolved
// before this struct exists.
type SocialIdentity struct {
	ProviderUserID string
	Email          string
	FirstName      string
	LastName       string
	AvatarURL      string
	Provider       string
}
