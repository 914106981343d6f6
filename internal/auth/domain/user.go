package domain

import (
	"time"

	"github.com/heronworks/authcore/pkg/idx"
)

// User is an identity record. Email and username are globally unique; email
// is stored lowercase so uniqueness is case-insensitive. PasswordHash is
// empty for social-only accounts, which must hold at least one linked
// SocialLogin. Ownership of refresh tokens and social logins is carried by
// foreign keys and store queries, never by in-memory back-references.
type User struct {
	ID            idx.ID
	Email         string
	Username      string
	PasswordHash  string // argon2id PHC encoding; empty for social-only accounts
	FirstName     string
	LastName      string
	EmailVerified bool
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time // soft delete; queries filter deleted rows
}

// UserSummary is the caller-facing slice of a User returned inside a Session.
type UserSummary struct {
	ID            idx.ID `json:"id"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// Summary projects the user into its caller-facing shape.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		EmailVerified: u.EmailVerified,
	}
}
