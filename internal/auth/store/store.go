package store

import (
	"context"
	"errors"
	"time"

	"github.com/heronworks/authcore/internal/auth/domain"
	"github.com/heronworks/authcore/pkg/idx"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	// ErrTxActive reports an attempt to open a transaction on a unit that
	// already has one.
	ErrTxActive = errors.New("store: transaction already active")
)

// Store is the root data access interface; concrete drivers implement it.
// Each request gets its own view of the store, and multi-step mutations go
// through Tx or WithTx so they land atomically. Sub-repositories are methods
// rather than fields so a Tx can hand out transaction-scoped instances.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens
	SocialLogins() SocialLogins

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST Commit or Rollback the returned Tx. Calling Tx on an
	// already-open Tx fails with ErrTxActive.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn inside a transaction, committing when fn returns nil
	// and rolling back otherwise (including on panic). Prefer this over Tx
	// unless the flow needs interleaved commits.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store with explicit completion.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// UserPage is a keyset-paged listing request. Cursor is the last seen user
// ID (ULIDs sort by creation time); zero means start from the beginning.
type UserPage struct {
	Cursor idx.ID
	Limit  int
}

type Users interface {
	// GetUserByID returns a user by id. Soft-deleted rows are invisible.
	GetUserByID(ctx context.Context, id idx.ID) (domain.User, error)

	// GetUserByEmail matches case-insensitively (emails are stored lowercase).
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// GetUserBySocialLogin resolves the owner of a (provider, providerKey)
	// link in one query.
	GetUserBySocialLogin(ctx context.Context, provider, providerKey string) (domain.User, error)

	// IsEmailOrUsernameTaken backs the register uniqueness check. The
	// database unique indexes remain the authority under concurrency.
	IsEmailOrUsernameTaken(ctx context.Context, email, username string) (bool, error)

	// CreateUser inserts a new user. Unique violations map to ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID idx.ID, newHash string) error

	// SetEmailVerified flips the email-verified flag.
	SetEmailVerified(ctx context.Context, userID idx.ID, verified bool) error

	// SetActive enables or disables an account.
	SetActive(ctx context.Context, userID idx.ID, active bool) error

	// SoftDeleteUser stamps deleted_at; the row survives for audit but no
	// query returns it.
	SoftDeleteUser(ctx context.Context, userID idx.ID) error

	// DeleteUser removes the row; the schema cascades to refresh tokens
	// and social logins.
	DeleteUser(ctx context.Context, userID idx.ID) error

	// ListUsers returns up to page.Limit users ordered by id after the cursor.
	ListUsers(ctx context.Context, page UserPage) ([]domain.User, error)
}

// RotationStamp carries the audit fields written when a token leaves the
// active state.
type RotationStamp struct {
	Now        time.Time
	ByIP       string
	ReplacedBy string // fingerprint of the successor token; empty for plain revokes
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the token row by secret fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// GetRefreshTokenWithUser joins the token with its owning user so the
	// refresh flow needs a single read.
	GetRefreshTokenWithUser(ctx context.Context, hash string) (domain.RefreshToken, domain.User, error)

	ListActiveByUser(ctx context.Context, userID idx.ID, now time.Time) ([]domain.RefreshToken, error)

	// MarkRotated conditionally revokes the row identified by hash and
	// records its successor. It succeeds only while the row is still
	// active, so concurrent rotations of one secret elect a single winner;
	// the losers see ok=false.
	MarkRotated(ctx context.Context, hash string, stamp RotationStamp) (ok bool, err error)

	// Revoke conditionally marks an active token revoked; ok=false when the
	// row was already inactive or unknown.
	Revoke(ctx context.Context, hash string, stamp RotationStamp) (ok bool, err error)

	// RevokeAllForUser revokes every active token of the user in one pass
	// and reports how many rows changed.
	RevokeAllForUser(ctx context.Context, userID idx.ID, stamp RotationStamp) (int64, error)

	// DeleteExpired is the maintenance sweep; only rows already past expiry
	// are removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type SocialLogins interface {
	// CreateSocialLogin inserts a link. Violating the (provider, key) or
	// (user, provider) uniqueness maps to ErrAlreadyExists.
	CreateSocialLogin(ctx context.Context, l domain.SocialLogin) error

	GetByProviderKey(ctx context.Context, provider, providerKey string) (domain.SocialLogin, error)

	ListByUser(ctx context.Context, userID idx.ID) ([]domain.SocialLogin, error)
}
