package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/heronworks/authcore/internal/auth/domain"
	"github.com/heronworks/authcore/internal/auth/oauth"
	"github.com/heronworks/authcore/internal/auth/store"
	"github.com/heronworks/authcore/pkg/cryptox"
	"github.com/heronworks/authcore/pkg/idx"
	"github.com/heronworks/authcore/pkg/slogx"

	"golang.org/x/time/rate"
)

// Expected business outcomes. Callers branch on these with errors.Is; the
// error text never carries information the code doesn't.
var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrUserAlreadyExists  = errors.New("user_already_exists")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrTooManyAttempts    = errors.New("too_many_attempts")
)

// PasswordHasher is the hashing capability the flows consume. The default is
// the peppered argon2id implementation in pkg/cryptox.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) error
}

type argon2Hasher struct{}

func (argon2Hasher) Hash(password string) (string, error) { return cryptox.HashPassword(password) }
func (argon2Hasher) Verify(password, hash string) error {
	return cryptox.VerifyPassword(password, hash)
}

// Normalizer is the identity-normalizer contract consumed by SocialLogin.
// A (nil, nil) return is an authentication failure, not a fault.
type Normalizer interface {
	GetUserInfo(ctx context.Context, provider, code, redirectURI string) (*domain.SocialIdentity, error)
}

// AuthService orchestrates the six authentication flows. Each flow is store
// reads, one business decision, and a transactional write; expected failures
// come back as the sentinel errors above, infrastructure faults propagate
// wrapped.
type AuthService struct {
	Store  store.Store
	Tokens *TokenService
	Social Normalizer
	Hasher PasswordHasher

	limiter *loginLimiter
}

func NewAuthService(st store.Store, tokens *TokenService, social *oauth.Exchanger) *AuthService {
	return &AuthService{
		Store:  st,
		Tokens: tokens,
		Social: social,
		Hasher: argon2Hasher{},
		// 10 attempts up front, then one a minute per (email, ip).
		limiter: newLoginLimiter(rate.Every(time.Minute), 10),
	}
}

// RegisterParams carries the register flow inputs. Field-level validation
// (formats, lengths) belongs to the caller; the flow enforces only the
// business rules.
type RegisterParams struct {
	Email     string
	Password  string
	Username  string
	FirstName string
	LastName  string
}

// Register creates a password account and opens its first session. The user
// row and its refresh token land in one transaction; a uniqueness conflict
// leaves nothing behind and fails ErrUserAlreadyExists.
func (s *AuthService) Register(ctx context.Context, p RegisterParams, ip string) (*domain.Session, error) {
	email := normalizeEmail(p.Email)

	taken, err := s.Store.Users().IsEmailOrUsernameTaken(ctx, email, p.Username)
	if err != nil {
		return nil, fmt.Errorf("register: uniqueness check: %w", err)
	}
	if taken {
		return nil, ErrUserAlreadyExists
	}

	hash, err := s.Hasher.Hash(p.Password)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           idx.New(),
		Email:        email,
		Username:     p.Username,
		PasswordHash: hash,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	sess, err := s.openSession(ctx, user, ip, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			// The unique indexes are the authority under concurrency;
			// the pre-check above only gives a friendlier fast path.
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrUserAlreadyExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("user registered",
		slog.String("user_id", user.ID.String()))
	return sess, nil
}

// Login verifies password credentials and opens a new session. Existing
// sessions stay untouched; concurrent sessions per user are by design.
func (s *AuthService) Login(ctx context.Context, email, password, ip string) (*domain.Session, error) {
	email = normalizeEmail(email)

	if !s.limiter.allow(email + "|" + ip) {
		return nil, ErrTooManyAttempts
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("login: lookup user: %w", err)
	}

	if !user.Active {
		return nil, ErrInvalidCredentials
	}
	// Social-only accounts have no hash and cannot password-login.
	if user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.Hasher.Verify(password, user.PasswordHash); err != nil {
		slogx.FromContext(ctx).Info("password verification failed",
			slog.String("user_id", user.ID.String()))
		return nil, ErrInvalidCredentials
	}

	return s.openSession(ctx, user, ip, nil)
}

// SocialLogin exchanges a provider authorization code and signs the caller
// in: as the already-linked user, as the email-matched user with a new link,
// or as a brand-new password-less account. All writes share one transaction.
func (s *AuthService) SocialLogin(ctx context.Context, provider, code, redirectURI, ip string) (*domain.Session, error) {
	identity, err := s.Social.GetUserInfo(ctx, provider, code, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("social login: exchange: %w", err)
	}
	if identity == nil || identity.Email == "" {
		return nil, ErrInvalidCredentials
	}
	identity.Email = normalizeEmail(identity.Email)

	secret, rec, err := s.Tokens.IssueRefreshToken(ip)
	if err != nil {
		return nil, fmt.Errorf("social login: issue refresh token: %w", err)
	}

	var sess *domain.Session
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		user, err := s.resolveSocialUser(ctx, tx, identity)
		if err != nil {
			return err
		}
		if !user.Active {
			return ErrInvalidCredentials
		}

		rec.UserID = user.ID
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, rec); err != nil {
			return err
		}

		access, expires, err := s.Tokens.IssueAccessToken(user)
		if err != nil {
			return err
		}
		sess = &domain.Session{
			AccessToken:   access,
			RefreshToken:  secret,
			AccessExpires: expires,
			User:          user.Summary(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// resolveSocialUser finds or creates the local user for a normalized
// identity: linked user first, then email match (link added), then a new
// password-less account.
func (s *AuthService) resolveSocialUser(ctx context.Context, tx store.Tx, identity *domain.SocialIdentity) (domain.User, error) {
	user, err := tx.Users().GetUserBySocialLogin(ctx, identity.Provider, identity.ProviderUserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	now := time.Now().UTC()

	user, err = tx.Users().GetUserByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		// Existing account with the same email: attach the identity.
	case errors.Is(err, store.ErrNotFound):
		username, uerr := s.pickUsername(ctx, tx, identity.Email)
		if uerr != nil {
			return domain.User{}, uerr
		}
		user = domain.User{
			ID:        idx.New(),
			Email:     identity.Email,
			Username:  username,
			FirstName: identity.FirstName,
			LastName:  identity.LastName,
			// The provider vouched for the address.
			EmailVerified: true,
			Active:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			return domain.User{}, err
		}
		slogx.FromContext(ctx).Info("user created from social identity",
			slog.String("user_id", user.ID.String()),
			slog.String("provider", identity.Provider))
	default:
		return domain.User{}, err
	}

	blob, err := json.Marshal(identity)
	if err != nil {
		return domain.User{}, err
	}
	link := domain.SocialLogin{
		ID:           idx.New(),
		UserID:       user.ID,
		Provider:     identity.Provider,
		ProviderKey:  identity.ProviderUserID,
		ProviderData: string(blob),
		CreatedAt:    now,
	}
	if err := tx.SocialLogins().CreateSocialLogin(ctx, link); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// pickUsername derives a username from the email local part, suffixing until
// it is free. The unique index still backs this up under races.
func (s *AuthService) pickUsername(ctx context.Context, tx store.Tx, email string) (string, error) {
	base, _, _ := strings.Cut(email, "@")
	if base == "" {
		base = "user"
	}

	candidate := base
	for i := 0; i < 5; i++ {
		_, err := tx.Users().GetUserByUsername(ctx, candidate)
		if errors.Is(err, store.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		suffix, err := cryptox.GenerateSecret(3)
		if err != nil {
			return "", err
		}
		candidate = base + "-" + strings.ToLower(suffix)
	}
	return "", fmt.Errorf("social login: no free username for %q", base)
}

// Refresh rotates an active refresh token: the presented token is revoked
// with its successor recorded, the successor is inserted, and a new access
// token is signed, all in one transaction. Presenting an inactive token is
// treated as possible theft: every active token of that user is revoked and
// the call fails ErrInvalidToken.
func (s *AuthService) Refresh(ctx context.Context, refreshSecret, ip string) (*domain.Session, error) {
	fp := cryptox.FingerprintSecret(refreshSecret)

	_, user, err := s.Store.RefreshTokens().GetRefreshTokenWithUser(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("refresh: lookup token: %w", err)
	}
	if !user.Active {
		return nil, ErrInvalidToken
	}

	newSecret, newRec, err := s.Tokens.IssueRefreshToken(ip)
	if err != nil {
		return nil, fmt.Errorf("refresh: issue refresh token: %w", err)
	}
	newRec.UserID = user.ID

	now := time.Now().UTC()
	var (
		sess  *domain.Session
		theft bool
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		// The conditional update is the arbiter under concurrency: of
		// all rotations racing on one secret, exactly one flips the row.
		ok, err := tx.RefreshTokens().MarkRotated(ctx, fp, store.RotationStamp{
			Now:        now,
			ByIP:       ip,
			ReplacedBy: newRec.TokenHash,
		})
		if err != nil {
			return err
		}
		if !ok {
			// Already rotated, revoked, or expired. Someone replayed a
			// dead secret; cut every session this user has.
			theft = true
			_, err := tx.RefreshTokens().RevokeAllForUser(ctx, user.ID, store.RotationStamp{
				Now:  now,
				ByIP: ip,
			})
			return err
		}

		if err := tx.RefreshTokens().CreateRefreshToken(ctx, newRec); err != nil {
			return err
		}

		access, expires, err := s.Tokens.IssueAccessToken(user)
		if err != nil {
			return err
		}
		sess = &domain.Session{
			AccessToken:   access,
			RefreshToken:  newSecret,
			AccessExpires: expires,
			User:          user.Summary(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if theft {
		slogx.FromContext(ctx).Warn("refresh token reuse detected, revoked all user sessions",
			slog.String("user_id", user.ID.String()),
			slog.String("ip", ip))
		return nil, ErrInvalidToken
	}
	return sess, nil
}

// RevokeToken marks a single token revoked (logout of one session). Unknown
// or already-inactive secrets fail ErrInvalidToken.
func (s *AuthService) RevokeToken(ctx context.Context, refreshSecret, ip string) error {
	fp := cryptox.FingerprintSecret(refreshSecret)

	ok, err := s.Store.RefreshTokens().Revoke(ctx, fp, store.RotationStamp{
		Now:  time.Now().UTC(),
		ByIP: ip,
	})
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if !ok {
		return ErrInvalidToken
	}
	return nil
}

// RevokeAllUserTokens revokes every active token of a user in one pass
// (logout-everywhere, or the response to a confirmed compromise).
func (s *AuthService) RevokeAllUserTokens(ctx context.Context, userID idx.ID, ip string) error {
	n, err := s.Store.RefreshTokens().RevokeAllForUser(ctx, userID, store.RotationStamp{
		Now:  time.Now().UTC(),
		ByIP: ip,
	})
	if err != nil {
		return fmt.Errorf("revoke all user tokens: %w", err)
	}

	slogx.FromContext(ctx).Info("revoked all user tokens",
		slog.String("user_id", userID.String()),
		slog.Int64("count", n))
	return nil
}

// openSession persists a fresh refresh token (plus whatever extra writes the
// flow supplies) in one transaction and returns the signed session.
func (s *AuthService) openSession(
	ctx context.Context,
	user domain.User,
	ip string,
	extra func(tx store.Tx) error,
) (*domain.Session, error) {
	secret, rec, err := s.Tokens.IssueRefreshToken(ip)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	rec.UserID = user.ID

	access, expires, err := s.Tokens.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if extra != nil {
			if err := extra(tx); err != nil {
				return err
			}
		}
		return tx.RefreshTokens().CreateRefreshToken(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	return &domain.Session{
		AccessToken:   access,
		RefreshToken:  secret,
		AccessExpires: expires,
		User:          user.Summary(),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
