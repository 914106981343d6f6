package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heronworks/authcore/internal/auth/domain"
	"github.com/heronworks/authcore/internal/auth/store"
	"github.com/heronworks/authcore/internal/auth/store/drivers/sqlite"
	"github.com/heronworks/authcore/pkg/cryptox"
	"github.com/heronworks/authcore/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "service-test")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpDir)

	cryptox.SetPepperPath(filepath.Join(tmpDir, "pepper"))
	os.Exit(m.Run())
}

// stubNormalizer stands in for the provider exchange in social login tests.
type stubNormalizer struct {
	identity *domain.SocialIdentity
	err      error
}

func (s stubNormalizer) GetUserInfo(ctx context.Context, provider, code, redirectURI string) (*domain.SocialIdentity, error) {
	return s.identity, s.err
}

func newAuthService(t *testing.T) (*AuthService, *sqlite.Store) {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	svc := NewAuthService(st, newTokenService(t), nil)
	return svc, st
}

func register(t *testing.T, svc *AuthService, email, username string) *domain.Session {
	t.Helper()

	sess, err := svc.Register(context.Background(), RegisterParams{
		Email:     email,
		Password:  "correct horse battery staple",
		Username:  username,
		FirstName: "Test",
		LastName:  "User",
	}, "203.0.113.1")
	require.NoError(t, err)
	return sess
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, st := newAuthService(t)

	sess := register(t, svc, "Alice@Example.com", "alice")

	t.Run("session is complete and valid", func(t *testing.T) {
		require.NotEmpty(t, sess.AccessToken)
		require.NotEmpty(t, sess.RefreshToken)
		require.Equal(t, "alice@example.com", sess.User.Email, "email is normalized")
		require.Equal(t, "alice", sess.User.Username)

		require.Equal(t, sess.User.ID, svc.Tokens.ExtractUserID(sess.AccessToken))
	})

	t.Run("refresh token is persisted by fingerprint", func(t *testing.T) {
		fp := cryptox.FingerprintSecret(sess.RefreshToken)
		rec, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
		require.NoError(t, err)
		require.Equal(t, sess.User.ID, rec.UserID)
		require.False(t, rec.Revoked)
	})

	t.Run("password is stored hashed", func(t *testing.T) {
		u, err := st.Users().GetUserByID(ctx, sess.User.ID)
		require.NoError(t, err)
		require.NotEqual(t, "correct horse battery staple", u.PasswordHash)
		require.Contains(t, u.PasswordHash, "$argon2id$")
	})

	t.Run("duplicate email fails", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterParams{
			Email:    "alice@example.com",
			Password: "whatever",
			Username: "alice2",
		}, "ip")
		require.ErrorIs(t, err, ErrUserAlreadyExists)
	})

	t.Run("duplicate username fails", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterParams{
			Email:    "other@example.com",
			Password: "whatever",
			Username: "alice",
		}, "ip")
		require.ErrorIs(t, err, ErrUserAlreadyExists)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc, st := newAuthService(t)
	register(t, svc, "bob@example.com", "bob")

	t.Run("correct credentials open a new session", func(t *testing.T) {
		sess, err := svc.Login(ctx, "BOB@example.com", "correct horse battery staple", "ip")
		require.NoError(t, err)
		require.Equal(t, "bob@example.com", sess.User.Email)

		// Registration session plus this one.
		active, err := st.RefreshTokens().ListActiveByUser(ctx, sess.User.ID, time.Now().UTC())
		require.NoError(t, err)
		require.Len(t, active, 2, "logins stack, they do not replace each other")
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, "bob@example.com", "wrong", "ip")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody@example.com", "whatever", "ip")
		require.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("inactive account", func(t *testing.T) {
		sess := register(t, svc, "inactive@example.com", "inactive")
		require.NoError(t, st.Users().SetActive(ctx, sess.User.ID, false))

		_, err := svc.Login(ctx, "inactive@example.com", "correct horse battery staple", "ip")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestLoginRateLimited(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthService(t)
	register(t, svc, "dora@example.com", "dora")

	// Exhaust the per-key burst with failed attempts.
	for range 10 {
		_, err := svc.Login(ctx, "dora@example.com", "wrong", "198.51.100.1")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := svc.Login(ctx, "dora@example.com", "wrong", "198.51.100.1")
	require.ErrorIs(t, err, ErrTooManyAttempts)

	t.Run("another source address is unaffected", func(t *testing.T) {
		sess, err := svc.Login(ctx, "dora@example.com", "correct horse battery staple", "198.51.100.2")
		require.NoError(t, err)
		require.NotNil(t, sess)
	})
}

func TestRefreshRotation(t *testing.T) {
	ctx := context.Background()
	svc, st := newAuthService(t)
	sess := register(t, svc, "erin@example.com", "erin")
	userID := sess.User.ID

	next, err := svc.Refresh(ctx, sess.RefreshToken, "ip")
	require.NoError(t, err)
	require.NotEqual(t, sess.RefreshToken, next.RefreshToken)
	require.Equal(t, userID, next.User.ID)

	t.Run("old token is revoked and points at its successor", func(t *testing.T) {
		old, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintSecret(sess.RefreshToken))
		require.NoError(t, err)
		require.True(t, old.Revoked)
		require.NotNil(t, old.RevokedAt)
		require.Equal(t, cryptox.FingerprintSecret(next.RefreshToken), old.ReplacedBy)
	})

	t.Run("exactly one token stays active", func(t *testing.T) {
		active, err := st.RefreshTokens().ListActiveByUser(ctx, userID, time.Now().UTC())
		require.NoError(t, err)
		require.Len(t, active, 1)
		require.Equal(t, cryptox.FingerprintSecret(next.RefreshToken), active[0].TokenHash)
	})

	t.Run("new access token is valid", func(t *testing.T) {
		require.Equal(t, userID, svc.Tokens.ExtractUserID(next.AccessToken))
	})
}

func TestRefreshReplayRevokesEverything(t *testing.T) {
	ctx := context.Background()
	svc, st := newAuthService(t)
	sess := register(t, svc, "faye@example.com", "faye")
	userID := sess.User.ID

	next, err := svc.Refresh(ctx, sess.RefreshToken, "ip")
	require.NoError(t, err)

	// Replaying the rotated secret is the theft signal.
	_, err = svc.Refresh(ctx, sess.RefreshToken, "ip")
	require.ErrorIs(t, err, ErrInvalidToken)

	t.Run("the whole session family is dead", func(t *testing.T) {
		active, err := st.RefreshTokens().ListActiveByUser(ctx, userID, time.Now().UTC())
		require.NoError(t, err)
		require.Empty(t, active)

		_, err = svc.Refresh(ctx, next.RefreshToken, "ip")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRefreshRejects(t *testing.T) {
	ctx := context.Background()
	svc, st := newAuthService(t)

	t.Run("unknown secret", func(t *testing.T) {
		_, err := svc.Refresh(ctx, "never-issued", "ip")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("deactivated user", func(t *testing.T) {
		sess := register(t, svc, "gone@example.com", "gone")
		require.NoError(t, st.Users().SetActive(ctx, sess.User.ID, false))

		_, err := svc.Refresh(ctx, sess.RefreshToken, "ip")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthService(t)
	sess := register(t, svc, "race@example.com", "race")

	const attempts = 8
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	errs := make(chan error, attempts)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(ctx, sess.RefreshToken, "ip")
			if err == nil {
				wins.Add(1)
				return
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	require.Equal(t, int32(1), wins.Load(), "exactly one rotation may win")
	for err := range errs {
		require.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestRevokeToken(t *testing.T) {
	ctx := context.Background()
	svc, st := newAuthService(t)
	sess := register(t, svc, "hana@example.com", "hana")

	require.NoError(t, svc.RevokeToken(ctx, sess.RefreshToken, "ip"))

	t.Run("revoked token cannot refresh", func(t *testing.T) {
		_, err := svc.Refresh(ctx, sess.RefreshToken, "ip")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("double revoke fails", func(t *testing.T) {
		err := svc.RevokeToken(ctx, sess.RefreshToken, "ip")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown secret fails", func(t *testing.T) {
		err := svc.RevokeToken(ctx, "never-issued", "ip")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("revocation is stamped", func(t *testing.T) {
		rec, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintSecret(sess.RefreshToken))
		require.NoError(t, err)
		require.True(t, rec.Revoked)
		require.NotNil(t, rec.RevokedAt)
		require.Empty(t, rec.ReplacedBy, "plain revokes have no successor")
	})
}

func TestRevokeAllUserTokens(t *testing.T) {
	ctx := context.Background()
	svc, st := newAuthService(t)
	sess := register(t, svc, "iris@example.com", "iris")

	_, err := svc.Login(ctx, "iris@example.com", "correct horse battery staple", "ip")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAllUserTokens(ctx, sess.User.ID, "ip"))

	active, err := st.RefreshTokens().ListActiveByUser(ctx, sess.User.ID, time.Now().UTC())
	require.NoError(t, err)
	require.Empty(t, active)

	// Idempotent: a second pass simply revokes zero rows.
	require.NoError(t, svc.RevokeAllUserTokens(ctx, sess.User.ID, "ip"))
}

func TestSocialLogin(t *testing.T) {
	ctx := context.Background()

	identity := &domain.SocialIdentity{
		ProviderUserID: "g-12345",
		Email:          "Jane@Example.com",
		FirstName:      "Jane",
		LastName:       "Doe",
		Provider:       "google",
	}

	t.Run("first login creates a passwordless account", func(t *testing.T) {
		svc, st := newAuthService(t)
		svc.Social = stubNormalizer{identity: identity}

		sess, err := svc.SocialLogin(ctx, "google", "code", "https://app/callback", "ip")
		require.NoError(t, err)
		require.Equal(t, "jane@example.com", sess.User.Email)
		require.True(t, sess.User.EmailVerified, "provider-vouched email counts as verified")
		require.NotEmpty(t, sess.RefreshToken)

		u, err := st.Users().GetUserByID(ctx, sess.User.ID)
		require.NoError(t, err)
		require.Empty(t, u.PasswordHash)
		require.Equal(t, "jane", u.Username, "username derives from the email local part")

		link, err := st.SocialLogins().GetByProviderKey(ctx, "google", "g-12345")
		require.NoError(t, err)
		require.Equal(t, sess.User.ID, link.UserID)

		t.Run("passwordless accounts cannot password-login", func(t *testing.T) {
			_, err := svc.Login(ctx, "jane@example.com", "anything", "ip")
			require.ErrorIs(t, err, ErrInvalidCredentials)
		})

		t.Run("second login reuses the linked account", func(t *testing.T) {
			again, err := svc.SocialLogin(ctx, "google", "code", "https://app/callback", "ip")
			require.NoError(t, err)
			require.Equal(t, sess.User.ID, again.User.ID)

			links, err := st.SocialLogins().ListByUser(ctx, sess.User.ID)
			require.NoError(t, err)
			require.Len(t, links, 1, "no duplicate link rows")
		})
	})

	t.Run("matching email attaches to the existing account", func(t *testing.T) {
		svc, st := newAuthService(t)
		existing := register(t, svc, "jane@example.com", "jane")

		svc.Social = stubNormalizer{identity: identity}
		sess, err := svc.SocialLogin(ctx, "google", "code", "https://app/callback", "ip")
		require.NoError(t, err)
		require.Equal(t, existing.User.ID, sess.User.ID)

		link, err := st.SocialLogins().GetByProviderKey(ctx, "google", "g-12345")
		require.NoError(t, err)
		require.Equal(t, existing.User.ID, link.UserID)
	})

	t.Run("rejected code is an authentication failure", func(t *testing.T) {
		svc, _ := newAuthService(t)
		svc.Social = stubNormalizer{}

		_, err := svc.SocialLogin(ctx, "google", "bad-code", "https://app/callback", "ip")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("deactivated linked account cannot sign in", func(t *testing.T) {
		svc, st := newAuthService(t)
		svc.Social = stubNormalizer{identity: identity}

		sess, err := svc.SocialLogin(ctx, "google", "code", "https://app/callback", "ip")
		require.NoError(t, err)
		require.NoError(t, st.Users().SetActive(ctx, sess.User.ID, false))

		_, err = svc.SocialLogin(ctx, "google", "code", "https://app/callback", "ip")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("username collision picks a suffixed name", func(t *testing.T) {
		svc, st := newAuthService(t)
		register(t, svc, "other@example.com", "jane")

		svc.Social = stubNormalizer{identity: identity}
		sess, err := svc.SocialLogin(ctx, "google", "code", "https://app/callback", "ip")
		require.NoError(t, err)

		u, err := st.Users().GetUserByID(ctx, sess.User.ID)
		require.NoError(t, err)
		require.NotEqual(t, "jane", u.Username)
		require.Contains(t, u.Username, "jane-")
	})
}

func TestSocialLoginUnknownProvider(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthService(t)

	// A nil identity with no error is how the exchanger reports an
	// unconfigured provider.
	svc.Social = stubNormalizer{}

	_, err := svc.SocialLogin(ctx, "myspace", "code", "https://app/callback", "ip")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	svc, st := newAuthService(t)
	sess := register(t, svc, "kate@example.com", "kate")

	// One live row, one already past expiry.
	expired := domain.RefreshToken{
		ID:        idx.New(),
		UserID:    sess.User.ID,
		TokenHash: "fp-expired",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, expired))

	sweeper := NewSweeper(st, time.Hour)
	sweeper.Start(ctx)
	sweeper.Stop()

	_, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "fp-expired")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintSecret(sess.RefreshToken))
	require.NoError(t, err, "live tokens survive the sweep")
}
