package service

import (
	"testing"
	"time"

	"github.com/heronworks/authcore/internal/auth/domain"
	"github.com/heronworks/authcore/pkg/cryptox"
	"github.com/heronworks/authcore/pkg/idx"
	"github.com/heronworks/authcore/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newTokenService(t *testing.T) *TokenService {
	t.Helper()

	key := []byte("0123456789abcdef0123456789abcdef")
	signer, err := jwtx.NewSignerHS256(key)
	require.NoError(t, err)

	return &TokenService{
		Signer:     signer,
		Verifier:   jwtx.NewVerifierHS256(key, "test-issuer", []string{"test-audience"}),
		Issuer:     "test-issuer",
		Audience:   []string{"test-audience"},
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}
}

func TestIssueAccessToken(t *testing.T) {
	svc := newTokenService(t)
	user := domain.User{ID: idx.New(), Email: "alice@example.com", Active: true}

	token, expires, err := svc.IssueAccessToken(user)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Minute), expires, 5*time.Second)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, user.ID.String(), claims.Subject)
	require.Equal(t, "alice@example.com", claims.Email)
	require.Equal(t, "test-issuer", claims.Issuer)
	require.NotEmpty(t, claims.ID, "jti should be populated")
}

func TestIssueRefreshToken(t *testing.T) {
	svc := newTokenService(t)

	secret, rec, err := svc.IssueRefreshToken("203.0.113.9")
	require.NoError(t, err)
	require.NotEmpty(t, secret)

	// Only the fingerprint is destined for storage.
	require.Equal(t, cryptox.FingerprintSecret(secret), rec.TokenHash)
	require.NotEqual(t, secret, rec.TokenHash)

	require.True(t, rec.UserID.IsZero(), "owner is bound by the caller")
	require.Equal(t, "203.0.113.9", rec.CreatedByIP)
	require.False(t, rec.Revoked)
	require.WithinDuration(t, time.Now().Add(time.Hour), rec.ExpiresAt, 5*time.Second)
}

func TestValidateAccessToken_CollapsesFailures(t *testing.T) {
	svc := newTokenService(t)
	user := domain.User{ID: idx.New(), Email: "bob@example.com"}

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateAccessToken("garbage")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		svc := newTokenService(t)
		svc.AccessTTL = -time.Minute
		token, _, err := svc.IssueAccessToken(user)
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other := newTokenService(t)
		other.Audience = []string{"someone-else"}
		token, _, err := other.IssueAccessToken(user)
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestExtractUserID(t *testing.T) {
	svc := newTokenService(t)
	user := domain.User{ID: idx.New(), Email: "carol@example.com"}

	token, _, err := svc.IssueAccessToken(user)
	require.NoError(t, err)

	require.Equal(t, user.ID, svc.ExtractUserID(token))
	require.Equal(t, idx.Zero, svc.ExtractUserID("garbage"))
}
