package service

import (
	"time"

	"github.com/heronworks/authcore/internal/auth/domain"
	"github.com/heronworks/authcore/pkg/cryptox"
	"github.com/heronworks/authcore/pkg/idx"
	"github.com/heronworks/authcore/pkg/jwtx"
)

// TokenService mints and validates session credentials. Access tokens are
// signed JWTs and stay valid until expiry no matter what the store says;
// refresh tokens are opaque random secrets whose fingerprints live in the
// store precisely so they can be revoked.
type TokenService struct {
	Signer     jwtx.Signer
	Verifier   *jwtx.Verifier
	Issuer     string
	Audience   []string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// IssueAccessToken signs a short-lived access token for the user and returns
// it with its expiry instant.
func (s *TokenService) IssueAccessToken(u domain.User) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.AccessTTL)

	claims := jwtx.NewAccessClaims(
		u.ID.String(),
		u.Email,
		s.AccessTTL,
		s.Issuer,
		s.Audience,
		now,
	)

	token, err := s.Signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// IssueRefreshToken generates a fresh opaque secret (256 bits of entropy)
// and the unsaved record that goes with it. Persisting the record is the
// caller's job; the raw secret exists only in the return value.
func (s *TokenService) IssueRefreshToken(createdByIP string) (string, domain.RefreshToken, error) {
	secret, err := cryptox.GenerateSecret(cryptox.SecretSize256)
	if err != nil {
		return "", domain.RefreshToken{}, err
	}

	now := time.Now().UTC()
	rec := domain.RefreshToken{
		ID:          idx.New(),
		TokenHash:   cryptox.FingerprintSecret(secret),
		ExpiresAt:   now.Add(s.RefreshTTL),
		CreatedAt:   now,
		CreatedByIP: createdByIP,
	}
	return secret, rec, nil
}

// ValidateAccessToken verifies signature, algorithm, expiry, issuer, and
// audience. Every verification failure collapses to ErrInvalidToken so
// callers cannot leak why a token was rejected.
func (s *TokenService) ValidateAccessToken(token string) (jwtx.Claims, error) {
	claims, err := s.Verifier.Verify(token)
	if err != nil {
		return jwtx.Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// ExtractUserID validates the token and returns its subject, or the zero ID
// when the token does not validate.
func (s *TokenService) ExtractUserID(token string) idx.ID {
	claims, err := s.ValidateAccessToken(token)
	if err != nil {
		return idx.Zero
	}
	id, err := idx.Parse(claims.Subject)
	if err != nil {
		return idx.Zero
	}
	return id
}
