package jwtx

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// Verifier validates a compact token and returns its claims. The signing
// algorithm is pinned at construction; tokens carrying any other "alg" header
// are rejected outright, which closes off downgrade and key-confusion
// attacks.
type Verifier struct {
	alg      string
	key      any
	issuer   string
	audience []string
}

// NewVerifierHS256 builds a verifier for HMAC-SHA256 tokens.
func NewVerifierHS256(key []byte, issuer string, audience []string) *Verifier {
	return &Verifier{
		alg:      jwt.SigningMethodHS256.Alg(),
		key:      key,
		issuer:   issuer,
		audience: audience,
	}
}

// NewVerifierEdDSA builds a verifier for Ed25519 tokens.
func NewVerifierEdDSA(pub ed25519.PublicKey, issuer string, audience []string) *Verifier {
	return &Verifier{
		alg:      jwt.SigningMethodEdDSA.Alg(),
		key:      pub,
		issuer:   issuer,
		audience: audience,
	}
}

// Verify checks signature, algorithm, time bounds, issuer, and audience.
func (v *Verifier) Verify(token string) (Claims, error) {
	var claims Claims

	_, err := jwt.ParseWithClaims(
		token,
		&claims,
		func(t *jwt.Token) (any, error) {
			if t.Method.Alg() != v.alg {
				return nil, ErrAlgMismatch
			}
			return v.key, nil
		},
		jwt.WithValidMethods([]string{v.alg}),
	)
	if err != nil {
		return Claims{}, mapParseError(err)
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(v.audience); err != nil {
		return Claims{}, err
	}

	return claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, ErrAlgMismatch):
		return ErrAlgMismatch
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}
