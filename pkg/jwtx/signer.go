package jwtx

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer turns claims into a compact signed token.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
}

type hs256Signer struct {
	key []byte
}

// NewSignerHS256 builds a symmetric HMAC-SHA256 signer. The key must be at
// least 32 bytes.
func NewSignerHS256(key []byte) (Signer, error) {
	if len(key) < 32 {
		return nil, errors.New("jwtx: HS256 key must be at least 32 bytes")
	}
	return &hs256Signer{key: key}, nil
}

func (s *hs256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }

func (s *hs256Signer) Sign(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

type eddsaSigner struct {
	key ed25519.PrivateKey
}

// NewSignerEdDSA builds an Ed25519 signer from a PKCS8 PEM private key.
func NewSignerEdDSA(pemKey []byte) (Signer, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: no PEM block in key material")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse PKCS8 key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: key is not ed25519")
	}
	return &eddsaSigner{key: key}, nil
}

func (s *eddsaSigner) Alg() string { return jwt.SigningMethodEdDSA.Alg() }

func (s *eddsaSigner) Sign(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

// PublicKey exposes the verification key for an EdDSA signer so the verifier
// can be built from the same material.
func (s *eddsaSigner) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}
