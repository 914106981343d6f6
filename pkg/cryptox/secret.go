package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Secret sizes in bytes before encoding.
const (
	// SecretSize256 gives 256 bits of entropy (43 chars base64url). The
	// floor for refresh-token secrets.
	SecretSize256 = 32
	// SecretSize512 gives 512 bits of entropy (86 chars base64url).
	SecretSize512 = 64
)

// GenerateSecret returns a CSPRNG-backed opaque secret of size bytes,
// base64url-encoded without padding.
func GenerateSecret(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: secret size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintSecret returns the deterministic SHA-256 fingerprint of a
// secret, base64url-encoded. The database stores fingerprints rather than the
// raw secrets so a dump of the tokens table yields nothing presentable.
func FingerprintSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
