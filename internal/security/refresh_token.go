package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

const MinRefreshTokenBytes = 32

// RefreshTokenGenerator produces opaque refresh secrets from a
// cryptographically secure source.
type RefreshTokenGenerator struct {
	random io.Reader
	nBytes int
}

func NewRefreshTokenGenerator(random io.Reader, nBytes int) *RefreshTokenGenerator {
	if random == nil {
		random = rand.Reader
	}
	if nBytes < MinRefreshTokenBytes {
		nBytes = MinRefreshTokenBytes
	}
	return &RefreshTokenGenerator{random: random, nBytes: nBytes}
}

func (g *RefreshTokenGenerator) NewSecret() (string, error) {
	b := make([]byte, g.nBytes)
	if _, err := io.ReadFull(g.random, b); err != nil {
		return "", fmt.Errorf("read refresh token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashRefreshToken returns the hex digest stored in the ledger. With a pepper
// the digest is HMAC-SHA256 keyed by the pepper, otherwise plain SHA-256.
func HashRefreshToken(token, pepper string) string {
	if pepper == "" {
		sum := sha256.Sum256([]byte(token))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, []byte(pepper))
	_, _ = mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashPrefix shortens a digest for log output.
func HashPrefix(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
