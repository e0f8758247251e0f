// ABOUTME: Cryptographically secure random token generation
// ABOUTME: Produces session keys and API key secrets from an alphabet without modulo bias

package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// Token lengths and alphabet.
const (
	SessionKeyLength   = 128
	APIKeySecretLength = 64
	AlphaNumeric       = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// maxIssueAttempts bounds retries when a generated token collides with a stored one.
const maxIssueAttempts = 3

// TokenGenerator draws tokens uniformly from an alphabet.
type TokenGenerator struct {
	source io.Reader
}

// NewTokenGenerator returns a generator backed by crypto/rand.
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{source: rand.Reader}
}

// Next returns a token of length symbols drawn from alphabet.
func (g *TokenGenerator) Next(length int, alphabet string) (string, error) {
	if length <= 0 {
		return "", errors.New("token length must be positive")
	}
	if len(alphabet) < 2 {
		return "", errors.New("alphabet needs at least two symbols")
	}

	size := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		// rand.Int rejects out-of-range samples, so every symbol is equally likely
		n, err := rand.Int(g.source, size)
		if err != nil {
			return "", fmt.Errorf("reading random source: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}

// SessionKey returns a new session key.
func (g *TokenGenerator) SessionKey() (string, error) {
	return g.Next(SessionKeyLength, AlphaNumeric)
}

// APIKeySecret returns a new API key secret.
func (g *TokenGenerator) APIKeySecret() (string, error) {
	return g.Next(APIKeySecretLength, AlphaNumeric)
}

// wellFormed reports whether token has the expected length and only uses
// symbols from the alphanumeric alphabet. Malformed tokens are rejected
// before any store lookup.
func wellFormed(token string, length int) bool {
	if len(token) != length {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
