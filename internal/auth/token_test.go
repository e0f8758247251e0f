// ABOUTME: Tests for random token generation and token shape checks
// ABOUTME: Covers length, alphabet, uniqueness and source failures

package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestTokenLengthAndAlphabet(t *testing.T) {
	g := NewTokenGenerator()

	key, err := g.SessionKey()
	require.NoError(t, err)
	assert.Len(t, key, SessionKeyLength)
	assert.True(t, wellFormed(key, SessionKeyLength))

	secret, err := g.APIKeySecret()
	require.NoError(t, err)
	assert.Len(t, secret, APIKeySecretLength)
	for _, c := range secret {
		assert.True(t, strings.ContainsRune(AlphaNumeric, c), "unexpected symbol %q", c)
	}
}

func TestTokensAreUnique(t *testing.T) {
	g := NewTokenGenerator()
	tests := []struct {
		name string
		next func() (string, error)
	}{
		{"session key", g.SessionKey},
		{"api key secret", g.APIKeySecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make(map[string]struct{}, 10000)
			for i := 0; i < 10000; i++ {
				token, err := tt.next()
				require.NoError(t, err)
				_, dup := seen[token]
				require.False(t, dup, "duplicate token after %d draws", i)
				seen[token] = struct{}{}
			}
		})
	}
}

func TestTokenAllSymbolsReachable(t *testing.T) {
	g := NewTokenGenerator()
	token, err := g.Next(20000, "ab")
	require.NoError(t, err)

	assert.Contains(t, token, "a")
	assert.Contains(t, token, "b")
}

func TestTokenInvalidArguments(t *testing.T) {
	g := NewTokenGenerator()

	_, err := g.Next(0, AlphaNumeric)
	assert.Error(t, err)

	_, err = g.Next(10, "a")
	assert.Error(t, err)
}

func TestTokenSourceFailure(t *testing.T) {
	g := &TokenGenerator{source: brokenReader{}}
	_, err := g.SessionKey()
	assert.Error(t, err)
}

func TestWellFormed(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"valid", strings.Repeat("aZ9", 20) + "abcd", true},
		{"too short", "abc", false},
		{"too long", strings.Repeat("a", 65), false},
		{"bad symbol", strings.Repeat("a", 63) + "-", false},
		{"non ascii", strings.Repeat("a", 62) + "é", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wellFormed(tt.token, APIKeySecretLength))
		})
	}
}
