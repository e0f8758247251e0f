// ABOUTME: PBKDF2 password hashing with per-password random salts
// ABOUTME: Failed derivations produce a sentinel that never verifies

package auth

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

// Password hashing parameters.
const (
	PasswordIterations = 65536
	PasswordKeyLength  = 16 // 128-bit derived key
	PasswordSaltLength = 16
)

// InvalidHash is produced when a hash cannot be derived. It is not valid
// base64 of a 16-byte key, so it never equals a real hash.
const InvalidHash = "invalid"

// dummySalt is used by VerifyDummy; its value is irrelevant.
var dummySalt = base64.StdEncoding.EncodeToString(make([]byte, PasswordSaltLength))

// PasswordHasher derives and verifies salted PBKDF2 password hashes.
type PasswordHasher struct {
	prf        func() hash.Hash
	iterations int
}

// NewPasswordHasher returns a hasher using PBKDF2 with HMAC-SHA1.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{prf: sha1.New, iterations: PasswordIterations}
}

// NewPasswordHasherWith returns a hasher using a different PRF or iteration
// count. Hashes made with one configuration do not verify with another.
func NewPasswordHasherWith(prf func() hash.Hash, iterations int) *PasswordHasher {
	if prf == nil {
		prf = sha1.New
	}
	if iterations <= 0 {
		iterations = PasswordIterations
	}
	return &PasswordHasher{prf: prf, iterations: iterations}
}

// Hash generates a fresh salt and derives the hash of password.
// Both values are base64 encoded for storage.
func (h *PasswordHasher) Hash(password string) (salt, derived string, err error) {
	raw := make([]byte, PasswordSaltLength)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	salt = base64.StdEncoding.EncodeToString(raw)
	return salt, h.derive(password, salt), nil
}

// Verify reports whether password derives to the stored hash under the stored salt.
func (h *PasswordHasher) Verify(password, salt, stored string) bool {
	derived := h.derive(password, salt)
	if derived == InvalidHash || stored == InvalidHash {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(derived), []byte(stored)) == 1
}

// VerifyDummy performs one derivation and discards it, so that logins for
// unknown usernames take as long as logins with a wrong password.
func (h *PasswordHasher) VerifyDummy(password string) {
	_ = h.derive(password, dummySalt)
}

func (h *PasswordHasher) derive(password, salt string) string {
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil || len(rawSalt) == 0 {
		return InvalidHash
	}
	key := pbkdf2.Key([]byte(password), rawSalt, h.iterations, PasswordKeyLength, h.prf)
	return base64.StdEncoding.EncodeToString(key)
}
