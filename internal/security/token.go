package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	tokenHashVersion = "v1"
	iterations       = 180000
	minTokenLength   = 16
)

// HashToken derives a salted, iterated SHA-256 hash of an operator token in
// the form "v1:<iterations>:<salt>:<digest>".
func HashToken(token string) (string, error) {
	if len(token) < minTokenLength {
		return "", fmt.Errorf("operator token must be at least %d characters", minTokenLength)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	digest := deriveDigest(token, salt, iterations)
	encodedSalt := base64.RawURLEncoding.EncodeToString(salt)
	encodedDigest := base64.RawURLEncoding.EncodeToString(digest)

	return fmt.Sprintf("%s:%d:%s:%s", tokenHashVersion, iterations, encodedSalt, encodedDigest), nil
}

func VerifyToken(token, encoded string) bool {
	parts := strings.Split(encoded, ":")
	if len(parts) != 4 || parts[0] != tokenHashVersion {
		return false
	}

	iters, err := strconv.Atoi(parts[1])
	if err != nil || iters < 100000 {
		return false
	}

	salt, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return false
	}

	expectedDigest, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil || len(expectedDigest) != sha256.Size {
		return false
	}

	actualDigest := deriveDigest(token, salt, iters)
	return subtle.ConstantTimeCompare(actualDigest, expectedDigest) == 1
}

// BearerToken extracts the token from an "Authorization: Bearer" value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("missing bearer token")
	}
	return strings.TrimSpace(token), nil
}

func deriveDigest(token string, salt []byte, rounds int) []byte {
	digest := sha256.Sum256(append(salt, []byte(token)...))
	buf := digest[:]
	for i := 1; i < rounds; i++ {
		next := sha256.Sum256(append(buf, salt...))
		buf = next[:]
	}
	finalDigest := make([]byte, len(buf))
	copy(finalDigest, buf)
	return finalDigest
}
