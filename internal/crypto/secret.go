package crypto

import (
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
)

// ClientSecretLen is the length of generated client secrets in hex characters.
const ClientSecretLen = 32

// RandToken returns n lowercase hex characters read from r.
func RandToken(r io.Reader, n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", n)
	}
	buf := make([]byte, (n+1)/2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf)[:n], nil
}

// HashSecret returns a bcrypt hash of a client secret.
func HashSecret(secret string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
}

// VerifySecret reports whether secret matches the bcrypt hash.
func VerifySecret(hash []byte, secret string) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}
