// Package auth decides whether a user/password pair may log in.
//
// Storage is behind CredentialStore so a flat file, a database or a
// directory service can back the same handshake.
package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// CredentialStore reports whether a user/password pair is known.
type CredentialStore interface {
	Contains(user, password string) (bool, error)
}

// FuncStore adapts a function into a CredentialStore.
type FuncStore func(user, password string) (bool, error)

func (f FuncStore) Contains(user, password string) (bool, error) {
	return f(user, password)
}

// MemoryStore maps user names to secrets. Secrets may be plain text or
// bcrypt hashes.
type MemoryStore map[string]string

func (m MemoryStore) Contains(user, password string) (bool, error) {
	secret, ok := m[user]
	if !ok {
		return false, nil
	}
	return matchSecret(secret, password), nil
}

func isBcrypt(secret string) bool {
	return strings.HasPrefix(secret, "$2a$") ||
		strings.HasPrefix(secret, "$2b$") ||
		strings.HasPrefix(secret, "$2y$")
}

func matchSecret(stored, password string) bool {
	if isBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

// HashPassword returns a bcrypt hash suitable for a credentials record.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
