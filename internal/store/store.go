// Package store persists users and analysis history through GORM. Personal
// fields are encrypted on write and decrypted on read by the injected Codec.
package store

import (
	"errors"

	"github.com/demystify-app/demystify-api/internal/security"
	log "github.com/sirupsen/logrus"
)

// Store errors.
var (
	ErrNotFound          = errors.New("store: record not found")
	ErrDuplicateUsername = errors.New("store: username already registered")
	ErrDuplicateEmail    = errors.New("store: email already registered")
)

// Codec encrypts personal fields at the storage boundary.
type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(value string) (string, error)
	EmailDigest(email string) string
}

// decryptOrRaw returns the plaintext of value, or value itself when it cannot
// be opened, so one damaged row does not hide the rest.
func decryptOrRaw(codec Codec, field, value string) string {
	plain, err := codec.Decrypt(value)
	if err != nil {
		log.WithError(err).WithField("field", field).Warn("store: decrypt failed, returning stored value")
		return value
	}
	return plain
}

func isSealed(value string) bool {
	return security.IsEncrypted(value)
}
