package security

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

// CipherPrefix marks values produced by FieldCipher.Encrypt.
const CipherPrefix = "enc:v1:"

const (
	keyDerivationSalt       = "demystify-salt-2025"
	keyDerivationIterations = 100000
	digestContext           = "demystify-email-digest"
)

// ErrDecrypt is returned when a prefixed value cannot be opened.
var ErrDecrypt = errors.New("decrypt field")

// FieldCipher encrypts individual column values with XChaCha20-Poly1305.
type FieldCipher struct {
	aead      cipher.AEAD
	digestKey []byte
}

// NewFieldCipher builds a cipher from a base64 encoded 32-byte key.
func NewFieldCipher(encodedKey string) (*FieldCipher, error) {
	key, err := decodeKey(encodedKey)
	if err != nil {
		return nil, err
	}
	return newFieldCipher(key)
}

// DeriveFieldCipher builds a cipher whose key is derived from secret with
// PBKDF2-SHA256. Data encrypted this way is only as safe as the secret.
func DeriveFieldCipher(secret string) (*FieldCipher, error) {
	if secret == "" {
		secret = "dev-temp-key-not-secure"
	}
	key := pbkdf2.Key([]byte(secret), []byte(keyDerivationSalt), keyDerivationIterations, chacha20poly1305.KeySize, sha256.New)
	return newFieldCipher(key)
}

func newFieldCipher(key []byte) (*FieldCipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	mac, err := blake2b.New256(key)
	if err != nil {
		return nil, fmt.Errorf("init digest: %w", err)
	}
	mac.Write([]byte(digestContext))
	return &FieldCipher{aead: aead, digestKey: mac.Sum(nil)}, nil
}

// Encrypt seals plaintext. Empty input stays empty.
func (f *FieldCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, f.aead.NonceSize(), f.aead.NonceSize()+len(plaintext)+chacha20poly1305.Overhead)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := f.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return CipherPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Values without the prefix are
// returned unchanged so rows written before encryption remain readable.
func (f *FieldCipher) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, CipherPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	nonceSize := f.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("%w: short ciphertext", ErrDecrypt)
	}
	opened, err := f.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(opened), nil
}

// EmailDigest returns a keyed, deterministic digest of the normalized email
// for equality lookups on the encrypted column.
func (f *FieldCipher) EmailDigest(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return ""
	}
	mac, _ := blake2b.New256(f.digestKey)
	mac.Write([]byte(normalized))
	return hex.EncodeToString(mac.Sum(nil))
}

// IsEncrypted reports whether value carries the cipher prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, CipherPrefix)
}

// GenerateKey returns a new base64 encoded 32-byte key.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("read key bytes: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func decodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(encoded); err == nil && len(key) == chacha20poly1305.KeySize {
			return key, nil
		}
	}
	return nil, fmt.Errorf("encryption key must be base64 of %d bytes", chacha20poly1305.KeySize)
}
