// File: internal/infra/security/encryption_service.go
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrCiphertext is returned when a sealed value can't be opened with this key
// and context.
var ErrCiphertext = errors.New("security: invalid ciphertext")

// Sealer is what storage adapters depend on for encryption at rest.
type Sealer interface {
	Seal(plaintext []byte, context string) (string, error)
	Open(sealed, context string) ([]byte, error)
}

// EncryptionService seals values with AES-GCM and a random nonce per value.
// The context string (a session or client id) is bound as associated data so
// a value copied to another record fails to open.
type EncryptionService struct {
	gcm cipher.AEAD
}

var _ Sealer = (*EncryptionService)(nil)

// NewEncryptionService constructs an AES-GCM service. Key must be 16, 24, or
// 32 bytes (AES-128/192/256).
func NewEncryptionService(key string) (*EncryptionService, error) {
	k := []byte(key)
	n := len(k)
	if n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", n)
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &EncryptionService{gcm: gcm}, nil
}

// Seal returns base64(nonce || ciphertext).
func (e *EncryptionService) Seal(plaintext []byte, context string) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := e.gcm.Seal(nonce, nonce, plaintext, []byte(context))
	return base64.StdEncoding.EncodeToString(ct), nil
}

// Open reverses Seal for the same context.
func (e *EncryptionService) Open(sealed, context string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	ns := e.gcm.NonceSize()
	if len(data) < ns {
		return nil, fmt.Errorf("%w: too short", ErrCiphertext)
	}
	pt, err := e.gcm.Open(nil, data[:ns], data[ns:], []byte(context))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	return pt, nil
}

// Encrypt and Decrypt are string helpers without a bound context.
func (e *EncryptionService) Encrypt(plaintext string) (string, error) {
	return e.Seal([]byte(plaintext), "")
}

func (e *EncryptionService) Decrypt(sealed string) (string, error) {
	pt, err := e.Open(sealed, "")
	return string(pt), err
}
