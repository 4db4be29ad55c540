// Package crypto encrypts secrets stored at rest, such as SCM access tokens.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Encryptor encrypts and decrypts short secrets. The context string is bound
// to the ciphertext as associated data, so a value copied onto another row
// fails to decrypt.
type Encryptor interface {
	Seal(plaintext, context string) (string, error)
	Open(encoded, context string) (string, error)
}

var (
	// ErrInvalidKey is returned when the encryption key is invalid.
	ErrInvalidKey = errors.New("crypto: invalid encryption key")
	// ErrInvalidCiphertext is returned when the ciphertext is malformed.
	ErrInvalidCiphertext = errors.New("crypto: invalid ciphertext")
	// ErrDecryptionFailed is returned when authentication of the ciphertext fails.
	ErrDecryptionFailed = errors.New("crypto: decryption failed")
)

// Cipher is an AES-256-GCM Encryptor.
type Cipher struct {
	aead cipher.AEAD
}

var _ Encryptor = (*Cipher)(nil)

// NewCipher creates a Cipher from a 32 byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: key must be exactly 32 bytes, got %d", ErrInvalidKey, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// NewCipherFromHex creates a Cipher from a 64 character hex key.
func NewCipherFromHex(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex key", ErrInvalidKey)
	}
	return NewCipher(key)
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext).
func (c *Cipher) Seal(plaintext, context string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(context))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. context must match the value used when sealing.
func (c *Cipher) Open(encoded, context string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", ErrInvalidCiphertext)
	}
	n := c.aead.NonceSize()
	if len(raw) < n+c.aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrInvalidCiphertext)
	}
	plaintext, err := c.aead.Open(nil, raw[:n], raw[n:], []byte(context))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// NoOpEncryptor stores secrets in clear text. It exists for local development
// where no encryption key is configured.
type NoOpEncryptor struct{}

// Seal returns plaintext unchanged.
func (NoOpEncryptor) Seal(plaintext, _ string) (string, error) { return plaintext, nil }

// Open returns encoded unchanged.
func (NoOpEncryptor) Open(encoded, _ string) (string, error) { return encoded, nil }
