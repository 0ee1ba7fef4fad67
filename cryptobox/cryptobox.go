package cryptobox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const nonceSize = 12

// DecryptionError indicates a secret blob could not be decrypted - corrupt
// ciphertext, a truncated blob, or an authentication tag mismatch. Callers
// treat this as "secret unavailable" rather than a fatal condition.
type DecryptionError struct {
	Reason string
}

func (e *DecryptionError) Error() string {
	return "decryption failed: " + e.Reason
}

// CryptoBox encrypts and decrypts secret strings at rest using AES-256-GCM.
// The encrypted blob layout is base64(nonce || ciphertext+tag) with a fresh
// random 96-bit nonce per call.
type CryptoBox struct {
	aead cipher.AEAD
}

// New creates a CryptoBox from a 32-byte key.
func New(key []byte) (*CryptoBox, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CryptoBox{aead: aead}, nil
}

// Encrypt encrypts plaintext and returns the base64-encoded blob.
func (c *CryptoBox) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt decodes and decrypts a blob produced by Encrypt. All failure
// modes return a *DecryptionError.
func (c *CryptoBox) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", &DecryptionError{Reason: "malformed base64"}
	}

	if len(raw) < nonceSize {
		return "", &DecryptionError{Reason: "truncated blob"}
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", &DecryptionError{Reason: "authentication failed"}
	}

	return string(plaintext), nil
}
