package sqlite

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks a column value written by secretBox.seal.
const sealedPrefix = "gcm1:"

// ErrSecretKeyRequired is returned when a sealed value is read without a key.
var ErrSecretKeyRequired = errors.New("value is encrypted but no secret key is configured")

// secretBox encrypts individual column values with AES-256-GCM. A nil
// *secretBox stores values as plain text.
type secretBox struct {
	gcm cipher.AEAD
}

// newSecretBox returns nil for an empty key. Otherwise key must be 32 bytes.
func newSecretBox(key []byte) (*secretBox, error) {
	if len(key) == 0 {
		return nil, nil
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("secret key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &secretBox{gcm: gcm}, nil
}

// seal returns the prefixed base64 of nonce || ciphertext || tag. Empty
// values stay empty.
func (b *secretBox) seal(plaintext string) (string, error) {
	if b == nil || plaintext == "" {
		return plaintext, nil
	}

	nonce := make([]byte, b.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	sealed := b.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// open reverses seal. Values without the prefix were stored before a key was
// configured and are returned unchanged.
func (b *secretBox) open(stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, sealedPrefix)
	if !ok {
		return stored, nil
	}
	if b == nil {
		return "", ErrSecretKeyRequired
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	nonceSize := b.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := b.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}
	return string(plaintext), nil
}
