package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	secretKeyEnv = "ZONEWATCH_SECRET_KEY"
	secretPrefix = "enc:"
)

var errInvalidCiphertext = errors.New("invalid secret ciphertext")

// SecretCipher seals configuration secrets such as provider API keys.
type SecretCipher struct {
	aead cipher.AEAD
}

// NewSecretCipherFromEnv builds a cipher from ZONEWATCH_SECRET_KEY.
func NewSecretCipherFromEnv() (*SecretCipher, error) {
	raw := strings.TrimSpace(os.Getenv(secretKeyEnv))
	if raw == "" {
		return nil, fmt.Errorf("%s not set", secretKeyEnv)
	}
	return NewSecretCipher(raw)
}

// NewSecretCipher accepts a 32 byte raw key or its base64 encoding.
func NewSecretCipher(rawKey string) (*SecretCipher, error) {
	key, err := decodeKey(rawKey)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &SecretCipher{aead: aead}, nil
}

func decodeKey(raw string) ([]byte, error) {
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid key length %d, want 32", len(key))
	}
	return key, nil
}

// Seal returns the value in its "enc:" config form.
func (c *SecretCipher) Seal(plain string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return secretPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the prefix are returned unchanged.
func (c *SecretCipher) Open(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, secretPrefix)
	if !ok {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errInvalidCiphertext
	}
	ns := c.aead.NonceSize()
	if len(data) < ns {
		return "", errInvalidCiphertext
	}
	plain, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", errInvalidCiphertext
	}
	return string(plain), nil
}

func revealSecret(value string) (string, error) {
	if !strings.HasPrefix(value, secretPrefix) {
		return value, nil
	}
	c, err := NewSecretCipherFromEnv()
	if err != nil {
		return "", err
	}
	return c.Open(value)
}
