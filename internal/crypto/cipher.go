// Package crypto seals provider secrets before they reach the database.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/fuomag9/paperdrive/internal/errs"
)

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// formatV1 prefixes every sealed value: version || nonce || ciphertext.
const formatV1 byte = 1

// Cipher seals and opens token strings with XChaCha20-Poly1305.
type Cipher struct {
	key []byte
}

// New creates a cipher from a raw 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Cipher{key: k}, nil
}

// NewFromBase64 decodes the key as configured in ENCRYPTION_KEY. Standard and
// URL alphabets are accepted, with or without padding.
func NewFromBase64(encoded string) (*Cipher, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		if key, err := enc.DecodeString(encoded); err == nil {
			return New(key)
		}
	}
	return nil, fmt.Errorf("encryption key is not valid base64")
}

// GenerateKey returns a fresh random key in the form NewFromBase64 accepts.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (c *Cipher) Seal(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, formatV1)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, []byte(plaintext), []byte{formatV1})
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Any failure is reported as errs.ErrDecryption.
func (c *Cipher) Open(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed encoding", errs.ErrDecryption)
	}
	if len(raw) < 1+chacha20poly1305.NonceSizeX {
		return "", fmt.Errorf("%w: ciphertext too short", errs.ErrDecryption)
	}
	if raw[0] != formatV1 {
		return "", fmt.Errorf("%w: unknown format version %d", errs.ErrDecryption, raw[0])
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := raw[1 : 1+chacha20poly1305.NonceSizeX]
	pt, err := aead.Open(nil, nonce, raw[1+chacha20poly1305.NonceSizeX:], raw[:1])
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrDecryption, err)
	}
	return string(pt), nil
}
