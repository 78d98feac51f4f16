// Package cryptox holds the reversible cipher used for stored credential
// secrets and the key material helpers around it.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/pwkeeper/internal/common"
	"golang.org/x/crypto/argon2"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// keySalt is fixed on purpose: the derived key must be reproducible across
// restarts from the configured passphrase alone.
var keySalt = []byte("pwkeeper/credential-cipher/v1")

// DeriveKey stretches a passphrase into an AES-256 key with argon2id.
func DeriveKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// KeyFromConfig turns the configured encryption key into raw key bytes.
// A standard base64 string that decodes to exactly 32 bytes is used as is;
// any other non-empty value is treated as a passphrase and run through DeriveKey.
func KeyFromConfig(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("encryption key is empty")
	}
	if raw, err := base64.StdEncoding.DecodeString(value); err == nil && len(raw) == KeySize {
		return raw, nil
	}
	return DeriveKey([]byte(value), keySalt), nil
}

// GenerateKey returns a fresh random key encoded the way KeyFromConfig expects.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// SecretBox seals short secrets with AES-GCM under a single server-wide key.
//
// The sealed form is base64url(nonce || ciphertext || tag), safe to store in a
// text column. There is no key rotation: a box built from a different key cannot
// open older values and reports common.ErrorDecrypt for them.
type SecretBox struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewSecretBox builds a SecretBox for a 16, 24 or 32 byte AES key.
func NewSecretBox(key []byte) (*SecretBox, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	return &SecretBox{aead: aead, rand: rand.Reader}, nil
}

// Encrypt seals plaintext with a fresh random nonce.
func (b *SecretBox) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(b.rand, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Malformed encoding, truncation,
// tampering and a foreign key all yield an error wrapping common.ErrorDecrypt.
func (b *SecretBox) Decrypt(sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: bad encoding", common.ErrorDecrypt)
	}

	ns := b.aead.NonceSize()
	if len(raw) < ns+b.aead.Overhead() {
		return "", fmt.Errorf("%w: truncated", common.ErrorDecrypt)
	}

	plaintext, err := b.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorDecrypt, err)
	}
	return string(plaintext), nil
}
