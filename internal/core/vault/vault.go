// Package vault encrypts signing secrets at rest.
//
// Secrets are sealed with AES-256-GCM under a key derived from the
// deployment-wide secret. Each call to Encrypt uses a fresh random nonce, so
// encrypting the same secret twice yields different envelopes. There is no
// recovery path: losing the deployment secret loses every wallet key.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/vietddude/custody/internal/core/domain"
)

const (
	envelopePrefix = "enc:v1:"
	keyInfo        = "custody/keyvault/v1"
	keySize        = 32

	// MinSecretLength is the shortest accepted deployment secret.
	MinSecretLength = 32
)

// ErrWeakSecret is returned when the deployment secret is too short.
var ErrWeakSecret = fmt.Errorf("encryption secret must be at least %d characters", MinSecretLength)

// Vault seals and opens wallet secrets.
type Vault struct {
	aead cipher.AEAD
}

// New derives the vault key from the deployment secret.
func New(secret string) (*Vault, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext into an envelope of the form enc:v1:<nonce>:<sealed>.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return envelopePrefix + hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt opens an envelope produced by Encrypt. A malformed envelope or a
// failed authentication tag yields a *domain.IntegrityError.
func (v *Vault) Decrypt(envelope string) (string, error) {
	if !strings.HasPrefix(envelope, envelopePrefix) {
		return "", &domain.IntegrityError{Reason: "unknown envelope format"}
	}

	parts := strings.Split(strings.TrimPrefix(envelope, envelopePrefix), ":")
	if len(parts) != 2 {
		return "", &domain.IntegrityError{Reason: "malformed envelope"}
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != v.aead.NonceSize() {
		return "", &domain.IntegrityError{Reason: "invalid nonce"}
	}
	sealed, err := hex.DecodeString(parts[1])
	if err != nil || len(sealed) < v.aead.Overhead() {
		return "", &domain.IntegrityError{Reason: "invalid ciphertext"}
	}

	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", &domain.IntegrityError{Reason: "authentication failed"}
	}
	defer clear(plaintext)

	return string(plaintext), nil
}
