package postgres

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
)

// Encrypted blobs are framed as version(1) || nonce(12) || ciphertext so the
// scheme can rotate later without a table migration.
const (
	blobVersion = 0x01
	gcmNonceLen = 12
	aesKeyLen   = 32
)

var (
	// ErrInvalidKeySize reports a key that is not the AES-256 length.
	ErrInvalidKeySize = errors.New("secrets key must be 32 bytes")

	// ErrInvalidBlobSize reports a blob too short to carry a full frame.
	ErrInvalidBlobSize = errors.New("sealed blob shorter than frame")

	// ErrUnsupportedVersion reports an unknown frame version byte.
	ErrUnsupportedVersion = errors.New("unknown sealed blob version")

	// ErrDecryptionFailed reports an authentication failure; a wrong key
	// and a corrupted blob are indistinguishable here.
	ErrDecryptionFailed = errors.New("sealed blob failed authentication")
)

// SecretEncryptor seals secrets with AES-256-GCM before they reach the
// database. The collaborator API key is its only current customer.
type SecretEncryptor struct {
	aead cipher.AEAD
}

// NewSecretEncryptor builds an encryptor from a 32-byte key.
func NewSecretEncryptor(key []byte) (*SecretEncryptor, error) {
	if len(key) != aesKeyLen {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &SecretEncryptor{aead: aead}, nil
}

// seal encrypts plaintext into a framed blob under a fresh random nonce.
func (e *SecretEncryptor) seal(plaintext []byte) ([]byte, error) {
	blob := make([]byte, 1+gcmNonceLen, 1+gcmNonceLen+len(plaintext)+e.aead.Overhead())
	blob[0] = blobVersion
	if _, err := rand.Read(blob[1 : 1+gcmNonceLen]); err != nil {
		return nil, fmt.Errorf("draw nonce: %w", err)
	}
	return e.aead.Seal(blob, blob[1:1+gcmNonceLen], plaintext, nil), nil
}

// open authenticates and decrypts a framed blob.
func (e *SecretEncryptor) open(blob []byte) ([]byte, error) {
	if len(blob) < 1+gcmNonceLen+e.aead.Overhead() {
		return nil, ErrInvalidBlobSize
	}
	if blob[0] != blobVersion {
		return nil, fmt.Errorf("%w: got version %d", ErrUnsupportedVersion, blob[0])
	}
	plaintext, err := e.aead.Open(nil, blob[1:1+gcmNonceLen], blob[1+gcmNonceLen:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Encrypt JSON-marshals value and seals the result.
func (e *SecretEncryptor) Encrypt(value any) ([]byte, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode secret: %w", err)
	}
	return e.seal(plaintext)
}

// Decrypt opens a blob and unmarshals the plaintext into value, which must
// be a pointer.
func (e *SecretEncryptor) Decrypt(blob []byte, value any) error {
	plaintext, err := e.open(blob)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, value); err != nil {
		return fmt.Errorf("decode secret: %w", err)
	}
	return nil
}

// EncryptString seals a bare string such as an API key.
func (e *SecretEncryptor) EncryptString(s string) ([]byte, error) {
	return e.Encrypt(s)
}

// DecryptString opens a blob sealed by EncryptString.
func (e *SecretEncryptor) DecryptString(blob []byte) (string, error) {
	var s string
	if err := e.Decrypt(blob, &s); err != nil {
		return "", err
	}
	return s, nil
}
