package postgres

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func newTestEncryptor(t *testing.T) *SecretEncryptor {
	t.Helper()
	key := make([]byte, aesKeyLen)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	enc, err := NewSecretEncryptor(key)
	if err != nil {
		t.Fatalf("NewSecretEncryptor: %v", err)
	}
	return enc
}

func TestSecretEncryptor_RoundTrip(t *testing.T) {
	enc := newTestEncryptor(t)

	type collaboratorSecrets struct {
		APIKey  string `json:"api_key"`
		BaseURL string `json:"base_url"`
	}
	original := collaboratorSecrets{
		APIKey:  "sk-proj-abc123",
		BaseURL: "https://api.example.com/v1",
	}

	blob, err := enc.Encrypt(original)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// The frame carries a version byte and a nonce ahead of the ciphertext.
	if len(blob) <= 1+gcmNonceLen {
		t.Fatalf("sealed blob too short: %d bytes", len(blob))
	}
	if blob[0] != blobVersion {
		t.Errorf("version byte = %#x, want %#x", blob[0], blobVersion)
	}
	if bytes.Contains(blob, []byte("sk-proj")) {
		t.Error("plaintext leaked into the blob")
	}

	var decrypted collaboratorSecrets
	if err := enc.Decrypt(blob, &decrypted); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if decrypted != original {
		t.Errorf("round trip mismatch: got %+v, want %+v", decrypted, original)
	}
}

func TestSecretEncryptor_RejectsBadKeySizes(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := NewSecretEncryptor(make([]byte, n)); !errors.Is(err, ErrInvalidKeySize) {
			t.Errorf("key of %d bytes: got %v, want ErrInvalidKeySize", n, err)
		}
	}
}

func TestSecretEncryptor_MalformedBlobs(t *testing.T) {
	enc := newTestEncryptor(t)

	var s string
	if err := enc.Decrypt(nil, &s); !errors.Is(err, ErrInvalidBlobSize) {
		t.Errorf("nil blob: got %v, want ErrInvalidBlobSize", err)
	}
	if err := enc.Decrypt([]byte{blobVersion, 0x02}, &s); !errors.Is(err, ErrInvalidBlobSize) {
		t.Errorf("truncated blob: got %v, want ErrInvalidBlobSize", err)
	}

	unknown := append([]byte{0x7f}, make([]byte, 64)...)
	if err := enc.Decrypt(unknown, &s); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("unknown version: got %v, want ErrUnsupportedVersion", err)
	}
}

func TestSecretEncryptor_WrongKey(t *testing.T) {
	enc1 := newTestEncryptor(t)
	enc2 := newTestEncryptor(t)

	blob, err := enc1.EncryptString("secret data")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if _, err := enc2.DecryptString(blob); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("foreign key: got %v, want ErrDecryptionFailed", err)
	}
}

func TestSecretEncryptor_TamperDetected(t *testing.T) {
	enc := newTestEncryptor(t)

	blob, err := enc.EncryptString("sk-original")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}

	// A single flipped bit anywhere in the frame must fail authentication.
	for _, idx := range []int{1, len(blob) / 2, len(blob) - 1} {
		copied := append([]byte(nil), blob...)
		copied[idx] ^= 0x40
		if _, err := enc.DecryptString(copied); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("bit flip at %d: got %v, want ErrDecryptionFailed", idx, err)
		}
	}
}

func TestSecretEncryptor_NonceNeverRepeats(t *testing.T) {
	enc := newTestEncryptor(t)

	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		blob, err := enc.EncryptString("same value")
		if err != nil {
			t.Fatalf("EncryptString %d: %v", i, err)
		}
		nonce := string(blob[1 : 1+gcmNonceLen])
		if seen[nonce] {
			t.Fatalf("nonce repeated on iteration %d", i)
		}
		seen[nonce] = true
	}
}

func TestSecretEncryptor_StringHelpers(t *testing.T) {
	enc := newTestEncryptor(t)

	for _, original := range []string{"sk-proj-collaborator-key", ""} {
		blob, err := enc.EncryptString(original)
		if err != nil {
			t.Fatalf("EncryptString(%q): %v", original, err)
		}
		decrypted, err := enc.DecryptString(blob)
		if err != nil {
			t.Fatalf("DecryptString(%q): %v", original, err)
		}
		if decrypted != original {
			t.Errorf("got %q, want %q", decrypted, original)
		}
	}
}
