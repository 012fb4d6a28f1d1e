package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// keySize is the AES-256 key length in bytes.
const keySize = 32

// hkdfInfo binds derived keys to their purpose so the same passphrase cannot
// be reused for an unrelated component without producing a different key.
const hkdfInfo = "playground-credentials-at-rest"

// Encryptor encrypts persisted credential records with AES-256-GCM.
// A zero-value or nil-key Encryptor passes data through unchanged, so
// callers never need to branch on whether encryption is configured.
type Encryptor struct {
	key     []byte
	enabled bool
}

// NewEncryptor creates an encryptor from a raw 32-byte key. An empty key
// disables encryption.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) == 0 {
		return &Encryptor{enabled: false}, nil
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes for AES-256, got %d", keySize, len(key))
	}
	return &Encryptor{key: key, enabled: true}, nil
}

// NewEncryptorFromPassphrase derives an AES-256 key from a passphrase with
// HKDF-SHA256 and creates an encryptor from it. An empty passphrase disables
// encryption. The salt may be empty but should be a stable,
// installation-specific value when available.
func NewEncryptorFromPassphrase(passphrase, salt string) (*Encryptor, error) {
	if passphrase == "" {
		return &Encryptor{enabled: false}, nil
	}

	key, err := DeriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	return NewEncryptor(key)
}

// DeriveKey derives a 32-byte key from a passphrase using HKDF-SHA256.
func DeriveKey(passphrase, salt string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(passphrase), []byte(salt), []byte(hkdfInfo))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving encryption key: %w", err)
	}
	return key, nil
}

// IsEnabled reports whether records will actually be encrypted.
func (e *Encryptor) IsEnabled() bool {
	return e.enabled
}

// Encrypt encrypts a serialized record. The output is the nonce followed by
// the GCM ciphertext. When encryption is disabled, the input is returned
// unchanged.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	if !e.enabled {
		return plaintext, nil
	}

	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt. When encryption is disabled, the input is
// returned unchanged.
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	if !e.enabled {
		return data, nil
	}

	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting record: %w", err)
	}
	return plaintext, nil
}

func (e *Encryptor) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}
