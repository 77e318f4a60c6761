package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const keySize = 32 // AES-256

// Cipher encrypts and decrypts short secrets with AES-GCM under a
// long-lived process key. Ciphertext is base64 with the nonce prepended.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// LoadOrCreateKey reads the master key from dir/master.key, generating and
// persisting a fresh one on first start. The key file is owner-read-only.
func LoadOrCreateKey(dir string) ([]byte, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create secrets dir: %w", err)
	}
	path := filepath.Join(dir, "master.key")

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		key, decErr := hex.DecodeString(string(raw))
		if decErr != nil || len(key) != keySize {
			return nil, fmt.Errorf("key file %s is corrupt", path)
		}
		return key, nil
	case errors.Is(err, os.ErrNotExist):
		key := make([]byte, keySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}
		if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o400); err != nil {
			return nil, fmt.Errorf("persist key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("read key file: %w", err)
	}
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decrypt: malformed ciphertext: %w", err)
	}
	ns := c.aead.NonceSize()
	if len(sealed) < ns {
		return "", errors.New("decrypt: ciphertext too short")
	}
	plain, err := c.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plain), nil
}

// Fingerprint derives the stable audit identifier for a client from its
// username and hashed secret.
func Fingerprint(username, hashedSecret string) string {
	sum := sha256.Sum256([]byte(username + ":" + hashedSecret))
	return hex.EncodeToString(sum[:16])
}
