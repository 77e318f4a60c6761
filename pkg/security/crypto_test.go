package security

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	key, err := LoadOrCreateKey(t.TempDir())
	require.NoError(t, err)
	c, err := NewCipher(key)
	require.NoError(t, err)
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := testCipher(t)

	ct, err := c.Encrypt("s3cret-value")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-value", ct)

	pt, err := c.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-value", pt)
}

func TestEncryptNonDeterministic(t *testing.T) {
	c := testCipher(t)
	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptRejectsTampering(t *testing.T) {
	c := testCipher(t)
	_, err := c.Decrypt("not-base64!!!")
	assert.Error(t, err)

	ct, err := c.Encrypt("value")
	require.NoError(t, err)
	_, err = c.Decrypt(ct[:len(ct)-4] + "AAAA")
	assert.Error(t, err)
}

func TestLoadOrCreateKeyStable(t *testing.T) {
	dir := t.TempDir()
	k1, err := LoadOrCreateKey(dir)
	require.NoError(t, err)
	k2, err := LoadOrCreateKey(dir)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(k1, k2))
	assert.Len(t, k1, 32)
}

func TestNewCipherRejectsBadKey(t *testing.T) {
	_, err := NewCipher([]byte("short"))
	assert.Error(t, err)
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("admin", "hash1")
	assert.Equal(t, a, Fingerprint("admin", "hash1"))
	assert.NotEqual(t, a, Fingerprint("admin", "hash2"))
	assert.NotEqual(t, a, Fingerprint("other", "hash1"))
	assert.Len(t, a, 32)
}
