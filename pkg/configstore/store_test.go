package configstore

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
	"github.com/gmalakar/flouds-vector-go/pkg/security"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	key, err := security.LoadOrCreateKey(t.TempDir())
	require.NoError(t, err)
	cipher, err := security.NewCipher(key)
	require.NoError(t, err)

	s, err := New(db, cipher, nil)
	require.NoError(t, err)
	return s
}

func TestAddGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "cors_origins", "acme", "https://app.acme.io", false))

	e, err := s.Get(ctx, "cors_origins", "acme")
	require.NoError(t, err)
	assert.Equal(t, "https://app.acme.io", e.Value)
	assert.False(t, e.Encrypted)
}

func TestAddConflict(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "k", "t", "v1", false))
	err := s.Add(ctx, "k", "t", "v2", false)
	require.Error(t, err)
	assert.Equal(t, apierrors.KindConflict, apierrors.KindOf(err))

	// same key under a different tenant is a distinct row
	assert.NoError(t, s.Add(ctx, "k", "other", "v2", false))
	// and the global scope is distinct again
	assert.NoError(t, s.Add(ctx, "k", "", "v3", false))
}

func TestEncryptedValueMasked(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "api_key", "acme", "super-secret", true))

	e, err := s.Get(ctx, "api_key", "acme")
	require.NoError(t, err)
	assert.Equal(t, EncryptedSentinel, e.Value)

	plain, err := s.GetDecrypted(ctx, "api_key", "acme")
	require.NoError(t, err)
	assert.Equal(t, "super-secret", plain)

	list, err := s.List(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, EncryptedSentinel, list[0].Value)
}

func TestUpdateInvalidatesCache(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "trusted_hosts", "acme", "a.acme.io", false))

	// prime the cache
	_, err := s.Get(ctx, "trusted_hosts", "acme")
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, "trusted_hosts", "acme", "b.acme.io", nil))

	e, err := s.Get(ctx, "trusted_hosts", "acme")
	require.NoError(t, err)
	assert.Equal(t, "b.acme.io", e.Value, "read after write must observe the new value")
}

func TestUpdateFlipsEncryption(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "k", "t", "plain", false))
	enc := true
	require.NoError(t, s.Update(ctx, "k", "t", "hidden", &enc))

	e, err := s.Get(ctx, "k", "t")
	require.NoError(t, err)
	assert.Equal(t, EncryptedSentinel, e.Value)

	plain, err := s.GetDecrypted(ctx, "k", "t")
	require.NoError(t, err)
	assert.Equal(t, "hidden", plain)
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "k", "t", "v", false))
	_, err := s.Get(ctx, "k", "t")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "k", "t"))

	_, err = s.Get(ctx, "k", "t")
	assert.True(t, apierrors.IsNotFound(err))

	err = s.Delete(ctx, "k", "t")
	assert.True(t, apierrors.IsNotFound(err))
}

func TestUpdateMissing(t *testing.T) {
	s := testStore(t)
	err := s.Update(context.Background(), "ghost", "t", "v", nil)
	assert.True(t, apierrors.IsNotFound(err))
}

func TestResolveStrings(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	defaults := []string{"*"}

	// nothing stored: defaults
	assert.Equal(t, defaults, s.ResolveStrings(ctx, KeyCORSOrigins, "acme", defaults))

	// global entry wins over defaults
	require.NoError(t, s.Add(ctx, KeyCORSOrigins, "", "https://global.io, https://shared.io", false))
	assert.Equal(t, []string{"https://global.io", "https://shared.io"},
		s.ResolveStrings(ctx, KeyCORSOrigins, "acme", defaults))

	// tenant entry wins over global
	require.NoError(t, s.Add(ctx, KeyCORSOrigins, "acme", "https://app.acme.io", false))
	assert.Equal(t, []string{"https://app.acme.io"},
		s.ResolveStrings(ctx, KeyCORSOrigins, "acme", defaults))
}

func TestListOrdered(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "zeta", "t", "1", false))
	require.NoError(t, s.Add(ctx, "alpha", "t", "2", false))

	list, err := s.List(ctx, "t")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Key)
	assert.Equal(t, "zeta", list[1].Key)
}
