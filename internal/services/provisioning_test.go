package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
	"github.com/gmalakar/flouds-vector-go/pkg/security"
)

func TestSetVectorStoreProvisions(t *testing.T) {
	db := newFakeDB()
	p := NewProvisioner(fakePool(db), nil)

	res, err := p.SetVectorStore(context.Background(), testCreds(), "demo")
	require.NoError(t, err)
	assert.True(t, res.DatabaseCreated)
	assert.True(t, res.UserCreated)
	assert.True(t, res.PermissionsGranted)
	assert.Equal(t, "demo_user", res.Username)
	assert.Equal(t, "flouds_demo_role", res.Role)
	require.NotEmpty(t, res.Password)
	assert.Empty(t, security.ValidatePasswordPolicy(res.Password))

	assert.True(t, db.databases["demo"])
	assert.True(t, db.roles["flouds_demo_role"])
	assert.Equal(t, res.Password, db.users["demo_user"])
	assert.Equal(t, "flouds_demo_role", db.grants["demo_user"])
}

func TestSetVectorStoreIdempotent(t *testing.T) {
	db := newFakeDB()
	p := NewProvisioner(fakePool(db), nil)

	first, err := p.SetVectorStore(context.Background(), testCreds(), "demo")
	require.NoError(t, err)

	second, err := p.SetVectorStore(context.Background(), testCreds(), "demo")
	require.NoError(t, err)
	assert.False(t, second.DatabaseCreated)
	assert.False(t, second.UserCreated)
	assert.Equal(t, first.Username, second.Username)
	assert.Empty(t, second.Password, "password is returned exactly once")
}

func TestSetVectorStoreRollbackOnGrantFailure(t *testing.T) {
	db := newFakeDB()
	db.failOn["grant_role"] = errors.New("grant denied")
	p := NewProvisioner(fakePool(db), nil)

	_, err := p.SetVectorStore(context.Background(), testCreds(), "demo")
	require.Error(t, err)

	// every step before the failure is compensated
	assert.Empty(t, db.users, "user must be dropped")
	assert.Empty(t, db.roles, "role must be dropped")
	assert.Empty(t, db.databases, "database must be dropped")
}

func TestSetVectorStoreRollbackOnUserFailure(t *testing.T) {
	db := newFakeDB()
	db.failOn["create_user"] = errors.New("user quota exceeded")
	p := NewProvisioner(fakePool(db), nil)

	_, err := p.SetVectorStore(context.Background(), testCreds(), "demo")
	require.Error(t, err)
	assert.Empty(t, db.roles)
	assert.Empty(t, db.databases)
}

func TestSetVectorStoreBadTenant(t *testing.T) {
	p := NewProvisioner(fakePool(newFakeDB()), nil)
	_, err := p.SetVectorStore(context.Background(), testCreds(), "no spaces allowed")
	require.Error(t, err)
	assert.Equal(t, apierrors.KindTenant, apierrors.KindOf(err))
}

func TestResetPassword(t *testing.T) {
	db := newFakeDB()
	p := NewProvisioner(fakePool(db), nil)

	res, err := p.SetVectorStore(context.Background(), testCreds(), "demo")
	require.NoError(t, err)

	rotated, err := p.ResetPassword(context.Background(), testCreds(), "demo", res.Password)
	require.NoError(t, err)
	assert.NotEqual(t, res.Password, rotated.NewPassword)
	assert.Empty(t, security.ValidatePasswordPolicy(rotated.NewPassword))
	assert.Equal(t, rotated.NewPassword, db.users["demo_user"])
}

func TestResetPasswordWrongOld(t *testing.T) {
	db := newFakeDB()
	p := NewProvisioner(fakePool(db), nil)
	_, err := p.SetVectorStore(context.Background(), testCreds(), "demo")
	require.NoError(t, err)

	_, err = p.ResetPassword(context.Background(), testCreds(), "demo", "wrong-old")
	require.Error(t, err)
}

func TestResetPasswordUnknownTenant(t *testing.T) {
	p := NewProvisioner(fakePool(newFakeDB()), nil)
	_, err := p.ResetPassword(context.Background(), testCreds(), "ghost", "old")
	require.Error(t, err)
	assert.Equal(t, apierrors.KindNotFound, apierrors.KindOf(err))
}
