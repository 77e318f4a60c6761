package services

import (
	"context"

	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
	"github.com/gmalakar/flouds-vector-go/pkg/observability"
	"github.com/gmalakar/flouds-vector-go/pkg/security"
	"github.com/gmalakar/flouds-vector-go/pkg/transaction"
	"github.com/gmalakar/flouds-vector-go/pkg/vectordb"
)

// ProvisionResult summarises a set_vector_store call. Password is
// returned exactly once, on the call that created the user.
type ProvisionResult struct {
	DatabaseCreated    bool   `json:"database_created"`
	UserCreated        bool   `json:"user_created"`
	PermissionsGranted bool   `json:"permissions_granted"`
	Username           string `json:"username,omitempty"`
	Password           string `json:"password,omitempty"`
	Role               string `json:"role,omitempty"`
}

// ResetPasswordResult carries a freshly-generated password, returned once.
type ResetPasswordResult struct {
	NewPassword string `json:"new_password"`
}

// Provisioner drives the tenant lifecycle state machine: database, role,
// user and grants, each step compensated so a mid-flight failure leaves
// no partial tenant behind.
type Provisioner struct {
	pool   *vectordb.Pool
	logger observability.Logger
}

// NewProvisioner builds the provisioning service.
func NewProvisioner(pool *vectordb.Pool, logger observability.Logger) *Provisioner {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Provisioner{pool: pool, logger: logger.WithPrefix("provisioning")}
}

// SetVectorStore idempotently provisions a tenant: database, role, user
// (with a generated password on first creation) and the role grant.
func (p *Provisioner) SetVectorStore(ctx context.Context, creds vectordb.Credentials, tenant string) (*ProvisionResult, error) {
	if !security.ValidTenantCode(tenant) {
		return nil, apierrors.Newf(apierrors.KindTenant, "invalid tenant code %q", tenant)
	}

	handle, err := p.pool.Acquire(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer handle.Release()
	client := handle.Client

	database := TenantDatabase(tenant)
	role := TenantRole(tenant)
	user := TenantUser(tenant)

	dbExists, err := client.HasDatabase(ctx, database)
	if err != nil {
		return nil, err
	}
	roleExists, err := client.HasRole(ctx, role)
	if err != nil {
		return nil, err
	}
	userExists, err := client.HasUser(ctx, user)
	if err != nil {
		return nil, err
	}

	var password string
	if !userExists {
		password, err = security.GeneratePassword(16)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, "generate password", err)
		}
	}

	txn := transaction.New("set_vector_store:"+tenant, p.logger)
	if !dbExists {
		txn.Add("create-database", func(ctx context.Context) (interface{}, error) {
			return nil, client.CreateDatabase(ctx, database)
		}, func(ctx context.Context, _ interface{}) error {
			return client.DropDatabase(ctx, database)
		})
	}
	if !roleExists {
		txn.Add("create-role", func(ctx context.Context) (interface{}, error) {
			return nil, client.CreateRole(ctx, role)
		}, func(ctx context.Context, _ interface{}) error {
			return client.DropRole(ctx, role)
		})
	}
	if !userExists {
		txn.Add("create-user", func(ctx context.Context) (interface{}, error) {
			return nil, client.CreateUser(ctx, user, password)
		}, func(ctx context.Context, _ interface{}) error {
			return client.DropUser(ctx, user)
		})
	}
	// grants are idempotent, so this runs on every call
	txn.Add("grant-role", func(ctx context.Context) (interface{}, error) {
		return nil, client.GrantRole(ctx, user, role)
	}, func(ctx context.Context, _ interface{}) error {
		return client.RevokeRole(ctx, user, role)
	})

	if _, err := txn.Execute(ctx); err != nil {
		return nil, err
	}

	p.logger.Info("tenant provisioned", map[string]interface{}{
		"tenant": tenant, "database_created": !dbExists, "user_created": !userExists,
	})
	result := &ProvisionResult{
		DatabaseCreated:    !dbExists,
		UserCreated:        !userExists,
		PermissionsGranted: true,
		Username:           user,
		Role:               role,
	}
	if !userExists {
		result.Password = password
	}
	return result, nil
}

// ResetPassword rotates the tenant user's database password. The caller
// must present the current password; the new one is generated under the
// password policy and returned exactly once.
func (p *Provisioner) ResetPassword(ctx context.Context, creds vectordb.Credentials, tenant, oldPassword string) (*ResetPasswordResult, error) {
	if !security.ValidTenantCode(tenant) {
		return nil, apierrors.Newf(apierrors.KindTenant, "invalid tenant code %q", tenant)
	}
	if oldPassword == "" {
		return nil, apierrors.New(apierrors.KindValidation, "current password is required")
	}

	handle, err := p.pool.Acquire(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	user := TenantUser(tenant)
	exists, err := handle.Client.HasUser(ctx, user)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apierrors.Newf(apierrors.KindNotFound, "user for tenant %q not found", tenant)
	}

	newPassword, err := security.GeneratePassword(16)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, "generate password", err)
	}
	if err := handle.Client.UpdatePassword(ctx, user, oldPassword, newPassword); err != nil {
		return nil, err
	}

	p.logger.Info("tenant password rotated", map[string]interface{}{"tenant": tenant})
	return &ResetPasswordResult{NewPassword: newPassword}, nil
}
