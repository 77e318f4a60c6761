// Package configstore persists tenant-scoped configuration key/value pairs
// with optional encryption at rest and a write-invalidated in-memory cache.
// CORS origin and trusted-host policies are served from here, so cache
// invalidation is synchronous with every write: a policy change takes
// effect on the next request without a restart.
package configstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
	"github.com/gmalakar/flouds-vector-go/pkg/observability"
	"github.com/gmalakar/flouds-vector-go/pkg/security"
)

// EncryptedSentinel is returned in place of ciphertext when an encrypted
// entry is read through the public surface.
const EncryptedSentinel = "<encrypted>"

// Hot policy keys resolved on every request.
const (
	KeyCORSOrigins  = "cors_origins"
	KeyTrustedHosts = "trusted_hosts"
	KeyRateTier     = "rate_limit_tier"
)

const schema = `
CREATE TABLE IF NOT EXISTS config_kv (
	key         TEXT NOT NULL,
	tenant_code TEXT NOT NULL DEFAULT '',
	value       TEXT NOT NULL,
	encrypted   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (key, tenant_code)
)`

// Entry is one configuration row. An empty TenantCode means global scope.
type Entry struct {
	Key        string `db:"key" json:"key"`
	TenantCode string `db:"tenant_code" json:"tenant_code"`
	Value      string `db:"value" json:"value"`
	Encrypted  bool   `db:"encrypted" json:"encrypted"`
}

// Store is the persisted configuration store. Safe for concurrent use.
type Store struct {
	db     *sqlx.DB
	cipher *security.Cipher
	cache  *cache
	logger observability.Logger
}

// New prepares the config_kv table and returns a store.
func New(db *sqlx.DB, cipher *security.Cipher, logger observability.Logger) (*Store, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, apierrors.Wrap(apierrors.KindConfiguration, "initialize config store", err)
	}
	return &Store{
		db:     db,
		cipher: cipher,
		cache:  newCache(512),
		logger: logger.WithPrefix("configstore"),
	}, nil
}

// Add creates a new entry. Fails with a conflict when the (key, tenant)
// pair already exists.
func (s *Store) Add(ctx context.Context, key, tenant, value string, encrypted bool) error {
	stored, err := s.storedValue(value, encrypted)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO config_kv (key, tenant_code, value, encrypted) VALUES (?, ?, ?, ?)`,
		key, tenant, stored, encrypted)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return apierrors.Newf(apierrors.KindConflict, "config key %q already exists for tenant %q", key, tenant)
		}
		return apierrors.Wrap(apierrors.KindOperation, "add config entry", err)
	}
	s.cache.invalidate(key, tenant)
	s.logger.Info("config entry added", map[string]interface{}{
		"key": key, "tenant": tenant, "encrypted": encrypted,
	})
	return nil
}

// Get returns an entry with ciphertext masked by EncryptedSentinel.
func (s *Store) Get(ctx context.Context, key, tenant string) (Entry, error) {
	e, err := s.fetch(ctx, key, tenant)
	if err != nil {
		return Entry{}, err
	}
	if e.Encrypted {
		e.Value = EncryptedSentinel
	}
	return e, nil
}

// GetDecrypted returns the plaintext value, decrypting when needed. For
// internal callers only; handlers must use Get.
func (s *Store) GetDecrypted(ctx context.Context, key, tenant string) (string, error) {
	e, err := s.fetch(ctx, key, tenant)
	if err != nil {
		return "", err
	}
	if !e.Encrypted {
		return e.Value, nil
	}
	if s.cipher == nil {
		return "", apierrors.New(apierrors.KindConfiguration, "encrypted entry but no cipher configured")
	}
	plain, err := s.cipher.Decrypt(e.Value)
	if err != nil {
		return "", apierrors.Wrap(apierrors.KindConfiguration, "decrypt config entry", err)
	}
	return plain, nil
}

// Update overwrites the value and, when encrypted is non-nil, the
// encryption flag of an existing entry.
func (s *Store) Update(ctx context.Context, key, tenant, value string, encrypted *bool) error {
	current, err := s.fetch(ctx, key, tenant)
	if err != nil {
		return err
	}
	enc := current.Encrypted
	if encrypted != nil {
		enc = *encrypted
	}
	stored, err := s.storedValue(value, enc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE config_kv SET value = ?, encrypted = ? WHERE key = ? AND tenant_code = ?`,
		stored, enc, key, tenant)
	if err != nil {
		return apierrors.Wrap(apierrors.KindOperation, "update config entry", err)
	}
	s.cache.invalidate(key, tenant)
	return nil
}

// Delete removes an entry. Deleting an absent entry is a not-found error.
func (s *Store) Delete(ctx context.Context, key, tenant string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM config_kv WHERE key = ? AND tenant_code = ?`, key, tenant)
	if err != nil {
		return apierrors.Wrap(apierrors.KindOperation, "delete config entry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierrors.Newf(apierrors.KindNotFound, "config key %q not found for tenant %q", key, tenant)
	}
	s.cache.invalidate(key, tenant)
	return nil
}

// List enumerates a tenant's entries with ciphertext masked.
func (s *Store) List(ctx context.Context, tenant string) ([]Entry, error) {
	var entries []Entry
	err := s.db.SelectContext(ctx, &entries,
		`SELECT key, tenant_code, value, encrypted FROM config_kv WHERE tenant_code = ? ORDER BY key`, tenant)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindOperation, "list config entries", err)
	}
	for i := range entries {
		if entries[i].Encrypted {
			entries[i].Value = EncryptedSentinel
		}
	}
	return entries, nil
}

// ResolveStrings reads a comma-separated list value, preferring the
// tenant-scoped entry, then the global entry, then the supplied defaults.
func (s *Store) ResolveStrings(ctx context.Context, key, tenant string, defaults []string) []string {
	for _, scope := range scopes(tenant) {
		value, err := s.GetDecrypted(ctx, key, scope)
		if err == nil {
			return splitList(value)
		}
		if !apierrors.IsNotFound(err) {
			s.logger.Warn("config lookup failed, using defaults", map[string]interface{}{
				"key": key, "tenant": scope, "error": security.SanitizeErrorMessage(err.Error()),
			})
			break
		}
	}
	return defaults
}

func scopes(tenant string) []string {
	if tenant == "" {
		return []string{""}
	}
	return []string{tenant, ""}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) fetch(ctx context.Context, key, tenant string) (Entry, error) {
	if e, ok := s.cache.get(key, tenant); ok {
		return e, nil
	}
	var e Entry
	err := s.db.GetContext(ctx, &e,
		`SELECT key, tenant_code, value, encrypted FROM config_kv WHERE key = ? AND tenant_code = ?`,
		key, tenant)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, apierrors.Newf(apierrors.KindNotFound, "config key %q not found for tenant %q", key, tenant)
	}
	if err != nil {
		return Entry{}, apierrors.Wrap(apierrors.KindOperation, "read config entry", err)
	}
	s.cache.put(key, tenant, e)
	return e, nil
}

func (s *Store) storedValue(value string, encrypted bool) (string, error) {
	if !encrypted {
		return value, nil
	}
	if s.cipher == nil {
		return "", apierrors.New(apierrors.KindConfiguration, "encrypted entry but no cipher configured")
	}
	ct, err := s.cipher.Encrypt(value)
	if err != nil {
		return "", apierrors.Wrap(apierrors.KindConfiguration, "encrypt config entry", err)
	}
	return ct, nil
}
