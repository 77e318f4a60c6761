// Package keymanager owns client identity records: creation, secret
// verification, fingerprint issuance and tenant binding. Secrets are
// verified against a bcrypt hash; an encrypted copy is kept for operator
// recovery under the process master key.
package keymanager

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
	"github.com/gmalakar/flouds-vector-go/pkg/observability"
	"github.com/gmalakar/flouds-vector-go/pkg/security"
)

const schema = `
CREATE TABLE IF NOT EXISTS clients (
	username         TEXT PRIMARY KEY,
	hashed_secret    TEXT NOT NULL,
	encrypted_secret TEXT NOT NULL,
	fingerprint      TEXT NOT NULL,
	tenant_code      TEXT NOT NULL DEFAULT '',
	actions          TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMP NOT NULL,
	last_used_at     TIMESTAMP
)`

// ActionAdmin grants every operation including provisioning and config.
const ActionAdmin = "admin"

// Client is a stored principal. An empty TenantCode denotes a global
// admin client.
type Client struct {
	Username        string       `db:"username" json:"username"`
	HashedSecret    string       `db:"hashed_secret" json:"-"`
	EncryptedSecret string       `db:"encrypted_secret" json:"-"`
	Fingerprint     string       `db:"fingerprint" json:"fingerprint"`
	TenantCode      string       `db:"tenant_code" json:"tenant_code"`
	Actions         string       `db:"actions" json:"actions"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	LastUsedAt      sql.NullTime `db:"last_used_at" json:"last_used_at,omitempty"`
}

// Allows reports whether the client may perform action. Admin clients may
// perform everything.
func (c *Client) Allows(action string) bool {
	for _, a := range strings.Split(c.Actions, ",") {
		a = strings.TrimSpace(a)
		if a == ActionAdmin || a == action {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the client carries the admin action.
func (c *Client) IsAdmin() bool { return c.Allows(ActionAdmin) }

// FingerprintRecord is the audit view of a client.
type FingerprintRecord struct {
	Username    string       `db:"username" json:"username"`
	Fingerprint string       `db:"fingerprint" json:"fingerprint"`
	TenantCode  string       `db:"tenant_code" json:"tenant_code"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	LastUsedAt  sql.NullTime `db:"last_used_at" json:"last_used_at,omitempty"`
}

// Manager persists and validates clients. Safe for concurrent use.
type Manager struct {
	db     *sqlx.DB
	cipher *security.Cipher
	logger observability.Logger
}

// New prepares the clients table and returns a manager.
func New(db *sqlx.DB, cipher *security.Cipher, logger observability.Logger) (*Manager, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, apierrors.Wrap(apierrors.KindConfiguration, "initialize key manager", err)
	}
	return &Manager{db: db, cipher: cipher, logger: logger.WithPrefix("keymanager")}, nil
}

// CreateClient stores a new principal. actions is the allowed-action list;
// pass []string{ActionAdmin} for an admin client.
func (m *Manager) CreateClient(ctx context.Context, username, secret, tenant string, actions []string) (*Client, error) {
	if username == "" || secret == "" {
		return nil, apierrors.New(apierrors.KindValidation, "username and secret are required")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, "hash secret", err)
	}
	encrypted, err := m.cipher.Encrypt(secret)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindConfiguration, "encrypt secret", err)
	}

	c := &Client{
		Username:        username,
		HashedSecret:    string(hashed),
		EncryptedSecret: encrypted,
		Fingerprint:     security.Fingerprint(username, string(hashed)),
		TenantCode:      tenant,
		Actions:         strings.Join(actions, ","),
		CreatedAt:       time.Now().UTC(),
	}
	_, err = m.db.NamedExecContext(ctx, `
		INSERT INTO clients (username, hashed_secret, encrypted_secret, fingerprint, tenant_code, actions, created_at)
		VALUES (:username, :hashed_secret, :encrypted_secret, :fingerprint, :tenant_code, :actions, :created_at)`, c)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, apierrors.Newf(apierrors.KindConflict, "client %q already exists", username)
		}
		return nil, apierrors.Wrap(apierrors.KindOperation, "create client", err)
	}
	m.logger.Info("client created", map[string]interface{}{
		"username": username, "tenant": tenant, "fingerprint": c.Fingerprint,
	})
	return c, nil
}

// Validate verifies a presented secret and, when expectedTenant is
// non-empty, that the client is bound to that tenant. Global admin clients
// (empty tenant binding) pass any tenant check.
func (m *Manager) Validate(ctx context.Context, username, secret, expectedTenant string) (*Client, error) {
	c, err := m.get(ctx, username)
	if err != nil {
		if apierrors.IsNotFound(err) {
			// same response as a bad secret so probes cannot enumerate users
			return nil, apierrors.New(apierrors.KindAuthentication, "invalid credentials")
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(c.HashedSecret), []byte(secret)) != nil {
		return nil, apierrors.New(apierrors.KindAuthentication, "invalid credentials")
	}
	if expectedTenant != "" && c.TenantCode != "" && c.TenantCode != expectedTenant {
		return nil, apierrors.New(apierrors.KindAuthentication, "tenant mismatch")
	}
	m.touch(ctx, username)
	return c, nil
}

// Exists reports whether a client record is present.
func (m *Manager) Exists(ctx context.Context, username string) (bool, error) {
	_, err := m.get(ctx, username)
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateSecret replaces a client's secret, re-deriving the hash,
// encrypted copy and fingerprint. Returns the previous record so callers
// can restore it on a failed compound operation.
func (m *Manager) UpdateSecret(ctx context.Context, username, newSecret string) (*Client, error) {
	prev, err := m.get(ctx, username)
	if err != nil {
		return nil, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(newSecret), bcrypt.DefaultCost)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, "hash secret", err)
	}
	encrypted, err := m.cipher.Encrypt(newSecret)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindConfiguration, "encrypt secret", err)
	}
	_, err = m.db.ExecContext(ctx, `
		UPDATE clients SET hashed_secret = ?, encrypted_secret = ?, fingerprint = ? WHERE username = ?`,
		string(hashed), encrypted, security.Fingerprint(username, string(hashed)), username)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindOperation, "update client secret", err)
	}
	return prev, nil
}

// RestoreSecret puts back a previously-captured credential snapshot.
func (m *Manager) RestoreSecret(ctx context.Context, snapshot *Client) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE clients SET hashed_secret = ?, encrypted_secret = ?, fingerprint = ? WHERE username = ?`,
		snapshot.HashedSecret, snapshot.EncryptedSecret, snapshot.Fingerprint, snapshot.Username)
	if err != nil {
		return apierrors.Wrap(apierrors.KindOperation, "restore client secret", err)
	}
	return nil
}

// ListFingerprints returns the audit view of every client.
func (m *Manager) ListFingerprints(ctx context.Context) ([]FingerprintRecord, error) {
	var records []FingerprintRecord
	err := m.db.SelectContext(ctx, &records, `
		SELECT username, fingerprint, tenant_code, created_at, last_used_at
		FROM clients ORDER BY username`)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindOperation, "list fingerprints", err)
	}
	return records, nil
}

func (m *Manager) get(ctx context.Context, username string) (*Client, error) {
	var c Client
	err := m.db.GetContext(ctx, &c, `SELECT * FROM clients WHERE username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierrors.Newf(apierrors.KindNotFound, "client %q not found", username)
	}
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindOperation, "read client", err)
	}
	return &c, nil
}

func (m *Manager) touch(ctx context.Context, username string) {
	_, err := m.db.ExecContext(ctx,
		`UPDATE clients SET last_used_at = ? WHERE username = ?`, time.Now().UTC(), username)
	if err != nil {
		m.logger.Warn("update last_used_at failed", map[string]interface{}{
			"username": username, "error": err.Error(),
		})
	}
}
