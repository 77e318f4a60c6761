package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmalakar/flouds-vector-go/internal/services"
	"github.com/gmalakar/flouds-vector-go/pkg/config"
	"github.com/gmalakar/flouds-vector-go/pkg/configstore"
	"github.com/gmalakar/flouds-vector-go/pkg/keymanager"
	"github.com/gmalakar/flouds-vector-go/pkg/ratelimit"
	"github.com/gmalakar/flouds-vector-go/pkg/security"
	"github.com/gmalakar/flouds-vector-go/pkg/vectordb"
)

// fakeVectorDB implements just enough of vectordb.Client for the routes
// under test; anything else panics via the embedded nil interface.
type fakeVectorDB struct {
	vectordb.Client

	mu          sync.Mutex
	collections map[string]int
	rows        map[string]map[string]vectordb.Row
	denseHits   []vectordb.Hit
}

func newFakeVectorDB() *fakeVectorDB {
	return &fakeVectorDB{
		collections: map[string]int{},
		rows:        map[string]map[string]vectordb.Row{},
	}
}

func (f *fakeVectorDB) Ping(context.Context) error { return nil }

func (f *fakeVectorDB) HasCollection(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.collections[name]
	return ok, nil
}

func (f *fakeVectorDB) DescribeCollection(_ context.Context, name string) (*vectordb.CollectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dim, ok := f.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", name)
	}
	return &vectordb.CollectionInfo{Name: name, Dimension: dim}, nil
}

func (f *fakeVectorDB) CreateCollection(_ context.Context, spec vectordb.CollectionSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[spec.Name] = spec.Dimension
	return nil
}

func (f *fakeVectorDB) Upsert(_ context.Context, collection string, rows []vectordb.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.rows[collection]
	if !ok {
		stored = map[string]vectordb.Row{}
		f.rows[collection] = stored
	}
	for _, row := range rows {
		stored[row[vectordb.FieldID].(string)] = row
	}
	return nil
}

func (f *fakeVectorDB) Flush(context.Context, string) error { return nil }

func (f *fakeVectorDB) SearchDense(context.Context, vectordb.DenseSearch) ([]vectordb.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.denseHits, nil
}

func (f *fakeVectorDB) GrantPrivilege(context.Context, string, string, string) error { return nil }

func (f *fakeVectorDB) Close() error { return nil }

type testServer struct {
	handler http.Handler
	db      *fakeVectorDB
	health  *HealthChecker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clientsDB, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { clientsDB.Close() })
	clientsDB.SetMaxOpenConns(1)

	cipher, err := security.NewCipher(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	store, err := configstore.New(clientsDB, cipher, nil)
	require.NoError(t, err)
	km, err := keymanager.New(clientsDB, cipher, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = km.CreateClient(ctx, "root-admin", "root-admin-secret", "", []string{keymanager.ActionAdmin})
	require.NoError(t, err)
	_, err = km.CreateClient(ctx, "acme-app", "acme-app-secret", "acme", []string{"read", "write"})
	require.NoError(t, err)

	fake := newFakeVectorDB()
	pool := vectordb.NewPool(func(context.Context, vectordb.Credentials) (vectordb.Client, error) {
		return fake, nil
	}, vectordb.DefaultPoolConfig(), nil, nil)
	t.Cleanup(pool.Close)

	cfg := &config.Config{}
	cfg.Server.MaxBodyBytes = 1 << 20
	cfg.Database.Endpoint = "localhost"
	cfg.Database.Port = 19530
	cfg.Database.Database = "default"
	cfg.Security.CORSOrigins = []string{"*"}
	cfg.Security.TrustedHosts = []string{"*"}
	cfg.Vector = config.VectorDefaults{
		Dimension:         4,
		MetricType:        vectordb.MetricCosine,
		IndexType:         "IVF_FLAT",
		Nlist:             16,
		MetadataLength:    1024,
		DropRatioBuild:    0.2,
		AutoFlushMinBatch: 100,
	}
	cfg.RateLimits = config.RateLimitConfig{IPLimit: 10000, TenantDefault: 10000, TenantPremium: 10000}

	health := NewHealthChecker(clientsDB, pool, vectordb.Credentials{
		URI: "localhost:19530", User: "root", Secret: "secret", Database: "default",
	}, nil)

	server := NewServer(Deps{
		Config:        cfg,
		ConfigStore:   store,
		KeyManager:    km,
		VectorStore:   services.NewVectorStore(pool, cfg.Vector, nil),
		Provisioner:   services.NewProvisioner(pool, nil),
		Health:        health,
		IPLimiter:     ratelimit.NewLimiter(),
		TenantLimiter: ratelimit.NewTenantLimiter(nil, nil),
	})
	return &testServer{handler: server.Handler(), db: fake, health: health}
}

type requestOpt func(*http.Request)

func asAdmin() requestOpt {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer root-admin:root-admin-secret")
	}
}

func asTenantUser() requestOpt {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer acme-app:acme-app-secret")
	}
}

func withTenant(code string) requestOpt {
	return func(r *http.Request) { r.Header.Set("X-Tenant-Code", code) }
}

func withDBToken() requestOpt {
	return func(r *http.Request) { r.Header.Set("Flouds-VectorDB-Token", "acme_user|dbsecret") }
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, opts ...requestOpt) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/vector_store/search", payload("model_name", "m", "vector", []float32{1}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "authentication_error", body["type"])
}

// payload builds a map literal for request bodies.
func payload(kv ...interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}

func TestAdminGateOnSchema(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/vector_store/generate_schema",
		payload("model_name", "modelx", "dimension", 4),
		asTenantUser(), withTenant("acme"), withDBToken())
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "authorization_error", decodeBody(t, rec)["type"])
}

func TestGenerateSchemaAndInsertAndSearch(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/vector_store/generate_schema",
		payload("model_name", "modelx", "dimension", 4),
		asAdmin(), withTenant("acme"), withDBToken())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "acme", body["tenant_code"])
	results := body["results"].(map[string]interface{})
	assert.Equal(t, "vector_store_schema_for_acme_modelx", results["collection_name"])
	assert.Equal(t, true, results["created"])

	rec = ts.do(t, http.MethodPost, "/api/v1/vector_store/insert",
		payload("model_name", "modelx", "data", []map[string]interface{}{
			{"key": "doc-1", "chunk": "alpha beta", "vector": []float32{1, 0, 0, 0}},
			{"key": "doc-2", "chunk": "gamma delta", "vector": []float32{0, 1, 0, 0}},
		}),
		asTenantUser(), withTenant("acme"), withDBToken())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	results = decodeBody(t, rec)["results"].(map[string]interface{})
	assert.Equal(t, float64(2), results["inserted"])

	ts.db.denseHits = []vectordb.Hit{
		{ID: "doc-1", Score: 0.9, Chunk: "alpha beta"},
		{ID: "doc-2", Score: 0.7, Chunk: "gamma delta"},
	}
	rec = ts.do(t, http.MethodPost, "/api/v1/vector_store/search",
		payload("model", "modelx", "vector", []float32{1, 0, 0, 0}, "limit", 5),
		asTenantUser(), withTenant("acme"), withDBToken())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	results = decodeBody(t, rec)["results"].(map[string]interface{})
	hits := results["results"].([]interface{})
	require.Len(t, hits, 2)
	first := hits[0].(map[string]interface{})
	assert.Equal(t, "doc-1", first["id"])
}

func TestMissingDBToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/vector_store/search",
		payload("model_name", "modelx", "vector", []float32{1, 0, 0, 0}),
		asTenantUser(), withTenant("acme"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["message"], "Flouds-VectorDB-Token")
}

func TestMissingTenant(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/vector_store/search",
		payload("model_name", "modelx", "vector", []float32{1, 0, 0, 0}),
		asAdmin(), withDBToken())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "tenant_error", decodeBody(t, rec)["type"])
}

func TestConfigCRUDOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/config/add",
		payload("key", "cors_origins", "tenant_code", "acme", "value", "https://app.acme.io"),
		asAdmin(), withTenant("acme"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/config/get?key=cors_origins&tenant_code=acme", nil,
		asAdmin(), withTenant("acme"))
	require.Equal(t, http.StatusOK, rec.Code)
	entry := decodeBody(t, rec)["results"].(map[string]interface{})
	assert.Equal(t, "https://app.acme.io", entry["value"])

	// encrypted entries come back masked
	rec = ts.do(t, http.MethodPost, "/api/v1/config/add",
		payload("key", "rate_limit_tier", "tenant_code", "acme", "value", "premium", "encrypted", true),
		asAdmin(), withTenant("acme"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/config/list?tenant_code=acme", nil, asAdmin(), withTenant("acme"))
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody(t, rec)["results"].([]interface{})
	require.Len(t, entries, 2)
	for _, raw := range entries {
		entry := raw.(map[string]interface{})
		if entry["key"] == "rate_limit_tier" {
			assert.Equal(t, configstore.EncryptedSentinel, entry["value"])
		}
	}

	rec = ts.do(t, http.MethodDelete, "/api/v1/config/delete?key=cors_origins&tenant_code=acme", nil,
		asAdmin(), withTenant("acme"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/config/get?key=cors_origins&tenant_code=acme", nil,
		asAdmin(), withTenant("acme"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfigRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/config/list", nil, asTenantUser(), withTenant("acme"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFingerprints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/admin/fingerprints", nil, asAdmin())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	records := decodeBody(t, rec)["results"].([]interface{})
	require.Len(t, records, 2)
	for _, raw := range records {
		record := raw.(map[string]interface{})
		fingerprint := record["fingerprint"].(string)
		assert.Len(t, fingerprint, 32)
		assert.NotContains(t, strings.ToLower(rec.Body.String()), "secret\":")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/metrics?format=json", nil, asAdmin())
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	_, ok := body["metrics"]
	assert.True(t, ok)

	rec = ts.do(t, http.MethodGet, "/api/v1/metrics", nil, asTenantUser(), withTenant("acme"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// readiness gate is down until startup completes
	rec = ts.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ts.health.SetReady(true)
	rec = ts.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])

	// pool stats are operator-only
	rec = ts.do(t, http.MethodGet, "/health/connections", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = ts.do(t, http.MethodGet, "/health/connections", nil, asAdmin())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProvisioningRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/vector_store_users/set_user",
		payload("tenant_code", "acme"), asTenantUser(), withTenant("acme"), withDBToken())
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/vector_store_users/reset_password",
		payload("old_password", "whatever"), asTenantUser(), withTenant("acme"), withDBToken())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
