package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gmalakar/flouds-vector-go/pkg/bm25"
	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
	"github.com/gmalakar/flouds-vector-go/pkg/observability"
)

const defaultRequestTimeout = 30 * time.Second

// RESTClient talks to the vector database over its v2 RESTful API. A
// circuit breaker sits in front of every call so a dead backend fails
// fast instead of piling up timeouts.
type RESTClient struct {
	base    string
	creds   Credentials
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
}

// NewRESTClient builds a client bound to one credential set. It does not
// touch the network; use Ping to verify reachability.
func NewRESTClient(creds Credentials, logger observability.Logger) *RESTClient {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	base := strings.TrimRight(creds.URI, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &RESTClient{
		base:  base,
		creds: creds,
		http:  &http.Client{Timeout: defaultRequestTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "vectordb:" + creds.Key(),
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		logger: logger.WithPrefix("vectordb"),
	}
}

// Dial is the production Dialer: it constructs a REST client and verifies
// the credentials with a ping before handing it to the pool.
func Dial(logger observability.Logger) Dialer {
	return func(ctx context.Context, creds Credentials) (Client, error) {
		c := NewRESTClient(creds, logger)
		if err := c.Ping(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// call posts a JSON body to path under the circuit breaker and decodes
// the data payload into out when non-nil.
func (c *RESTClient) call(ctx context.Context, path string, body map[string]interface{}, out interface{}) error {
	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, path, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return apierrors.Wrap(apierrors.KindConnection, "vector database unavailable", err)
		}
		return err
	}
	if out == nil {
		return nil
	}
	data := raw.(json.RawMessage)
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apierrors.Wrap(apierrors.KindOperation, "decode response", err)
	}
	return nil
}

func (c *RESTClient) post(ctx context.Context, path string, body map[string]interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.creds.User+":"+c.creds.Secret)

	resp, err := c.http.Do(req)
	if err != nil {
		if apierrors.IsCanceled(err) {
			return nil, err
		}
		return nil, apierrors.Wrap(apierrors.KindConnection, "vector database unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindConnection, "read response", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, apierrors.New(apierrors.KindAuthentication, "vector database rejected credentials")
	case resp.StatusCode == http.StatusForbidden:
		return nil, apierrors.New(apierrors.KindAuthorization, "vector database denied operation")
	case resp.StatusCode >= 500:
		return nil, apierrors.Newf(apierrors.KindConnection, "vector database error (status %d)", resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apierrors.Wrap(apierrors.KindOperation, "decode response", err)
	}
	if parsed.Code != 0 {
		return nil, classifyAPIError(parsed.Code, parsed.Message)
	}
	return parsed.Data, nil
}

func classifyAPIError(code int, message string) error {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "auth") || strings.Contains(lower, "password") || strings.Contains(lower, "credential"):
		return apierrors.New(apierrors.KindAuthentication, "vector database rejected credentials")
	case strings.Contains(lower, "permission") || strings.Contains(lower, "privilege"):
		return apierrors.Newf(apierrors.KindAuthorization, "vector database denied operation: %s", message)
	case strings.Contains(lower, "not found") || strings.Contains(lower, "not exist"):
		return apierrors.Newf(apierrors.KindNotFound, "%s", message)
	default:
		return apierrors.Newf(apierrors.KindOperation, "vector database operation failed (code %d): %s", code, message)
	}
}

func (c *RESTClient) body(kv ...interface{}) map[string]interface{} {
	m := map[string]interface{}{"dbName": c.creds.Database}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

// Ping lists databases as a cheap authenticated reachability probe.
func (c *RESTClient) Ping(ctx context.Context) error {
	return c.call(ctx, "/v2/vectordb/databases/list", map[string]interface{}{}, nil)
}

func (c *RESTClient) HasDatabase(ctx context.Context, name string) (bool, error) {
	var names []string
	if err := c.call(ctx, "/v2/vectordb/databases/list", map[string]interface{}{}, &names); err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

func (c *RESTClient) CreateDatabase(ctx context.Context, name string) error {
	return c.call(ctx, "/v2/vectordb/databases/create", map[string]interface{}{"dbName": name}, nil)
}

func (c *RESTClient) DropDatabase(ctx context.Context, name string) error {
	return c.call(ctx, "/v2/vectordb/databases/drop", map[string]interface{}{"dbName": name}, nil)
}

func (c *RESTClient) HasCollection(ctx context.Context, name string) (bool, error) {
	var out struct {
		Has bool `json:"has"`
	}
	err := c.call(ctx, "/v2/vectordb/collections/has", c.body("collectionName", name), &out)
	if err != nil {
		return false, err
	}
	return out.Has, nil
}

func (c *RESTClient) DescribeCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	var out struct {
		CollectionName string `json:"collectionName"`
		Fields         []struct {
			Name   string `json:"name"`
			Params []struct {
				Key   string      `json:"key"`
				Value interface{} `json:"value"`
			} `json:"params"`
		} `json:"fields"`
	}
	if err := c.call(ctx, "/v2/vectordb/collections/describe", c.body("collectionName", name), &out); err != nil {
		return nil, err
	}
	info := &CollectionInfo{Name: out.CollectionName}
	for _, f := range out.Fields {
		if f.Name != FieldVector {
			continue
		}
		for _, p := range f.Params {
			if p.Key != "dim" {
				continue
			}
			switch v := p.Value.(type) {
			case float64:
				info.Dimension = int(v)
			case string:
				info.Dimension, _ = strconv.Atoi(v)
			}
		}
	}
	return info, nil
}

func (c *RESTClient) CreateCollection(ctx context.Context, spec CollectionSpec) error {
	metaLen := spec.MetadataLength
	if metaLen <= 0 {
		metaLen = 4096
	}
	schema := map[string]interface{}{
		"autoId":             false,
		"enableDynamicField": false,
		"fields": []map[string]interface{}{
			{
				"fieldName":         FieldID,
				"dataType":          "VarChar",
				"isPrimary":         true,
				"elementTypeParams": map[string]interface{}{"max_length": strconv.Itoa(MaxIDLength)},
			},
			{
				"fieldName":         FieldVector,
				"dataType":          "FloatVector",
				"elementTypeParams": map[string]interface{}{"dim": strconv.Itoa(spec.Dimension)},
			},
			{
				"fieldName": FieldSparse,
				"dataType":  "SparseFloatVector",
			},
			{
				"fieldName":         FieldChunk,
				"dataType":          "VarChar",
				"elementTypeParams": map[string]interface{}{"max_length": strconv.Itoa(metaLen)},
			},
			{
				"fieldName":         FieldModel,
				"dataType":          "VarChar",
				"elementTypeParams": map[string]interface{}{"max_length": "256"},
			},
			{
				"fieldName": FieldMeta,
				"dataType":  "JSON",
			},
		},
	}
	indexParams := []map[string]interface{}{
		{
			"fieldName":  FieldVector,
			"indexName":  FieldVector + "_idx",
			"metricType": spec.MetricType,
			"indexType":  spec.IndexType,
			"params":     map[string]interface{}{"nlist": spec.Nlist},
		},
		{
			"fieldName":  FieldSparse,
			"indexName":  FieldSparse + "_idx",
			"metricType": "BM25",
			"indexType":  "SPARSE_INVERTED_INDEX",
			"params":     map[string]interface{}{"drop_ratio_build": spec.DropRatioBuild},
		},
	}
	return c.call(ctx, "/v2/vectordb/collections/create", c.body(
		"collectionName", spec.Name,
		"schema", schema,
		"indexParams", indexParams,
	), nil)
}

func (c *RESTClient) DropCollection(ctx context.Context, name string) error {
	return c.call(ctx, "/v2/vectordb/collections/drop", c.body("collectionName", name), nil)
}

func (c *RESTClient) Flush(ctx context.Context, collection string) error {
	return c.call(ctx, "/v2/vectordb/collections/flush", c.body("collectionName", collection), nil)
}

func (c *RESTClient) Upsert(ctx context.Context, collection string, rows []Row) error {
	data := make([]map[string]interface{}, len(rows))
	for i, r := range rows {
		row := make(map[string]interface{}, len(r))
		for k, v := range r {
			if k == FieldSparse {
				v = sparseWire(v)
			}
			row[k] = v
		}
		data[i] = row
	}
	return c.call(ctx, "/v2/vectordb/entities/upsert", c.body(
		"collectionName", collection,
		"data", data,
	), nil)
}

func (c *RESTClient) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	filter := fmt.Sprintf("%s in [%s]", FieldID, strings.Join(quoted, ", "))
	return c.call(ctx, "/v2/vectordb/entities/delete", c.body(
		"collectionName", collection,
		"filter", filter,
	), nil)
}

func (c *RESTClient) SearchDense(ctx context.Context, req DenseSearch) ([]Hit, error) {
	return c.search(ctx, req.Collection, FieldVector, []interface{}{req.Vector}, req.Limit,
		map[string]interface{}{"metricType": req.MetricType})
}

func (c *RESTClient) SearchSparse(ctx context.Context, req SparseSearch) ([]Hit, error) {
	return c.search(ctx, req.Collection, FieldSparse, []interface{}{sparseWire(req.Query)}, req.Limit, nil)
}

func (c *RESTClient) search(ctx context.Context, collection, annsField string, data []interface{}, limit int, params map[string]interface{}) ([]Hit, error) {
	body := c.body(
		"collectionName", collection,
		"annsField", annsField,
		"data", data,
		"limit", limit,
		"outputFields", []string{FieldID, FieldChunk, FieldMeta},
	)
	if params != nil {
		body["searchParams"] = params
	}
	var rows []map[string]interface{}
	if err := c.call(ctx, "/v2/vectordb/entities/search", body, &rows); err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(rows))
	for _, row := range rows {
		h := Hit{}
		if id, ok := row[FieldID].(string); ok {
			h.ID = id
		}
		if d, ok := row["distance"].(float64); ok {
			h.Score = d
		}
		if chunk, ok := row[FieldChunk].(string); ok {
			h.Chunk = chunk
		}
		if meta, ok := row[FieldMeta].(map[string]interface{}); ok {
			h.Meta = meta
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func (c *RESTClient) HasRole(ctx context.Context, name string) (bool, error) {
	var names []string
	if err := c.call(ctx, "/v2/vectordb/roles/list", map[string]interface{}{}, &names); err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

func (c *RESTClient) CreateRole(ctx context.Context, name string) error {
	return c.call(ctx, "/v2/vectordb/roles/create", map[string]interface{}{"roleName": name}, nil)
}

func (c *RESTClient) DropRole(ctx context.Context, name string) error {
	return c.call(ctx, "/v2/vectordb/roles/drop", map[string]interface{}{"roleName": name}, nil)
}

func (c *RESTClient) HasUser(ctx context.Context, name string) (bool, error) {
	var names []string
	if err := c.call(ctx, "/v2/vectordb/users/list", map[string]interface{}{}, &names); err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

func (c *RESTClient) CreateUser(ctx context.Context, name, password string) error {
	return c.call(ctx, "/v2/vectordb/users/create", map[string]interface{}{
		"userName": name, "password": password,
	}, nil)
}

func (c *RESTClient) DropUser(ctx context.Context, name string) error {
	return c.call(ctx, "/v2/vectordb/users/drop", map[string]interface{}{"userName": name}, nil)
}

func (c *RESTClient) UpdatePassword(ctx context.Context, name, oldPassword, newPassword string) error {
	return c.call(ctx, "/v2/vectordb/users/update_password", map[string]interface{}{
		"userName": name, "password": oldPassword, "newPassword": newPassword,
	}, nil)
}

func (c *RESTClient) GrantRole(ctx context.Context, user, role string) error {
	return c.call(ctx, "/v2/vectordb/users/grant_role", map[string]interface{}{
		"userName": user, "roleName": role,
	}, nil)
}

func (c *RESTClient) RevokeRole(ctx context.Context, user, role string) error {
	return c.call(ctx, "/v2/vectordb/users/revoke_role", map[string]interface{}{
		"userName": user, "roleName": role,
	}, nil)
}

func (c *RESTClient) GrantPrivilege(ctx context.Context, role, collection, privilege string) error {
	return c.call(ctx, "/v2/vectordb/roles/grant_privilege", c.body(
		"roleName", role,
		"objectType", "Collection",
		"objectName", collection,
		"privilege", privilege,
	), nil)
}

func (c *RESTClient) RevokePrivilege(ctx context.Context, role, collection, privilege string) error {
	return c.call(ctx, "/v2/vectordb/roles/revoke_privilege", c.body(
		"roleName", role,
		"objectType", "Collection",
		"objectName", collection,
		"privilege", privilege,
	), nil)
}

// Close releases idle transport connections.
func (c *RESTClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// sparseWire converts a sparse vector into the JSON map the REST API
// expects: term ids as decimal string keys.
func sparseWire(v interface{}) interface{} {
	var sparse map[uint32]float32
	switch s := v.(type) {
	case bm25.SparseVector:
		sparse = s
	case map[uint32]float32:
		sparse = s
	default:
		return v
	}
	wire := make(map[string]float32, len(sparse))
	for id, w := range sparse {
		wire[strconv.FormatUint(uint64(id), 10)] = w
	}
	return wire
}
