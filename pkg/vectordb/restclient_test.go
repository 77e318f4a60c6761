package vectordb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
)

func testServer(t *testing.T, handler http.HandlerFunc) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRESTClient(Credentials{
		URI: srv.URL, User: "root", Secret: "pw", Database: "default",
	}, nil)
}

func respond(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"code": code, "data": data})
}

func TestPingSendsCredentials(t *testing.T) {
	var auth string
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		respond(w, 0, []string{"default"})
	})
	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, "Bearer root:pw", auth)
}

func TestHasCollection(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/vectordb/collections/has", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "default", body["dbName"])
		assert.Equal(t, "vector_store_schema_for_demo_m1", body["collectionName"])
		respond(w, 0, map[string]bool{"has": true})
	})
	has, err := c.HasCollection(context.Background(), "vector_store_schema_for_demo_m1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSearchDenseDecodesHits(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, 0, []map[string]interface{}{
			{FieldID: "a", "distance": 0.92, FieldChunk: "hello world", FieldMeta: map[string]interface{}{"page": float64(1)}},
			{FieldID: "b", "distance": 0.15, FieldChunk: "goodbye"},
		})
	})
	hits, err := c.SearchDense(context.Background(), DenseSearch{
		Collection: "col", Vector: []float32{1, 0, 0, 0}, Limit: 2, MetricType: MetricCosine,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, 0.92, hits[0].Score)
	assert.Equal(t, "hello world", hits[0].Chunk)
	assert.Equal(t, map[string]interface{}{"page": float64(1)}, hits[0].Meta)
}

func TestAPIErrorClassification(t *testing.T) {
	cases := []struct {
		message string
		kind    apierrors.Kind
	}{
		{"collection not found", apierrors.KindNotFound},
		{"auth check failure", apierrors.KindAuthentication},
		{"permission denied on collection", apierrors.KindAuthorization},
		{"invalid parameter nlist", apierrors.KindOperation},
	}
	for _, tc := range cases {
		c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{"code": 1100, "message": tc.message})
		})
		err := c.Flush(context.Background(), "col")
		require.Error(t, err, tc.message)
		assert.Equal(t, tc.kind, apierrors.KindOf(err), tc.message)
	}
}

func TestServerErrorIsConnectionKind(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, apierrors.KindConnection, apierrors.KindOf(err))
}

func TestUnreachableHostIsConnectionKind(t *testing.T) {
	c := NewRESTClient(Credentials{URI: "127.0.0.1:1", User: "u", Secret: "s", Database: "d"}, nil)
	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, apierrors.KindConnection, apierrors.KindOf(err))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	c := NewRESTClient(Credentials{URI: "127.0.0.1:1", User: "u", Secret: "s", Database: "d"}, nil)
	for i := 0; i < 5; i++ {
		_ = c.Ping(context.Background())
	}
	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, apierrors.KindConnection, apierrors.KindOf(err))
}

func TestDeleteByIDsBuildsFilter(t *testing.T) {
	var filter string
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		filter, _ = body["filter"].(string)
		respond(w, 0, nil)
	})
	require.NoError(t, c.DeleteByIDs(context.Background(), "col", []string{"a", "b"}))
	assert.Equal(t, `flouds_vector_id in ["a", "b"]`, filter)
}
