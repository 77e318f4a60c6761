// Package vectordb contains the client contract for the external vector
// database, a REST implementation of it, and the keyed connection pool
// through which every request-scoped operation flows.
package vectordb

import (
	"context"
	"fmt"

	"github.com/gmalakar/flouds-vector-go/pkg/bm25"
)

// Field names of the fixed collection layout.
const (
	FieldID     = "flouds_vector_id"
	FieldVector = "flouds_vector"
	FieldSparse = "sparse"
	FieldChunk  = "chunk"
	FieldModel  = "model"
	FieldMeta   = "meta"
)

// Dimension bounds accepted at collection creation.
const (
	MinDimension = 1
	MaxDimension = 4096
)

// MaxIDLength bounds the primary key field.
const MaxIDLength = 512

// Supported metric types.
const (
	MetricCosine = "COSINE"
	MetricL2     = "L2"
	MetricIP     = "IP"
)

// Credentials identify one database-bound connection.
type Credentials struct {
	URI      string
	User     string
	Secret   string
	Database string
}

// Key is the pool key: secrets are deliberately excluded.
func (c Credentials) Key() string {
	return fmt.Sprintf("%s@%s/%s", c.User, c.URI, c.Database)
}

// CollectionSpec describes a collection to create.
type CollectionSpec struct {
	Name           string
	Dimension      int
	MetricType     string
	IndexType      string
	Nlist          int
	MetadataLength int
	DropRatioBuild float64
}

// CollectionInfo is the subset of a collection description the core needs.
type CollectionInfo struct {
	Name      string
	Dimension int
}

// Row is one record in the fixed field layout, keyed by field name.
type Row map[string]interface{}

// Hit is one search result.
type Hit struct {
	ID    string
	Score float64
	Chunk string
	Meta  map[string]interface{}
}

// DenseSearch parameterises an ANN search on the dense field.
type DenseSearch struct {
	Collection string
	Vector     []float32
	Limit      int
	MetricType string
}

// SparseSearch parameterises a BM25 search on the sparse field.
type SparseSearch struct {
	Collection string
	Query      bm25.SparseVector
	Limit      int
}

// Privileges granted to a tenant role on its collections.
var CollectionPrivileges = []string{"Search", "Query", "Insert", "Upsert", "Delete"}

// Client is the operation surface of one credentialed vector DB
// connection. Implementations must be safe for concurrent use; the pool
// shares one client across requests with identical credentials.
type Client interface {
	// Ping verifies the server is reachable with the bound credentials.
	Ping(ctx context.Context) error

	HasDatabase(ctx context.Context, name string) (bool, error)
	CreateDatabase(ctx context.Context, name string) error
	DropDatabase(ctx context.Context, name string) error

	HasCollection(ctx context.Context, name string) (bool, error)
	DescribeCollection(ctx context.Context, name string) (*CollectionInfo, error)
	CreateCollection(ctx context.Context, spec CollectionSpec) error
	DropCollection(ctx context.Context, name string) error
	Flush(ctx context.Context, collection string) error

	Upsert(ctx context.Context, collection string, rows []Row) error
	DeleteByIDs(ctx context.Context, collection string, ids []string) error
	SearchDense(ctx context.Context, req DenseSearch) ([]Hit, error)
	SearchSparse(ctx context.Context, req SparseSearch) ([]Hit, error)

	HasRole(ctx context.Context, name string) (bool, error)
	CreateRole(ctx context.Context, name string) error
	DropRole(ctx context.Context, name string) error
	HasUser(ctx context.Context, name string) (bool, error)
	CreateUser(ctx context.Context, name, password string) error
	DropUser(ctx context.Context, name string) error
	UpdatePassword(ctx context.Context, name, oldPassword, newPassword string) error
	GrantRole(ctx context.Context, user, role string) error
	RevokeRole(ctx context.Context, user, role string) error
	GrantPrivilege(ctx context.Context, role, collection, privilege string) error
	RevokePrivilege(ctx context.Context, role, collection, privilege string) error

	Close() error
}

// Dialer constructs a client for a credential set. The pool uses it on a
// cache miss; tests substitute a fake.
type Dialer func(ctx context.Context, creds Credentials) (Client, error)
