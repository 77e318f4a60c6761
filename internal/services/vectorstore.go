package services

import (
	"context"
	"sync"
	"time"

	"github.com/gmalakar/flouds-vector-go/pkg/bm25"
	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
	"github.com/gmalakar/flouds-vector-go/pkg/config"
	"github.com/gmalakar/flouds-vector-go/pkg/observability"
	"github.com/gmalakar/flouds-vector-go/pkg/security"
	"github.com/gmalakar/flouds-vector-go/pkg/transaction"
	"github.com/gmalakar/flouds-vector-go/pkg/vectordb"
)

// EmbeddedVector is one insert unit.
type EmbeddedVector struct {
	Key      string                 `json:"key" binding:"required"`
	Chunk    string                 `json:"chunk" binding:"required"`
	Model    string                 `json:"model"`
	Metadata map[string]interface{} `json:"metadata"`
	Vector   []float32              `json:"vector" binding:"required"`
}

// SchemaRequest parameterises collection creation.
type SchemaRequest struct {
	Tenant         string
	Model          string
	Dimension      int
	MetricType     string
	IndexType      string
	Nlist          int
	MetadataLength int
	DropRatioBuild float64
}

// SchemaResult reports what generate-schema did.
type SchemaResult struct {
	CollectionName     string `json:"collection_name"`
	Created            bool   `json:"created"`
	IndexCreated       bool   `json:"index_created"`
	PermissionsGranted bool   `json:"permissions_granted"`
}

// InsertRequest is a batch insert.
type InsertRequest struct {
	Tenant string
	Model  string
	Data   []EmbeddedVector
}

// InsertResult reports a completed insert.
type InsertResult struct {
	Inserted int  `json:"inserted"`
	Flushed  bool `json:"flushed"`
}

// SearchRequest parameterises dense and hybrid search.
type SearchRequest struct {
	Tenant            string
	Model             string
	Vector            []float32
	Limit             int
	ScoreThreshold    float64
	MetricType        string
	Hybrid            bool
	TextFilter        string
	MinimumWordsMatch int
	IncludeStopWords  bool
}

// SearchResult carries search hits and timing.
type SearchResult struct {
	Results      []SearchHit `json:"results"`
	TotalCount   int         `json:"total_count"`
	SearchTimeMS float64     `json:"search_time_ms"`
}

// VectorStore implements schema generation, insert with BM25 sparse
// encoding, dense/hybrid search and flush on top of the connection pool.
type VectorStore struct {
	pool     *vectordb.Pool
	encoder  *bm25.Encoder
	defaults config.VectorDefaults
	logger   observability.Logger

	// serialises concurrent schema creation per (tenant, model) so a
	// dimension conflict fails fast instead of racing in the DB
	schemaMu sync.Map // collection name -> *sync.Mutex
}

// NewVectorStore builds the vector store service.
func NewVectorStore(pool *vectordb.Pool, defaults config.VectorDefaults, logger observability.Logger) *VectorStore {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &VectorStore{
		pool:     pool,
		encoder:  bm25.NewEncoder(),
		defaults: defaults,
		logger:   logger.WithPrefix("vectorstore"),
	}
}

func (s *VectorStore) lockSchema(name string) func() {
	mu, _ := s.schemaMu.LoadOrStore(name, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// GenerateSchema idempotently creates the collection for (tenant, model).
// An existing collection with a different dimension is a schema conflict.
func (s *VectorStore) GenerateSchema(ctx context.Context, creds vectordb.Credentials, req SchemaRequest) (*SchemaResult, error) {
	if err := validateTenantModel(req.Tenant, req.Model); err != nil {
		return nil, err
	}
	if req.Dimension < vectordb.MinDimension || req.Dimension > vectordb.MaxDimension {
		return nil, apierrors.Newf(apierrors.KindValidation, "dimension must be in [%d, %d], got %d",
			vectordb.MinDimension, vectordb.MaxDimension, req.Dimension)
	}
	s.applySchemaDefaults(&req)

	name := CollectionName(req.Tenant, req.Model)
	unlock := s.lockSchema(name)
	defer unlock()

	handle, err := s.pool.Acquire(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer handle.Release()
	client := handle.Client

	exists, err := client.HasCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		info, err := client.DescribeCollection(ctx, name)
		if err != nil {
			return nil, err
		}
		if info.Dimension != req.Dimension {
			return nil, apierrors.Newf(apierrors.KindSchemaConflict,
				"collection %s exists with dimension %d, requested %d", name, info.Dimension, req.Dimension)
		}
		return &SchemaResult{CollectionName: name, Created: false}, nil
	}

	err = client.CreateCollection(ctx, vectordb.CollectionSpec{
		Name:           name,
		Dimension:      req.Dimension,
		MetricType:     req.MetricType,
		IndexType:      req.IndexType,
		Nlist:          req.Nlist,
		MetadataLength: req.MetadataLength,
		DropRatioBuild: req.DropRatioBuild,
	})
	if err != nil {
		return nil, err
	}

	role := TenantRole(req.Tenant)
	granted := true
	for _, priv := range vectordb.CollectionPrivileges {
		if err := client.GrantPrivilege(ctx, role, name, priv); err != nil {
			s.logger.Warn("grant privilege failed", map[string]interface{}{
				"collection": name, "role": role, "privilege": priv,
				"error": security.SanitizeErrorMessage(err.Error()),
			})
			granted = false
		}
	}

	s.logger.Info("collection created", map[string]interface{}{
		"collection": name, "dimension": req.Dimension,
		"metric": req.MetricType, "index": req.IndexType,
	})
	return &SchemaResult{
		CollectionName:     name,
		Created:            true,
		IndexCreated:       true,
		PermissionsGranted: granted,
	}, nil
}

// Insert upserts a batch with its sparse representations. Duplicate keys
// within the batch collapse, last write wins. The upsert and flush run in
// a transaction whose rollback deletes the batch keys.
func (s *VectorStore) Insert(ctx context.Context, creds vectordb.Credentials, req InsertRequest) (*InsertResult, error) {
	if err := validateTenantModel(req.Tenant, req.Model); err != nil {
		return nil, err
	}
	if len(req.Data) == 0 {
		return nil, apierrors.New(apierrors.KindValidation, "data must not be empty")
	}

	name := CollectionName(req.Tenant, req.Model)
	handle, err := s.pool.Acquire(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer handle.Release()
	client := handle.Client

	info, err := client.DescribeCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	rows, keys, err := s.buildRows(req, info.Dimension)
	if err != nil {
		return nil, err
	}
	flush := len(rows) >= s.defaults.AutoFlushMinBatch

	txn := transaction.New("insert:"+name, s.logger)
	txn.Add("upsert", func(ctx context.Context) (interface{}, error) {
		return nil, client.Upsert(ctx, name, rows)
	}, func(ctx context.Context, _ interface{}) error {
		return client.DeleteByIDs(ctx, name, keys)
	})
	if flush {
		txn.Add("flush", func(ctx context.Context) (interface{}, error) {
			return nil, client.Flush(ctx, name)
		}, transaction.NoopRollback)
	}
	if _, err := txn.Execute(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("batch inserted", map[string]interface{}{
		"collection": name, "rows": len(rows), "flushed": flush,
	})
	return &InsertResult{Inserted: len(rows), Flushed: flush}, nil
}

func (s *VectorStore) buildRows(req InsertRequest, dim int) ([]vectordb.Row, []string, error) {
	// last write wins for duplicate keys within the batch
	index := make(map[string]int, len(req.Data))
	ordered := make([]EmbeddedVector, 0, len(req.Data))
	for _, v := range req.Data {
		if v.Key == "" || len(v.Key) > vectordb.MaxIDLength {
			return nil, nil, apierrors.Newf(apierrors.KindValidation, "key must be 1-%d characters", vectordb.MaxIDLength)
		}
		if v.Chunk == "" {
			return nil, nil, apierrors.Newf(apierrors.KindValidation, "chunk must not be empty (key %s)", v.Key)
		}
		if len(v.Vector) != dim {
			return nil, nil, apierrors.Newf(apierrors.KindValidation,
				"vector for key %s has %d dimensions, collection expects %d", v.Key, len(v.Vector), dim)
		}
		if i, seen := index[v.Key]; seen {
			ordered[i] = v
			continue
		}
		index[v.Key] = len(ordered)
		ordered = append(ordered, v)
	}

	rows := make([]vectordb.Row, len(ordered))
	keys := make([]string, len(ordered))
	for i, v := range ordered {
		meta := v.Metadata
		if meta == nil {
			meta = map[string]interface{}{}
		}
		rows[i] = vectordb.Row{
			vectordb.FieldID:     v.Key,
			vectordb.FieldVector: v.Vector,
			vectordb.FieldSparse: s.encoder.EncodeDocument(v.Chunk),
			vectordb.FieldChunk:  v.Chunk,
			vectordb.FieldModel:  req.Model,
			vectordb.FieldMeta:   meta,
		}
		keys[i] = v.Key
	}
	return rows, keys, nil
}

// Search runs a dense ANN search, optionally fused with a BM25 sparse
// search via RRF. The score threshold applies only to the dense-only
// path; RRF scores are not comparable to raw distances.
func (s *VectorStore) Search(ctx context.Context, creds vectordb.Credentials, req SearchRequest) (*SearchResult, error) {
	if err := validateTenantModel(req.Tenant, req.Model); err != nil {
		return nil, err
	}
	if req.Limit < 1 {
		return nil, apierrors.New(apierrors.KindValidation, "limit must be at least 1")
	}
	if len(req.Vector) == 0 {
		return nil, apierrors.New(apierrors.KindValidation, "vector must not be empty")
	}
	metric := req.MetricType
	if metric == "" {
		metric = s.defaults.MetricType
	}

	start := time.Now()
	name := CollectionName(req.Tenant, req.Model)
	handle, err := s.pool.Acquire(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer handle.Release()
	client := handle.Client

	queryTokens := s.hybridTokens(req)
	dense, err := client.SearchDense(ctx, vectordb.DenseSearch{
		Collection: name,
		Vector:     req.Vector,
		Limit:      req.Limit,
		MetricType: metric,
	})
	if err != nil {
		return nil, err
	}

	var hits []SearchHit
	if len(queryTokens) > 0 {
		sparse, err := client.SearchSparse(ctx, vectordb.SparseSearch{
			Collection: name,
			Query:      s.encoder.EncodeQuery(queryTokens),
			Limit:      req.Limit,
		})
		if err != nil {
			return nil, err
		}
		hits = fuseRRF(dense, sparse, req.Limit)
	} else {
		hits = denseHits(dense, req.ScoreThreshold)
		hits = filterByText(hits, req)
	}

	return &SearchResult{
		Results:      hits,
		TotalCount:   len(hits),
		SearchTimeMS: float64(time.Since(start).Microseconds()) / 1000,
	}, nil
}

// hybridTokens returns the sparse query tokens, or nil when the search
// should fall back to dense-only.
func (s *VectorStore) hybridTokens(req SearchRequest) []string {
	if !req.Hybrid || req.TextFilter == "" {
		return nil
	}
	tokens := bm25.Tokenize(req.TextFilter, req.IncludeStopWords)
	min := req.MinimumWordsMatch
	if min < 1 {
		min = 1
	}
	if len(tokens) < min {
		s.logger.Debug("hybrid fallback to dense-only", map[string]interface{}{
			"tokens": len(tokens), "minimum_words_match": min,
		})
		return nil
	}
	return tokens
}

func denseHits(dense []vectordb.Hit, threshold float64) []SearchHit {
	hits := make([]SearchHit, 0, len(dense))
	for _, h := range dense {
		if threshold > 0 && h.Score < threshold {
			continue
		}
		hits = append(hits, SearchHit{ID: h.ID, Score: h.Score, Chunk: h.Chunk, Meta: h.Meta})
	}
	return hits
}

// filterByText keeps dense hits whose chunk contains at least
// minimum_words_match of the text-filter terms. It only applies when a
// text filter rides a non-hybrid search.
func filterByText(hits []SearchHit, req SearchRequest) []SearchHit {
	if req.Hybrid || req.TextFilter == "" {
		return hits
	}
	terms := bm25.Tokenize(req.TextFilter, req.IncludeStopWords)
	if len(terms) == 0 {
		return hits
	}
	required := req.MinimumWordsMatch
	if required < 1 {
		required = 1
	}
	if required > len(terms) {
		required = len(terms)
	}

	kept := hits[:0]
	for _, h := range hits {
		present := map[string]bool{}
		for _, tok := range bm25.Tokenize(h.Chunk, true) {
			present[tok] = true
		}
		matched := 0
		for _, term := range terms {
			if present[term] {
				matched++
			}
		}
		if matched >= required {
			kept = append(kept, h)
		}
	}
	return kept
}

// Flush forces a flush of the tenant+model collection.
func (s *VectorStore) Flush(ctx context.Context, creds vectordb.Credentials, tenant, model string) error {
	if err := validateTenantModel(tenant, model); err != nil {
		return err
	}
	handle, err := s.pool.Acquire(ctx, creds)
	if err != nil {
		return err
	}
	defer handle.Release()
	return handle.Client.Flush(ctx, CollectionName(tenant, model))
}

func (s *VectorStore) applySchemaDefaults(req *SchemaRequest) {
	if req.MetricType == "" {
		req.MetricType = s.defaults.MetricType
	}
	if req.IndexType == "" {
		req.IndexType = s.defaults.IndexType
	}
	if req.Nlist <= 0 {
		req.Nlist = s.defaults.Nlist
	}
	if req.MetadataLength <= 0 {
		req.MetadataLength = s.defaults.MetadataLength
	}
	if req.DropRatioBuild <= 0 {
		req.DropRatioBuild = s.defaults.DropRatioBuild
	}
}

func validateTenantModel(tenant, model string) error {
	if !security.ValidTenantCode(tenant) {
		return apierrors.Newf(apierrors.KindTenant, "invalid tenant code %q", tenant)
	}
	if model == "" {
		return apierrors.New(apierrors.KindValidation, "model_name is required")
	}
	return nil
}
