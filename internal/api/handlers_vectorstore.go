package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/gmalakar/flouds-vector-go/internal/services"
	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
)

type generateSchemaRequest struct {
	TenantCode     string  `json:"tenant_code"`
	ModelName      string  `json:"model_name" binding:"required"`
	Dimension      int     `json:"dimension" binding:"required"`
	MetricType     string  `json:"metric_type"`
	IndexType      string  `json:"index_type"`
	Nlist          int     `json:"nlist"`
	MetadataLength int     `json:"metadata_length"`
	DropRatioBuild float64 `json:"drop_ratio_build"`
}

type insertRequest struct {
	TenantCode string                    `json:"tenant_code"`
	ModelName  string                    `json:"model_name" binding:"required"`
	Data       []services.EmbeddedVector `json:"data" binding:"required"`
}

type searchRequest struct {
	TenantCode string `json:"tenant_code"`
	// the search surface names the field "model"; "model_name" is kept
	// as an alias for parity with the other vector_store routes
	Model             string    `json:"model"`
	ModelName         string    `json:"model_name"`
	Vector            []float32 `json:"vector" binding:"required"`
	Limit             int       `json:"limit"`
	ScoreThreshold    float64   `json:"score_threshold"`
	MetricType        string    `json:"metric_type"`
	HybridSearch      bool      `json:"hybrid_search"`
	TextFilter        string    `json:"text_filter"`
	MinimumWordsMatch int       `json:"minimum_words_match"`
	IncludeStopWords  bool      `json:"include_stop_words"`
}

type flushRequest struct {
	TenantCode string `json:"tenant_code"`
	ModelName  string `json:"model_name" binding:"required"`
}

func bindJSON(c *gin.Context, out interface{}) error {
	if err := c.ShouldBindJSON(out); err != nil {
		return apierrors.Wrap(apierrors.KindValidation, "invalid request body", err)
	}
	return nil
}

func (s *Server) generateSchemaHandler(c *gin.Context) {
	var req generateSchemaRequest
	if err := bindJSON(c, &req); err != nil {
		respond(c, nil, err)
		return
	}
	tenant, err := requireTenant(c)
	if err != nil {
		respond(c, nil, err)
		return
	}
	creds, err := s.requestCredentials(c, tenant)
	if err != nil {
		respond(c, nil, err)
		return
	}

	resp, err := s.runner.Do(c.Request.Context(), "generate_schema", tenant, "schema generated",
		func(ctx context.Context) (interface{}, error) {
			return s.vectors.GenerateSchema(ctx, creds, services.SchemaRequest{
				Tenant:         tenant,
				Model:          req.ModelName,
				Dimension:      req.Dimension,
				MetricType:     req.MetricType,
				IndexType:      req.IndexType,
				Nlist:          req.Nlist,
				MetadataLength: req.MetadataLength,
				DropRatioBuild: req.DropRatioBuild,
			})
		})
	respond(c, resp, err)
}

func (s *Server) insertHandler(c *gin.Context) {
	var req insertRequest
	if err := bindJSON(c, &req); err != nil {
		respond(c, nil, err)
		return
	}
	tenant, err := requireTenant(c)
	if err != nil {
		respond(c, nil, err)
		return
	}
	creds, err := s.requestCredentials(c, tenant)
	if err != nil {
		respond(c, nil, err)
		return
	}

	resp, err := s.runner.Do(c.Request.Context(), "insert", tenant, "vectors inserted",
		func(ctx context.Context) (interface{}, error) {
			return s.vectors.Insert(ctx, creds, services.InsertRequest{
				Tenant: tenant,
				Model:  req.ModelName,
				Data:   req.Data,
			})
		})
	respond(c, resp, err)
}

func (s *Server) searchHandler(c *gin.Context) {
	var req searchRequest
	if err := bindJSON(c, &req); err != nil {
		respond(c, nil, err)
		return
	}
	tenant, err := requireTenant(c)
	if err != nil {
		respond(c, nil, err)
		return
	}
	creds, err := s.requestCredentials(c, tenant)
	if err != nil {
		respond(c, nil, err)
		return
	}

	model := req.Model
	if model == "" {
		model = req.ModelName
	}
	resp, err := s.runner.Do(c.Request.Context(), "search", tenant, "search completed",
		func(ctx context.Context) (interface{}, error) {
			return s.vectors.Search(ctx, creds, services.SearchRequest{
				Tenant:            tenant,
				Model:             model,
				Vector:            req.Vector,
				Limit:             req.Limit,
				ScoreThreshold:    req.ScoreThreshold,
				MetricType:        req.MetricType,
				Hybrid:            req.HybridSearch,
				TextFilter:        req.TextFilter,
				MinimumWordsMatch: req.MinimumWordsMatch,
				IncludeStopWords:  req.IncludeStopWords,
			})
		})
	respond(c, resp, err)
}

func (s *Server) flushHandler(c *gin.Context) {
	var req flushRequest
	if err := bindJSON(c, &req); err != nil {
		respond(c, nil, err)
		return
	}
	tenant, err := requireTenant(c)
	if err != nil {
		respond(c, nil, err)
		return
	}
	creds, err := s.requestCredentials(c, tenant)
	if err != nil {
		respond(c, nil, err)
		return
	}

	resp, err := s.runner.Do(c.Request.Context(), "flush", tenant, "collection flushed",
		func(ctx context.Context) (interface{}, error) {
			if err := s.vectors.Flush(ctx, creds, tenant, req.ModelName); err != nil {
				return nil, err
			}
			return gin.H{"flushed": true}, nil
		})
	respond(c, resp, err)
}
