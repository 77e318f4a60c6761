package api

import (
	"context"

	"github.com/gin-gonic/gin"

	apierrors "github.com/gmalakar/flouds-vector-go/pkg/common/errors"
)

type configWriteRequest struct {
	Key        string `json:"key" binding:"required"`
	TenantCode string `json:"tenant_code"`
	Value      string `json:"value" binding:"required"`
	Encrypted  *bool  `json:"encrypted"`
}

func (s *Server) configAddHandler(c *gin.Context) {
	var req configWriteRequest
	if err := bindJSON(c, &req); err != nil {
		respond(c, nil, err)
		return
	}

	encrypted := req.Encrypted != nil && *req.Encrypted
	resp, err := s.runner.Do(c.Request.Context(), "config_add", req.TenantCode, "config entry added",
		func(ctx context.Context) (interface{}, error) {
			if err := s.configStore.Add(ctx, req.Key, req.TenantCode, req.Value, encrypted); err != nil {
				return nil, err
			}
			return gin.H{"key": req.Key}, nil
		})
	respond(c, resp, err)
}

func (s *Server) configGetHandler(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		respond(c, nil, apierrors.New(apierrors.KindValidation, "key query parameter is required"))
		return
	}
	tenant := c.Query("tenant_code")

	resp, err := s.runner.Do(c.Request.Context(), "config_get", tenant, "config entry",
		func(ctx context.Context) (interface{}, error) {
			return s.configStore.Get(ctx, key, tenant)
		})
	respond(c, resp, err)
}

func (s *Server) configUpdateHandler(c *gin.Context) {
	var req configWriteRequest
	if err := bindJSON(c, &req); err != nil {
		respond(c, nil, err)
		return
	}

	resp, err := s.runner.Do(c.Request.Context(), "config_update", req.TenantCode, "config entry updated",
		func(ctx context.Context) (interface{}, error) {
			if err := s.configStore.Update(ctx, req.Key, req.TenantCode, req.Value, req.Encrypted); err != nil {
				return nil, err
			}
			return gin.H{"key": req.Key}, nil
		})
	respond(c, resp, err)
}

func (s *Server) configDeleteHandler(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		respond(c, nil, apierrors.New(apierrors.KindValidation, "key query parameter is required"))
		return
	}
	tenant := c.Query("tenant_code")

	resp, err := s.runner.Do(c.Request.Context(), "config_delete", tenant, "config entry deleted",
		func(ctx context.Context) (interface{}, error) {
			if err := s.configStore.Delete(ctx, key, tenant); err != nil {
				return nil, err
			}
			return gin.H{"key": key}, nil
		})
	respond(c, resp, err)
}

func (s *Server) configListHandler(c *gin.Context) {
	tenant := c.Query("tenant_code")

	resp, err := s.runner.Do(c.Request.Context(), "config_list", tenant, "config entries",
		func(ctx context.Context) (interface{}, error) {
			return s.configStore.List(ctx, tenant)
		})
	respond(c, resp, err)
}
