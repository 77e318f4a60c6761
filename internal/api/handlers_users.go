package api

import (
	"context"

	"github.com/gin-gonic/gin"
)

type setVectorStoreRequest struct {
	TenantCode string `json:"tenant_code"`
}

type resetPasswordRequest struct {
	TenantCode  string `json:"tenant_code"`
	OldPassword string `json:"old_password" binding:"required"`
}

func (s *Server) setVectorStoreHandler(c *gin.Context) {
	var req setVectorStoreRequest
	if err := bindJSON(c, &req); err != nil {
		respond(c, nil, err)
		return
	}
	tenant, err := requireTenant(c)
	if err != nil {
		respond(c, nil, err)
		return
	}
	creds, err := s.adminCredentials(c)
	if err != nil {
		respond(c, nil, err)
		return
	}

	resp, err := s.runner.Do(c.Request.Context(), "set_vector_store", tenant, "vector store provisioned",
		func(ctx context.Context) (interface{}, error) {
			return s.provisioner.SetVectorStore(ctx, creds, tenant)
		})
	respond(c, resp, err)
}

// setUserHandler is the user-management alias for provisioning; it runs
// the same idempotent path as set_vector_store.
func (s *Server) setUserHandler(c *gin.Context) {
	var req setVectorStoreRequest
	if err := bindJSON(c, &req); err != nil {
		respond(c, nil, err)
		return
	}
	tenant, err := requireTenant(c)
	if err != nil {
		respond(c, nil, err)
		return
	}
	creds, err := s.adminCredentials(c)
	if err != nil {
		respond(c, nil, err)
		return
	}

	resp, err := s.runner.Do(c.Request.Context(), "set_user", tenant, "tenant user ensured",
		func(ctx context.Context) (interface{}, error) {
			return s.provisioner.SetVectorStore(ctx, creds, tenant)
		})
	respond(c, resp, err)
}

func (s *Server) resetPasswordHandler(c *gin.Context) {
	var req resetPasswordRequest
	if err := bindJSON(c, &req); err != nil {
		respond(c, nil, err)
		return
	}
	tenant, err := requireTenant(c)
	if err != nil {
		respond(c, nil, err)
		return
	}
	creds, err := s.adminCredentials(c)
	if err != nil {
		respond(c, nil, err)
		return
	}

	resp, err := s.runner.Do(c.Request.Context(), "reset_password", tenant, "password reset",
		func(ctx context.Context) (interface{}, error) {
			return s.provisioner.ResetPassword(ctx, creds, tenant, req.OldPassword)
		})
	respond(c, resp, err)
}
