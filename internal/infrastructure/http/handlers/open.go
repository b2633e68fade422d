package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/graflow/graflow/internal/infrastructure/registry"
	"github.com/graflow/graflow/internal/pkg/errors"
)

// OpenHandler resolves a graph file path to its workspace id, creating the
// workspace context if it does not already exist. It is the sole
// unscoped entrypoint: every other route in §6.1 addresses an already-open
// workspace by id.
type OpenHandler struct {
	registry *registry.Registry
}

// NewOpenHandler creates an OpenHandler.
func NewOpenHandler(reg *registry.Registry) *OpenHandler {
	return &OpenHandler{registry: reg}
}

// OpenRequest is the body of POST /workspace/open.
type OpenRequest struct {
	Path string `json:"path"`
}

// OpenResponse is the body of POST /workspace/open.
type OpenResponse struct {
	WorkspaceID string `json:"workspace_id"`
}

// Open handles POST /workspace/open.
func (h *OpenHandler) Open(c echo.Context) error {
	var req OpenRequest
	if err := c.Bind(&req); err != nil {
		return errors.InvalidInput("body", err.Error())
	}
	if req.Path == "" {
		return errors.InvalidInput("path", "graph file path is required")
	}

	ws, err := h.registry.Open(c.Request().Context(), req.Path)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, OpenResponse{WorkspaceID: ws.ID})
}
