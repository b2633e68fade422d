package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/graflow/graflow/internal/infrastructure/registry"
	"github.com/graflow/graflow/internal/infrastructure/transport"
	"github.com/graflow/graflow/internal/pkg/errors"
)

// StreamHandler serves the §6.2 realtime channel over SSE, one connection
// per client, scoped to a single workspace.
type StreamHandler struct {
	registry *registry.Registry
	bridge   *transport.Bridge
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(reg *registry.Registry, bridge *transport.Bridge) *StreamHandler {
	return &StreamHandler{registry: reg, bridge: bridge}
}

// Stream handles GET /workspace/:workspace_id/stream.
func (h *StreamHandler) Stream(c echo.Context) error {
	id := c.Param("workspace_id")
	if _, ok := h.registry.Get(id); !ok {
		return errors.NotFound("workspace", id)
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	messages, cancel := h.bridge.Subscribe(id)
	defer cancel()

	ctx := c.Request().Context()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			fmt.Fprint(c.Response(), ": keepalive\n\n")
			c.Response().Flush()

		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", msg.Type, data)
			c.Response().Flush()
		}
	}
}
