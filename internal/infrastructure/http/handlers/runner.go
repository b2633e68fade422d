package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/graflow/graflow/internal/domain/runner"
	"github.com/graflow/graflow/internal/infrastructure/http/dto"
	"github.com/graflow/graflow/internal/infrastructure/monitoring"
	"github.com/graflow/graflow/internal/pkg/errors"
)

// RunnerHandler serves the process-wide (non workspace-scoped) runner
// bookkeeping endpoints: a runner client registers once, then heartbeats
// periodically so a stale client can be swept from the registry.
type RunnerHandler struct {
	registry *runner.Registry
	metrics  *monitoring.Metrics
}

// NewRunnerHandler creates a RunnerHandler.
func NewRunnerHandler(reg *runner.Registry, metrics *monitoring.Metrics) *RunnerHandler {
	return &RunnerHandler{registry: reg, metrics: metrics}
}

func (h *RunnerHandler) updateGauge() {
	if h.metrics != nil {
		h.metrics.RunnersConnected.Set(float64(h.registry.Count()))
	}
}

// Register handles POST /runner/register.
func (h *RunnerHandler) Register(c echo.Context) error {
	var req dto.RunnerRegisterRequest
	if err := c.Bind(&req); err != nil {
		return errors.InvalidInput("body", err.Error())
	}
	if req.ID == "" {
		return errors.InvalidInput("runner_id", "runner_id is required")
	}

	h.registry.Register(&runner.Runner{
		ID:     req.ID,
		Status: runner.StatusReady,
		Capabilities: runner.Capabilities{
			MaxConcurrentNodes: req.MaxConcurrentNodes,
		},
	})
	h.updateGauge()
	return c.JSON(http.StatusOK, dto.RunnerRegisterResponse{RunnerID: req.ID})
}

// Heartbeat handles POST /runner/heartbeat.
func (h *RunnerHandler) Heartbeat(c echo.Context) error {
	var req dto.RunnerHeartbeatRequest
	if err := c.Bind(&req); err != nil {
		return errors.InvalidInput("body", err.Error())
	}
	status := runner.Status(req.Status)
	if status == "" {
		status = runner.StatusReady
	}
	if !h.registry.Heartbeat(req.ID, status, req.ActiveNodes) {
		return errors.NotFound("runner", req.ID)
	}
	return c.NoContent(http.StatusNoContent)
}

// Deregister handles POST /runner/deregister.
func (h *RunnerHandler) Deregister(c echo.Context) error {
	var req struct {
		ID string `json:"runner_id"`
	}
	if err := c.Bind(&req); err != nil {
		return errors.InvalidInput("body", err.Error())
	}
	if !h.registry.Deregister(req.ID) {
		return errors.NotFound("runner", req.ID)
	}
	h.updateGauge()
	return c.NoContent(http.StatusNoContent)
}

// List handles GET /runner/list.
func (h *RunnerHandler) List(c echo.Context) error {
	all := h.registry.All()
	resp := dto.RunnerListResponse{Runners: make([]dto.RunnerDTO, 0, len(all))}
	for _, r := range all {
		resp.Runners = append(resp.Runners, dto.RunnerDTO{
			ID:            r.ID,
			Status:        string(r.Status),
			ActiveNodes:   r.ActiveNodes,
			MaxNodes:      r.Capabilities.MaxConcurrentNodes,
			RegisteredAt:  r.RegisteredAt.Format(time.RFC3339),
			LastHeartbeat: r.LastHeartbeat.Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, resp)
}
