// Package handlers implements the workspace-scoped HTTP surface (§6.1):
// thin, synchronous wrappers that translate a request into a mutation (or
// a run request), enqueue it, and translate the apply-latch outcome back
// into a response. No business logic lives here — that's the scheduler
// and run controller's job.
package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/graflow/graflow/internal/domain/graphmodel"
	"github.com/graflow/graflow/internal/domain/scheduler"
	"github.com/graflow/graflow/internal/domain/workspace"
	"github.com/graflow/graflow/internal/infrastructure/http/dto"
	"github.com/graflow/graflow/internal/infrastructure/registry"
	"github.com/graflow/graflow/internal/pkg/errors"
)

// WorkspaceHandler serves every endpoint under /workspace/:workspace_id/.
type WorkspaceHandler struct {
	registry     *registry.Registry
	mutationWait time.Duration
}

// NewWorkspaceHandler creates a WorkspaceHandler. mutationWait bounds how
// long a request blocks on its mutation's apply-latch before it is treated
// as a client timeout (§5 ordering/cancellation).
func NewWorkspaceHandler(reg *registry.Registry, mutationWait time.Duration) *WorkspaceHandler {
	if mutationWait <= 0 {
		mutationWait = 10 * time.Second
	}
	return &WorkspaceHandler{registry: reg, mutationWait: mutationWait}
}

func (h *WorkspaceHandler) workspace(c echo.Context) (*workspace.Workspace, error) {
	id := c.Param("workspace_id")
	ws, ok := h.registry.Get(id)
	if !ok {
		return nil, errors.NotFound("workspace", id)
	}
	return ws, nil
}

func (h *WorkspaceHandler) enqueue(c echo.Context, ws *workspace.Workspace, m *scheduler.Mutation) (scheduler.Result, error) {
	ctx, cancel := withTimeout(c, h.mutationWait)
	defer cancel()
	return ws.Enqueue(ctx, m)
}

// GetGraph handles GET /workspace/:workspace_id/get-graph.
func (h *WorkspaceHandler) GetGraph(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}

	g := ws.Graph
	resp := dto.GraphResponse{Wrapper: g.Wrapper}
	for _, n := range g.Nodes() {
		resp.Nodes = append(resp.Nodes, dto.NodeDTO{
			ID: n.ID, Label: n.Label, Status: string(n.Status), Log: n.Log, X: n.X, Y: n.Y,
		})
	}
	for _, e := range g.Edges() {
		resp.Edges = append(resp.Edges, dto.EdgeDTO{
			ID: e.ID, Source: e.Source, Target: e.Target, Status: string(e.Status), EdgeType: string(e.EdgeType),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// GetNodeLog handles GET /workspace/:workspace_id/get-node-log/:id.
func (h *WorkspaceHandler) GetNodeLog(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	n, ok := ws.Graph.Node(id)
	if !ok {
		return errors.NotFound("node", id)
	}
	return c.JSON(http.StatusOK, dto.NodeLogResponse{NodeID: n.ID, Log: n.Log})
}

// AddNode handles POST /workspace/:workspace_id/add-node.
func (h *WorkspaceHandler) AddNode(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	var req dto.AddNodeRequest
	if err := c.Bind(&req); err != nil {
		return errors.InvalidInput("body", err.Error())
	}
	if req.ID == "" {
		req.ID = newID()
	}

	res, err := h.enqueue(c, ws, scheduler.NewAddNode(origin(c), req.ID, req.Label, req.X, req.Y))
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}
	return c.JSON(http.StatusOK, dto.AddNodeResponse{ID: req.ID})
}

// RemoveNode handles POST /workspace/:workspace_id/remove-node.
func (h *WorkspaceHandler) RemoveNode(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	var req dto.RemoveNodeRequest
	if err := c.Bind(&req); err != nil {
		return errors.InvalidInput("body", err.Error())
	}
	res, err := h.enqueue(c, ws, scheduler.NewRemoveNode(origin(c), req.ID))
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}
	return c.NoContent(http.StatusNoContent)
}

// AddEdge handles POST /workspace/:workspace_id/add-edge.
func (h *WorkspaceHandler) AddEdge(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	var req dto.AddEdgeRequest
	if err := c.Bind(&req); err != nil {
		return errors.InvalidInput("body", err.Error())
	}
	if req.ID == "" {
		req.ID = newID()
	}
	edgeType := graphmodel.EdgeType(req.EdgeType)
	if edgeType == "" {
		edgeType = graphmodel.Blocking
	}
	if !edgeType.Valid() {
		return errors.InvalidInput("edge_type", "must be blocking or non-blocking")
	}

	res, err := h.enqueue(c, ws, scheduler.NewAddEdge(origin(c), req.ID, req.Source, req.Target, edgeType))
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}
	return c.JSON(http.StatusOK, dto.AddEdgeResponse{ID: req.ID})
}

// RemoveEdge handles POST /workspace/:workspace_id/remove-edge.
func (h *WorkspaceHandler) RemoveEdge(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	var req dto.RemoveEdgeRequest
	if err := c.Bind(&req); err != nil {
		return errors.InvalidInput("body", err.Error())
	}

	var m *scheduler.Mutation
	if req.ID != "" {
		m = scheduler.NewRemoveEdge(origin(c), req.ID)
	} else {
		m = scheduler.NewRemoveEdgeByEndpoints(origin(c), req.Source, req.Target)
	}

	res, err := h.enqueue(c, ws, m)
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}
	return c.NoContent(http.StatusNoContent)
}

// EditEdgeType handles POST /workspace/:workspace_id/edit-edge-type.
func (h *WorkspaceHandler) EditEdgeType(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	var req dto.EditEdgeTypeRequest
	if err := c.Bind(&req); err != nil {
		return errors.InvalidInput("body", err.Error())
	}
	edgeType := graphmodel.EdgeType(req.EdgeType)
	if !edgeType.Valid() {
		return errors.InvalidInput("edge_type", "must be blocking or non-blocking")
	}

	res, err := h.enqueue(c, ws, scheduler.NewEditEdgeType(origin(c), req.Source, req.Target, edgeType))
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}
	return c.NoContent(http.StatusNoContent)
}

// EditStatus handles POST /workspace/:workspace_id/edit-status.
func (h *WorkspaceHandler) EditStatus(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	var req dto.EditStatusRequest
	if err := c.Bind(&req); err != nil {
		return errors.InvalidInput("body", err.Error())
	}

	var m *scheduler.Mutation
	switch scheduler.StatusKind(req.Kind) {
	case scheduler.TargetNode:
		m = scheduler.NewEditNodeStatus(origin(c), req.NodeID, req.Status, req.RunID)
	case scheduler.TargetEdge:
		m = scheduler.NewEditEdgeStatus(origin(c), req.EdgeID, req.Status)
	default:
		return errors.InvalidInput("kind", "must be node or edge")
	}

	res, err := h.enqueue(c, ws, m)
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}
	return c.NoContent(http.StatusNoContent)
}

// EditNodePosition handles POST /workspace/:workspace_id/edit-node-position.
func (h *WorkspaceHandler) EditNodePosition(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	var req dto.EditNodePositionRequest
	if err := c.Bind(&req); err != nil {
		return errors.InvalidInput("body", err.Error())
	}
	res, err := h.enqueue(c, ws, scheduler.NewEditPosition(origin(c), req.ID, req.X, req.Y))
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}
	return c.NoContent(http.StatusNoContent)
}

// EditNodeLabel handles POST /workspace/:workspace_id/edit-node-label.
func (h *WorkspaceHandler) EditNodeLabel(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	var req dto.EditNodeLabelRequest
	if err := c.Bind(&req); err != nil {
		return errors.InvalidInput("body", err.Error())
	}
	res, err := h.enqueue(c, ws, scheduler.NewEditLabel(origin(c), req.ID, req.Label))
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}
	return c.NoContent(http.StatusNoContent)
}

// EditWrapper handles POST /workspace/:workspace_id/edit-wrapper.
func (h *WorkspaceHandler) EditWrapper(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	var req dto.EditWrapperRequest
	if err := c.Bind(&req); err != nil {
		return errors.InvalidInput("body", err.Error())
	}
	res, err := h.enqueue(c, ws, scheduler.NewEditWrapper(origin(c), req.Wrapper))
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}
	return c.NoContent(http.StatusNoContent)
}

// SaveNodeLog handles POST /workspace/:workspace_id/save-node-log.
func (h *WorkspaceHandler) SaveNodeLog(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	var req dto.SaveNodeLogRequest
	if err := c.Bind(&req); err != nil {
		return errors.InvalidInput("body", err.Error())
	}
	res, err := h.enqueue(c, ws, scheduler.NewSaveNodeLog(origin(c), req.ID, req.Log))
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}
	return c.NoContent(http.StatusNoContent)
}

// Run handles POST /workspace/:workspace_id/run.
func (h *WorkspaceHandler) Run(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	var req dto.RunRequest
	if err := c.Bind(&req); err != nil {
		return errors.InvalidInput("body", err.Error())
	}

	ctx, cancel := withTimeout(c, h.mutationWait)
	defer cancel()

	run, err := ws.Run(ctx, newID(), workspace.RunRequest{Nodes: req.Nodes, Wrapper: req.Wrapper})
	if err != nil {
		return err
	}

	nodes := make([]string, 0, len(run.Nodes))
	for id := range run.Nodes {
		nodes = append(nodes, id)
	}
	return c.JSON(http.StatusOK, dto.RunResponse{RunID: run.ID, Nodes: nodes})
}

// ClientConnect handles POST /workspace/:workspace_id/client-connect.
func (h *WorkspaceHandler) ClientConnect(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	ws.Connect()
	return c.JSON(http.StatusOK, dto.ClientConnectResponse{WorkspaceID: ws.ID, Clients: ws.ClientCount()})
}

// ClientDisconnect handles POST /workspace/:workspace_id/client-disconnect.
func (h *WorkspaceHandler) ClientDisconnect(c echo.Context) error {
	ws, err := h.workspace(c)
	if err != nil {
		return err
	}
	ws.Disconnect()
	return c.JSON(http.StatusOK, dto.ClientDisconnectResponse{Clients: ws.ClientCount()})
}

func origin(c echo.Context) string {
	return "http:" + c.RealIP()
}
