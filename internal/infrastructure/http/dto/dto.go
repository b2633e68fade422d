// Package dto holds the request/response shapes for the workspace HTTP
// API, kept separate from the domain types so the wire format can evolve
// independently of graphmodel/scheduler.
package dto

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NodeDTO mirrors graphmodel.Node for wire transfer.
type NodeDTO struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Status string `json:"status"`
	Log    string `json:"log,omitempty"`
	X      string `json:"x,omitempty"`
	Y      string `json:"y,omitempty"`
}

// EdgeDTO mirrors graphmodel.Edge for wire transfer.
type EdgeDTO struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Status   string `json:"status"`
	EdgeType string `json:"edge_type"`
}

// GraphResponse is the body of GET /get-graph.
type GraphResponse struct {
	Wrapper string    `json:"wrapper"`
	Nodes   []NodeDTO `json:"nodes"`
	Edges   []EdgeDTO `json:"edges"`
}

// NodeLogResponse is the body of GET /get-node-log/:id.
type NodeLogResponse struct {
	NodeID string `json:"node_id"`
	Log    string `json:"log"`
}

// AddNodeRequest is the body of POST /add-node.
type AddNodeRequest struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	X     string `json:"x"`
	Y     string `json:"y"`
}

// AddNodeResponse echoes the created node's id.
type AddNodeResponse struct {
	ID string `json:"id"`
}

// RemoveNodeRequest is the body of POST /remove-node.
type RemoveNodeRequest struct {
	ID string `json:"id"`
}

// AddEdgeRequest is the body of POST /add-edge.
type AddEdgeRequest struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	EdgeType string `json:"edge_type,omitempty"`
}

// AddEdgeResponse echoes the created edge's id.
type AddEdgeResponse struct {
	ID string `json:"id"`
}

// RemoveEdgeRequest is the body of POST /remove-edge. Either ID, or the
// Source/Target pair, must be set.
type RemoveEdgeRequest struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source,omitempty"`
	Target string `json:"target,omitempty"`
}

// EditEdgeTypeRequest is the body of POST /edit-edge-type.
type EditEdgeTypeRequest struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	EdgeType string `json:"edge_type"`
}

// EditStatusRequest is the body of POST /edit-status. Exactly one of
// NodeID/EdgeID should be set, matching StatusKind.
type EditStatusRequest struct {
	Kind   string `json:"kind"`
	NodeID string `json:"node_id,omitempty"`
	EdgeID string `json:"edge_id,omitempty"`
	Status string `json:"status"`
	RunID  string `json:"run_id,omitempty"`
}

// EditNodePositionRequest is the body of POST /edit-node-position.
type EditNodePositionRequest struct {
	ID string `json:"id"`
	X  string `json:"x"`
	Y  string `json:"y"`
}

// EditNodeLabelRequest is the body of POST /edit-node-label.
type EditNodeLabelRequest struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// EditWrapperRequest is the body of POST /edit-wrapper.
type EditWrapperRequest struct {
	Wrapper string `json:"wrapper"`
}

// SaveNodeLogRequest is the body of POST /save-node-log.
type SaveNodeLogRequest struct {
	ID  string `json:"id"`
	Log string `json:"log"`
}

// RunRequest is the body of POST /run. An empty Nodes selection falls back
// to the §4.4 resume/all selection rule.
type RunRequest struct {
	Nodes   []string `json:"nodes,omitempty"`
	Wrapper string   `json:"wrapper,omitempty"`
}

// RunResponse is the body returned once a run has been accepted and its
// roots have started.
type RunResponse struct {
	RunID string   `json:"run_id"`
	Nodes []string `json:"nodes"`
}

// ClientConnectResponse is the body of POST /client-connect.
type ClientConnectResponse struct {
	WorkspaceID string `json:"workspace_id"`
	Clients     int    `json:"clients"`
}

// ClientDisconnectResponse is the body of POST /client-disconnect.
type ClientDisconnectResponse struct {
	Clients int `json:"clients"`
}

// RunnerRegisterRequest is the body of POST /runner/register.
type RunnerRegisterRequest struct {
	ID                 string `json:"runner_id"`
	MaxConcurrentNodes int    `json:"max_concurrent_nodes"`
}

// RunnerRegisterResponse echoes the registered runner's id.
type RunnerRegisterResponse struct {
	RunnerID string `json:"runner_id"`
}

// RunnerHeartbeatRequest is the body of POST /runner/heartbeat.
type RunnerHeartbeatRequest struct {
	ID          string `json:"runner_id"`
	Status      string `json:"status"`
	ActiveNodes int    `json:"active_nodes"`
}

// RunnerDTO mirrors runner.Runner for wire transfer.
type RunnerDTO struct {
	ID            string `json:"runner_id"`
	Status        string `json:"status"`
	ActiveNodes   int    `json:"active_nodes"`
	MaxNodes      int    `json:"max_concurrent_nodes"`
	RegisteredAt  string `json:"registered_at"`
	LastHeartbeat string `json:"last_heartbeat"`
}

// RunnerListResponse is the body of GET /runner/list.
type RunnerListResponse struct {
	Runners []RunnerDTO `json:"runners"`
}
