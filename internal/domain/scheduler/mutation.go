// Package scheduler holds the mutation record type and the state-machine
// hook that the graph worker runs against every status-changing mutation.
// Mutation records are a tagged sum type: one Kind, one struct, dispatch by
// switching on the tag rather than by subclassing.
package scheduler

import "github.com/graflow/graflow/internal/domain/graphmodel"

// Kind tags the variant of a Mutation record.
type Kind string

const (
	AddNode      Kind = "add_node"
	RemoveNode   Kind = "remove_node"
	AddEdge      Kind = "add_edge"
	RemoveEdge   Kind = "remove_edge"
	EditStatus   Kind = "edit_status"
	EditPosition Kind = "edit_position"
	EditLabel    Kind = "edit_label"
	EditWrapper  Kind = "edit_wrapper"
	EditEdgeType Kind = "edit_edge_type"
	SaveNodeLog  Kind = "save_node_log"
)

// StatusKind distinguishes which entity edit_status targets.
type StatusKind string

const (
	TargetNode StatusKind = "node"
	TargetEdge StatusKind = "edge"
)

// Mutation is one pending change to a workspace's graph. Origin identifies
// the client or runner that produced it, for audit and event attribution.
// Result is closed by the worker once the mutation has been applied (or
// rejected), carrying the apply-latch outcome back to the producer.
type Mutation struct {
	Kind   Kind
	Origin string

	NodeID   string
	EdgeID   string
	SourceID string
	TargetID string

	Label   string
	X, Y    string
	Log     string
	Wrapper string

	StatusKind StatusKind
	NewStatus  string
	RunID      string

	EdgeType graphmodel.EdgeType

	// Explicit node selection for a run request, carried by the workspace
	// layer rather than applied here; present so callers constructing a
	// run mutation through the same queue have somewhere to put it.
	RunNodes []string

	Result chan Result
}

// Result is the synchronous outcome delivered to whatever produced a
// Mutation (an HTTP handler awaiting its apply-latch).
type Result struct {
	NodeID string
	EdgeID string
	RunID  string
	Err    error
}

// newMutation allocates a record with its result channel pre-created; every
// constructor in this package funnels through it so producers always have
// exactly one place to await completion.
func newMutation(kind Kind, origin string) *Mutation {
	return &Mutation{Kind: kind, Origin: origin, Result: make(chan Result, 1)}
}

// NewAddNode builds an add_node mutation.
func NewAddNode(origin, nodeID, label, x, y string) *Mutation {
	m := newMutation(AddNode, origin)
	m.NodeID, m.Label, m.X, m.Y = nodeID, label, x, y
	return m
}

// NewRemoveNode builds a remove_node mutation.
func NewRemoveNode(origin, nodeID string) *Mutation {
	m := newMutation(RemoveNode, origin)
	m.NodeID = nodeID
	return m
}

// NewAddEdge builds an add_edge mutation; edgeType defaults to blocking if
// empty.
func NewAddEdge(origin, edgeID, source, target string, edgeType graphmodel.EdgeType) *Mutation {
	m := newMutation(AddEdge, origin)
	m.EdgeID, m.SourceID, m.TargetID, m.EdgeType = edgeID, source, target, edgeType
	return m
}

// NewRemoveEdge builds a remove_edge mutation addressed by edge id.
func NewRemoveEdge(origin, edgeID string) *Mutation {
	m := newMutation(RemoveEdge, origin)
	m.EdgeID = edgeID
	return m
}

// NewRemoveEdgeByEndpoints builds a remove_edge mutation addressed by
// source/target pair.
func NewRemoveEdgeByEndpoints(origin, source, target string) *Mutation {
	m := newMutation(RemoveEdge, origin)
	m.SourceID, m.TargetID = source, target
	return m
}

// NewEditNodeStatus builds an edit_status mutation targeting a node.
func NewEditNodeStatus(origin, nodeID, newStatus, runID string) *Mutation {
	m := newMutation(EditStatus, origin)
	m.StatusKind, m.NodeID, m.NewStatus, m.RunID = TargetNode, nodeID, newStatus, runID
	return m
}

// NewEditEdgeStatus builds an edit_status mutation targeting an edge.
func NewEditEdgeStatus(origin, edgeID, newStatus string) *Mutation {
	m := newMutation(EditStatus, origin)
	m.StatusKind, m.EdgeID, m.NewStatus = TargetEdge, edgeID, newStatus
	return m
}

// NewEditPosition builds an edit_position mutation.
func NewEditPosition(origin, nodeID, x, y string) *Mutation {
	m := newMutation(EditPosition, origin)
	m.NodeID, m.X, m.Y = nodeID, x, y
	return m
}

// NewEditLabel builds an edit_label mutation.
func NewEditLabel(origin, nodeID, label string) *Mutation {
	m := newMutation(EditLabel, origin)
	m.NodeID, m.Label = nodeID, label
	return m
}

// NewEditWrapper builds an edit_wrapper mutation.
func NewEditWrapper(origin, wrapper string) *Mutation {
	m := newMutation(EditWrapper, origin)
	m.Wrapper = wrapper
	return m
}

// NewEditEdgeType builds an edit_edge_type mutation addressed by
// source/target pair.
func NewEditEdgeType(origin, source, target string, edgeType graphmodel.EdgeType) *Mutation {
	m := newMutation(EditEdgeType, origin)
	m.SourceID, m.TargetID, m.EdgeType = source, target, edgeType
	return m
}

// NewSaveNodeLog builds a save_node_log mutation.
func NewSaveNodeLog(origin, nodeID, log string) *Mutation {
	m := newMutation(SaveNodeLog, origin)
	m.NodeID, m.Log = nodeID, log
	return m
}

// Done delivers r on the mutation's result channel and closes it. Safe to
// call at most once per mutation.
func (m *Mutation) Done(r Result) {
	m.Result <- r
	close(m.Result)
}
