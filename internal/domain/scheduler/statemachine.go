package scheduler

import (
	"context"

	"github.com/graflow/graflow/internal/domain/graphmodel"
	"github.com/graflow/graflow/internal/domain/runctl"
	"github.com/graflow/graflow/internal/pkg/errors"
	"github.com/graflow/graflow/internal/pkg/eventbus"
)

// nonBlockingRetriggerFactor, multiplied by the run's node count, bounds
// re-entry into run via non-blocking edges within a single run, guarding against runaway feedback loops (§9 open
// question: suggested bound is 2x node count).
const nonBlockingRetriggerFactor = 2

// retriggerKey scopes the non-blocking retrigger cap to a single (run,
// node) pair, per §B.4: the counter must not leak across runs that reuse
// the same node id.
type retriggerKey struct {
	runID  string
	nodeID string
}

// Engine applies mutation records to a graph, runs the §4.3 state-machine
// hook on status changes, and publishes the resulting domain events. It
// holds no goroutine of its own; the owning workspace worker calls Apply
// sequentially for every dequeued mutation.
type Engine struct {
	Graph     *graphmodel.Graph
	Runs      *runctl.Registry
	Bus       *eventbus.Bus
	retrigger map[retriggerKey]int
}

// NewEngine wires an Engine over an existing graph, run registry and bus.
func NewEngine(g *graphmodel.Graph, runs *runctl.Registry, bus *eventbus.Bus) *Engine {
	return &Engine{Graph: g, Runs: runs, Bus: bus, retrigger: make(map[retriggerKey]int)}
}

// clearRetrigger drops every retrigger-cap entry owned by runID, called
// once the run finishes or is cancelled so the counter cannot leak into a
// later run that reuses the same node ids.
func (e *Engine) clearRetrigger(runID string, nodeIDs map[string]bool) {
	for nodeID := range nodeIDs {
		delete(e.retrigger, retriggerKey{runID: runID, nodeID: nodeID})
	}
}

// Apply applies one mutation record, returning the outcome that should be
// delivered on the mutation's apply-latch. It never returns an error for
// mutations that are idempotent no-ops; those simply produce no transition
// events (property 8).
func (e *Engine) Apply(ctx context.Context, m *Mutation) Result {
	switch m.Kind {
	case AddNode:
		return e.applyAddNode(ctx, m)
	case RemoveNode:
		return e.applyRemoveNode(ctx, m)
	case AddEdge:
		return e.applyAddEdge(ctx, m)
	case RemoveEdge:
		return e.applyRemoveEdge(ctx, m)
	case EditStatus:
		return e.applyEditStatus(ctx, m)
	case EditPosition:
		return e.applyEditPosition(m)
	case EditLabel:
		return e.applyEditLabel(ctx, m)
	case EditWrapper:
		return e.applyEditWrapper(ctx, m)
	case EditEdgeType:
		return e.applyEditEdgeType(ctx, m)
	case SaveNodeLog:
		return e.applySaveNodeLog(m)
	default:
		return Result{Err: errors.InvalidInput("kind", "unknown mutation kind")}
	}
}

func (e *Engine) applyAddNode(ctx context.Context, m *Mutation) Result {
	n := &graphmodel.Node{ID: m.NodeID, Label: m.Label, X: m.X, Y: m.Y}
	if err := e.Graph.AddNode(n); err != nil {
		e.reject(ctx, err)
		return Result{Err: err}
	}
	e.publishGraphUpdated(ctx)
	return Result{NodeID: m.NodeID}
}

func (e *Engine) applyRemoveNode(ctx context.Context, m *Mutation) Result {
	if owner, ok := e.Runs.Owner(m.NodeID); ok {
		e.Runs.Release(m.NodeID)
		_ = owner
	}
	if err := e.Graph.RemoveNode(m.NodeID); err != nil {
		e.reject(ctx, err)
		return Result{Err: err}
	}
	e.publishGraphUpdated(ctx)
	return Result{NodeID: m.NodeID}
}

func (e *Engine) applyAddEdge(ctx context.Context, m *Mutation) Result {
	edgeType := m.EdgeType
	if edgeType == "" {
		edgeType = graphmodel.Blocking
	}
	edge := &graphmodel.Edge{ID: m.EdgeID, Source: m.SourceID, Target: m.TargetID, EdgeType: edgeType}
	if err := e.Graph.AddEdge(edge); err != nil {
		e.reject(ctx, err)
		return Result{Err: err}
	}
	if edgeType == graphmodel.Blocking && e.Graph.HasBlockingCycle(e.allNodeIDs()) {
		e.Graph.RemoveEdge(edge.ID)
		err := errors.GraphCycle("edge " + edge.ID)
		e.reject(ctx, err)
		return Result{Err: err}
	}
	e.publishGraphUpdated(ctx)
	return Result{EdgeID: m.EdgeID}
}

// allNodeIDs builds the full-graph membership set HasBlockingCycle expects
// when checking an edge inserted directly into the persisted graph, outside
// of any run's induced subset (invariant 5 applies at insertion time too,
// not only at /run time).
func (e *Engine) allNodeIDs() map[string]bool {
	nodes := e.Graph.Nodes()
	within := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		within[n.ID] = true
	}
	return within
}

func (e *Engine) applyRemoveEdge(ctx context.Context, m *Mutation) Result {
	var err error
	if m.EdgeID != "" {
		err = e.Graph.RemoveEdge(m.EdgeID)
	} else {
		err = e.Graph.RemoveEdgeByEndpoints(m.SourceID, m.TargetID)
	}
	if err != nil {
		e.reject(ctx, err)
		return Result{Err: err}
	}
	e.publishGraphUpdated(ctx)
	return Result{EdgeID: m.EdgeID}
}

func (e *Engine) applyEditPosition(m *Mutation) Result {
	n, ok := e.Graph.Node(m.NodeID)
	if !ok {
		return Result{Err: errors.NotFound("node", m.NodeID)}
	}
	n.X, n.Y = m.X, m.Y
	return Result{NodeID: m.NodeID}
}

func (e *Engine) applyEditLabel(ctx context.Context, m *Mutation) Result {
	n, ok := e.Graph.Node(m.NodeID)
	if !ok {
		return Result{Err: errors.NotFound("node", m.NodeID)}
	}
	if n.Label == m.Label {
		return Result{NodeID: m.NodeID}
	}
	n.Label = m.Label
	e.publishGraphUpdated(ctx)
	return Result{NodeID: m.NodeID}
}

func (e *Engine) applyEditWrapper(ctx context.Context, m *Mutation) Result {
	if e.Graph.Wrapper == m.Wrapper {
		return Result{}
	}
	e.Graph.Wrapper = m.Wrapper
	e.publishGraphUpdated(ctx)
	return Result{}
}

func (e *Engine) applyEditEdgeType(ctx context.Context, m *Mutation) Result {
	var target *graphmodel.Edge
	for _, edge := range e.Graph.Successors(m.SourceID) {
		if edge.Target == m.TargetID {
			target = edge
			break
		}
	}
	if target == nil {
		return Result{Err: errors.NotFound("edge", m.SourceID+"->"+m.TargetID)}
	}
	if target.EdgeType == m.EdgeType {
		return Result{EdgeID: target.ID}
	}
	target.EdgeType = m.EdgeType
	e.publishGraphUpdated(ctx)
	return Result{EdgeID: target.ID}
}

func (e *Engine) applySaveNodeLog(m *Mutation) Result {
	n, ok := e.Graph.Node(m.NodeID)
	if !ok {
		return Result{Err: errors.NotFound("node", m.NodeID)}
	}
	n.Log = m.Log
	return Result{NodeID: m.NodeID}
}

func (e *Engine) reject(ctx context.Context, err error) {
	e.Bus.Publish(ctx, eventbus.KindGraphRejected, "", "", map[string]string{"error": err.Error()})
}

func (e *Engine) publishGraphUpdated(ctx context.Context) {
	e.Bus.Publish(ctx, eventbus.KindGraphUpdated, "", "", nil)
}

// applyEditStatus is the heart of §4.3: it validates the requested
// transition, applies the side effects for the new status, and evaluates
// readiness on affected edges/targets.
func (e *Engine) applyEditStatus(ctx context.Context, m *Mutation) Result {
	if m.StatusKind == TargetEdge {
		return e.applyEditEdgeStatus(m)
	}
	return e.applyEditNodeStatus(ctx, m)
}

func (e *Engine) applyEditEdgeStatus(m *Mutation) Result {
	edge, ok := e.Graph.Edge(m.EdgeID)
	if !ok {
		return Result{Err: errors.NotFound("edge", m.EdgeID)}
	}
	status := graphmodel.EdgeStatus(m.NewStatus)
	if !status.Valid() {
		return Result{Err: errors.InvalidInput("status", "invalid edge status "+m.NewStatus)}
	}
	// Per the open question on manual edit_status(edge, to_run): this is a
	// supported debug affordance but does not itself clear incoming edges
	// on readiness -- only the blocking/non-blocking satisfaction path
	// inside applyEditNodeStatus does that.
	edge.Status = status
	return Result{EdgeID: m.EdgeID}
}

func (e *Engine) applyEditNodeStatus(ctx context.Context, m *Mutation) Result {
	node, ok := e.Graph.Node(m.NodeID)
	if !ok {
		return Result{Err: errors.NotFound("node", m.NodeID)}
	}

	newStatus := graphmodel.NodeStatus(m.NewStatus)
	if !newStatus.Valid() {
		return Result{Err: errors.InvalidInput("status", "invalid node status "+m.NewStatus)}
	}
	if node.Status == newStatus {
		return Result{NodeID: m.NodeID}
	}

	switch newStatus {
	case graphmodel.NodeRun:
		return e.enterRun(ctx, node, m.RunID)
	case graphmodel.NodeRunning:
		return e.enterRunning(ctx, node)
	case graphmodel.NodeRan:
		return e.enterRan(ctx, node)
	case graphmodel.NodeFail:
		return e.enterFail(ctx, node)
	case graphmodel.NodeIdle:
		return e.enterIdle(node)
	default:
		return Result{Err: errors.InvalidState(string(node.Status), string(newStatus))}
	}
}

func (e *Engine) enterRun(ctx context.Context, node *graphmodel.Node, runID string) Result {
	run, ok := e.Runs.Get(runID)
	if !ok {
		return Result{Err: errors.NotFound("run", runID)}
	}
	if !run.Contains(node.ID) {
		return Result{Err: errors.InvalidState("run", "node "+node.ID+" is not a member of run "+runID)}
	}

	node.Status = graphmodel.NodeRun
	e.Runs.Claim(node.ID, runID)
	e.clearIncomingWithinRun(node.ID, run)

	e.Bus.Publish(ctx, eventbus.KindNodeReady, runID, node.ID, map[string]string{
		"label":   node.Label,
		"wrapper": run.Wrapper,
	})
	return Result{NodeID: node.ID, RunID: runID}
}

func (e *Engine) enterRunning(ctx context.Context, node *graphmodel.Node) Result {
	runID, _ := e.Runs.Owner(node.ID)
	node.Status = graphmodel.NodeRunning
	e.Bus.Publish(ctx, eventbus.KindNodeStarted, runID, node.ID, nil)
	return Result{NodeID: node.ID, RunID: runID}
}

func (e *Engine) enterRan(ctx context.Context, node *graphmodel.Node) Result {
	runID, _ := e.Runs.Owner(node.ID)
	node.Status = graphmodel.NodeRan
	e.Runs.Release(node.ID)

	e.propagateToRun(ctx, node, runID)

	e.Bus.Publish(ctx, eventbus.KindNodeFinished, runID, node.ID, nil)
	e.completionCheck(ctx, runID)
	return Result{NodeID: node.ID, RunID: runID}
}

func (e *Engine) enterFail(ctx context.Context, node *graphmodel.Node) Result {
	runID, _ := e.Runs.Owner(node.ID)
	node.Status = graphmodel.NodeFail
	e.Runs.Release(node.ID)

	e.Bus.Publish(ctx, eventbus.KindNodeFailed, runID, node.ID, nil)
	e.completionCheck(ctx, runID)
	return Result{NodeID: node.ID, RunID: runID}
}

func (e *Engine) enterIdle(node *graphmodel.Node) Result {
	node.Status = graphmodel.NodeIdle
	e.Runs.Release(node.ID)
	return Result{NodeID: node.ID}
}

// clearIncomingWithinRun atomically clears every incoming edge of node
// that lies within run's allowed set, as required on entry to run (§4.3
// side effects and invariant 6).
func (e *Engine) clearIncomingWithinRun(nodeID string, run *runctl.Run) {
	for _, edge := range e.Graph.Predecessors(nodeID) {
		if run.Contains(edge.Source) {
			edge.Status = graphmodel.EdgeIdle
		}
	}
}

// propagateToRun latches every outgoing edge of node that targets a member
// of its run to to_run, then evaluates readiness on each such target
// (§4.3.1).
func (e *Engine) propagateToRun(ctx context.Context, node *graphmodel.Node, runID string) {
	run, ok := e.Runs.Get(runID)
	if !ok {
		return
	}

	targets := make(map[string]bool)
	for _, edge := range e.Graph.Successors(node.ID) {
		if !run.Contains(edge.Target) {
			continue
		}
		edge.Status = graphmodel.EdgeToRun
		targets[edge.Target] = true
	}

	for targetID := range targets {
		e.evaluateReadiness(ctx, targetID, run)
	}
}

// evaluateReadiness implements §4.3.1: a latched non-blocking edge within
// the run triggers immediately; otherwise every blocking edge within the
// run must be latched.
func (e *Engine) evaluateReadiness(ctx context.Context, nodeID string, run *runctl.Run) {
	target, ok := e.Graph.Node(nodeID)
	if !ok {
		return
	}
	// A target already in run or running is left alone; idle, failed and
	// ran targets are eligible to (re-)enter run.
	if target.Status == graphmodel.NodeRun || target.Status == graphmodel.NodeRunning {
		return
	}

	nonBlocking := e.Graph.InducedNonBlockingPredecessors(nodeID, run.Nodes)
	triggered := false
	for _, edge := range nonBlocking {
		if edge.Status == graphmodel.EdgeToRun {
			triggered = true
			break
		}
	}

	if !triggered {
		blocking := e.Graph.InducedBlockingPredecessors(nodeID, run.Nodes)
		if len(blocking) == 0 {
			return
		}
		allLatched := true
		for _, edge := range blocking {
			if edge.Status != graphmodel.EdgeToRun {
				allLatched = false
				break
			}
		}
		if !allLatched {
			return
		}
	} else {
		key := retriggerKey{runID: run.ID, nodeID: nodeID}
		retriggerCap := nonBlockingRetriggerFactor * len(run.Nodes)
		e.retrigger[key]++
		if e.retrigger[key] > retriggerCap {
			return
		}
	}

	if target.Status == graphmodel.NodeFail {
		target.Status = graphmodel.NodeIdle
	}
	e.enterRun(ctx, target, run.ID)
}

// completionCheck implements the §4.4 completion sweep for one run: once
// no member node is run or running, emit RUN_COMPLETE exactly once and
// retire the run.
func (e *Engine) completionCheck(ctx context.Context, runID string) {
	if runID == "" {
		return
	}
	run, ok := e.Runs.Get(runID)
	if !ok {
		return
	}
	if !e.Runs.IsComplete(run, e.Graph) {
		return
	}
	if !e.Runs.MarkCompleteOnce(run) {
		return
	}
	e.Bus.Publish(ctx, eventbus.KindRunComplete, runID, "", nil)
	e.Runs.Finish(runID)
	e.clearRetrigger(runID, run.Nodes)
}

// Sweep runs the completion check against every currently active run; the
// worker calls this once the modification queue drains, per §4.2/§4.4.
func (e *Engine) Sweep(ctx context.Context) {
	for _, run := range e.Runs.ActiveRuns() {
		e.completionCheck(ctx, run.ID)
	}
}

// Cancel transitions every run/running node owned by runID to idle and
// retires the run, per the §4.4 cancellation rule.
func (e *Engine) Cancel(ctx context.Context, runID string) {
	for _, nodeID := range e.Runs.NodesOwnedBy(runID) {
		if n, ok := e.Graph.Node(nodeID); ok {
			n.Status = graphmodel.NodeIdle
		}
	}
	if run, ok := e.Runs.Get(runID); ok {
		e.clearRetrigger(runID, run.Nodes)
	}
	e.Runs.Finish(runID)
}
