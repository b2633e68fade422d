// Package runctl is the run controller: selection of the allowed node set
// for a /run request, cycle rejection on the induced blocking subgraph,
// root computation, and the registry that enforces at-most-one active run
// per node.
package runctl

import (
	"github.com/graflow/graflow/internal/domain/graphmodel"
	"github.com/graflow/graflow/internal/pkg/errors"
)

// Run is one execution episode, scoped to an allowed node set.
type Run struct {
	ID      string
	Nodes   map[string]bool
	Wrapper string
	// SubsetOnly is always true in this design: Create sets it, and no
	// request field carries it.
	SubsetOnly bool

	completeNotified bool
}

// Contains reports whether id is a member of the run's allowed set.
func (r *Run) Contains(id string) bool {
	return r.Nodes[id]
}

// Registry tracks every active run in a workspace and which run, if any,
// currently owns each node. It is mutated only by the owning workspace's
// worker goroutine.
type Registry struct {
	activeRuns    map[string]*Run
	activeNodeRun map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		activeRuns:    make(map[string]*Run),
		activeNodeRun: make(map[string]string),
	}
}

// Select implements the §4.4 deterministic selection rule: an explicit
// non-empty set wins; otherwise resume-on-fail; otherwise all nodes.
func Select(g *graphmodel.Graph, explicit []string) map[string]bool {
	if len(explicit) > 0 {
		allowed := make(map[string]bool, len(explicit))
		for _, id := range explicit {
			allowed[id] = true
		}
		return allowed
	}

	allowed := make(map[string]bool)
	for _, n := range g.Nodes() {
		if n.Status == graphmodel.NodeFail {
			allowed[n.ID] = true
		}
	}
	if len(allowed) > 0 {
		return allowed
	}

	for _, n := range g.Nodes() {
		allowed[n.ID] = true
	}
	return allowed
}

// Create validates the allowed set against the graph and, if acceptable,
// registers a new run and returns its roots (the nodes that should
// immediately transition to run). It rejects empty selections, unknown
// nodes, nodes already running under another active run, and cyclic
// induced blocking subgraphs.
func (reg *Registry) Create(g *graphmodel.Graph, runID string, allowed map[string]bool, wrapper string) (*Run, []string, error) {
	if len(allowed) == 0 {
		return nil, nil, errors.InvalidInput("nodes", "run selection is empty")
	}

	for id := range allowed {
		n, ok := g.Node(id)
		if !ok {
			return nil, nil, errors.NotFound("node", id)
		}
		if n.Status == graphmodel.NodeRunning {
			if owner, ok := reg.activeNodeRun[id]; ok && owner != runID {
				return nil, nil, errors.InvalidState("running", "node "+id+" is already running under run "+owner)
			}
		}
	}

	if g.HasBlockingCycle(allowed) {
		return nil, nil, errors.GraphCycle("run " + runID)
	}

	roots := g.ZeroIndegreeRoots(allowed)

	run := &Run{ID: runID, Nodes: allowed, Wrapper: wrapper, SubsetOnly: true}
	reg.activeRuns[runID] = run

	return run, roots, nil
}

// Get returns the run registered under id, if any.
func (reg *Registry) Get(id string) (*Run, bool) {
	r, ok := reg.activeRuns[id]
	return r, ok
}

// Owner returns the run id currently owning node, if any.
func (reg *Registry) Owner(nodeID string) (string, bool) {
	id, ok := reg.activeNodeRun[nodeID]
	return id, ok
}

// Claim records that runID now owns nodeID (invariant 7: active_node_run
// present iff status is run or running).
func (reg *Registry) Claim(nodeID, runID string) {
	reg.activeNodeRun[nodeID] = runID
}

// Release drops nodeID's ownership entry, if present.
func (reg *Registry) Release(nodeID string) {
	delete(reg.activeNodeRun, nodeID)
}

// IsComplete reports whether no node in the run's allowed set is currently
// run or running.
func (reg *Registry) IsComplete(run *Run, g *graphmodel.Graph) bool {
	for id := range run.Nodes {
		n, ok := g.Node(id)
		if !ok {
			continue
		}
		if n.Status == graphmodel.NodeRun || n.Status == graphmodel.NodeRunning {
			return false
		}
	}
	return true
}

// MarkCompleteOnce reports true the first time it is called for run,
// guaranteeing property 6 (exactly one RUN_COMPLETE per accepted run).
func (reg *Registry) MarkCompleteOnce(run *Run) bool {
	if run.completeNotified {
		return false
	}
	run.completeNotified = true
	return true
}

// Finish removes a completed or cancelled run and clears any remaining
// active_node_run entries that still point at it.
func (reg *Registry) Finish(runID string) {
	delete(reg.activeRuns, runID)
	for node, owner := range reg.activeNodeRun {
		if owner == runID {
			delete(reg.activeNodeRun, node)
		}
	}
}

// ActiveRuns returns every run currently registered, for cancellation and
// inspection during workspace teardown.
func (reg *Registry) ActiveRuns() []*Run {
	out := make([]*Run, 0, len(reg.activeRuns))
	for _, r := range reg.activeRuns {
		out = append(out, r)
	}
	return out
}

// NodesOwnedBy returns every node id whose active_node_run entry is runID.
func (reg *Registry) NodesOwnedBy(runID string) []string {
	var out []string
	for node, owner := range reg.activeNodeRun {
		if owner == runID {
			out = append(out, node)
		}
	}
	return out
}
