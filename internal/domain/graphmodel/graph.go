// Package graphmodel is the in-memory directed graph: nodes carry a shell
// command, edges carry a dependency, and the graph store offers exactly the
// lookups the scheduler needs (predecessors, successors, induced subgraphs,
// zero-indegree queries) without ever taking a lock. Mutation is the sole
// privilege of the owning workspace's worker goroutine; nothing else may
// write it.
package graphmodel

import (
	"sort"

	"github.com/graflow/graflow/internal/pkg/errors"
)

// NodeStatus is the lifecycle status of a node.
type NodeStatus string

const (
	NodeIdle    NodeStatus = ""
	NodeRun     NodeStatus = "run"
	NodeRunning NodeStatus = "running"
	NodeRan     NodeStatus = "ran"
	NodeFail    NodeStatus = "fail"
)

func (s NodeStatus) Valid() bool {
	switch s {
	case NodeIdle, NodeRun, NodeRunning, NodeRan, NodeFail:
		return true
	}
	return false
}

// EdgeStatus is the latched-readiness status of an edge.
type EdgeStatus string

const (
	EdgeIdle  EdgeStatus = ""
	EdgeToRun EdgeStatus = "to_run"
)

func (s EdgeStatus) Valid() bool {
	return s == EdgeIdle || s == EdgeToRun
}

// EdgeType determines how a target reacts to its incoming edges latching.
type EdgeType string

const (
	Blocking    EdgeType = "blocking"
	NonBlocking EdgeType = "non-blocking"
)

func (t EdgeType) Valid() bool {
	return t == Blocking || t == NonBlocking
}

// Node represents one shell command in the graph.
type Node struct {
	ID     string
	Label  string
	Status NodeStatus
	Log    string
	X      string
	Y      string
}

// Edge represents a directed dependency from Source to Target.
type Edge struct {
	ID       string
	Source   string
	Target   string
	Status   EdgeStatus
	EdgeType EdgeType
}

// Graph is the workspace's directed graph plus its graph-level attributes.
// It has no internal locking: the owning worker is the only writer, and
// reads are only safe from that same goroutine or over a Snapshot copy.
type Graph struct {
	Wrapper string

	nodes map[string]*Node
	edges map[string]*Edge

	// out/in index edge ids by node id, preserving insertion order so that
	// iteration is deterministic (matters for event ordering in tests).
	out map[string][]string
	in  map[string][]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
		out:   make(map[string][]string),
		in:    make(map[string][]string),
	}
}

// AddNode inserts n, which must have a unique, non-empty id.
func (g *Graph) AddNode(n *Node) error {
	if n.ID == "" {
		return errors.InvalidInput("id", "node id is required")
	}
	if _, exists := g.nodes[n.ID]; exists {
		return errors.AlreadyExists("node", n.ID)
	}
	g.nodes[n.ID] = n
	g.out[n.ID] = nil
	g.in[n.ID] = nil
	return nil
}

// RemoveNode deletes a node and every edge incident to it.
func (g *Graph) RemoveNode(id string) error {
	if _, ok := g.nodes[id]; !ok {
		return errors.NotFound("node", id)
	}
	for _, edgeID := range append([]string(nil), g.out[id]...) {
		g.removeEdgeID(edgeID)
	}
	for _, edgeID := range append([]string(nil), g.in[id]...) {
		g.removeEdgeID(edgeID)
	}
	delete(g.nodes, id)
	delete(g.out, id)
	delete(g.in, id)
	return nil
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// MustNode panics if the node does not exist; for internal invariant-holding
// call sites only, never on a path reachable from untrusted input.
func (g *Graph) MustNode(id string) *Node {
	n, ok := g.nodes[id]
	if !ok {
		panic("graphmodel: node " + id + " does not exist")
	}
	return n
}

// Nodes returns all nodes, ordered by id for determinism.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddEdge inserts e after validating both endpoints exist (invariant 1).
func (g *Graph) AddEdge(e *Edge) error {
	if e.ID == "" {
		return errors.InvalidInput("id", "edge id is required")
	}
	if _, exists := g.edges[e.ID]; exists {
		return errors.AlreadyExists("edge", e.ID)
	}
	if _, ok := g.nodes[e.Source]; !ok {
		return errors.NotFound("node", e.Source)
	}
	if _, ok := g.nodes[e.Target]; !ok {
		return errors.NotFound("node", e.Target)
	}
	if e.EdgeType == "" {
		e.EdgeType = Blocking
	}
	g.edges[e.ID] = e
	g.out[e.Source] = append(g.out[e.Source], e.ID)
	g.in[e.Target] = append(g.in[e.Target], e.ID)
	return nil
}

// RemoveEdge deletes an edge by id.
func (g *Graph) RemoveEdge(id string) error {
	if _, ok := g.edges[id]; !ok {
		return errors.NotFound("edge", id)
	}
	g.removeEdgeID(id)
	return nil
}

// RemoveEdgeByEndpoints deletes the first edge found between source and
// target, regardless of edge id.
func (g *Graph) RemoveEdgeByEndpoints(source, target string) error {
	for _, id := range g.out[source] {
		if e := g.edges[id]; e != nil && e.Target == target {
			g.removeEdgeID(id)
			return nil
		}
	}
	return errors.NotFound("edge", source+"->"+target)
}

func (g *Graph) removeEdgeID(id string) {
	e, ok := g.edges[id]
	if !ok {
		return
	}
	delete(g.edges, id)
	g.out[e.Source] = removeString(g.out[e.Source], id)
	g.in[e.Target] = removeString(g.in[e.Target], id)
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// Edge looks up an edge by id.
func (g *Graph) Edge(id string) (*Edge, bool) {
	e, ok := g.edges[id]
	return e, ok
}

// Edges returns all edges, ordered by id for determinism.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Predecessors returns the edges whose target is nodeID, edge-id ordered.
func (g *Graph) Predecessors(nodeID string) []*Edge {
	ids := g.in[nodeID]
	out := make([]*Edge, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.edges[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Successors returns the edges whose source is nodeID, edge-id ordered.
func (g *Graph) Successors(nodeID string) []*Edge {
	ids := g.out[nodeID]
	out := make([]*Edge, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.edges[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// InducedBlockingPredecessors returns the blocking edges into nodeID whose
// source is also a member of within. Edges leaving within are invisible to
// readiness evaluation (§4.3.1).
func (g *Graph) InducedBlockingPredecessors(nodeID string, within map[string]bool) []*Edge {
	var out []*Edge
	for _, e := range g.Predecessors(nodeID) {
		if e.EdgeType == Blocking && within[e.Source] {
			out = append(out, e)
		}
	}
	return out
}

// InducedNonBlockingPredecessors mirrors InducedBlockingPredecessors for
// non-blocking edges.
func (g *Graph) InducedNonBlockingPredecessors(nodeID string, within map[string]bool) []*Edge {
	var out []*Edge
	for _, e := range g.Predecessors(nodeID) {
		if e.EdgeType == NonBlocking && within[e.Source] {
			out = append(out, e)
		}
	}
	return out
}

// ZeroIndegreeRoots returns the nodes of `within` that have no incoming
// blocking edge whose source is also in `within` — the roots of the
// induced blocking subgraph used by the run controller (§4.4).
func (g *Graph) ZeroIndegreeRoots(within map[string]bool) []string {
	var roots []string
	ids := make([]string, 0, len(within))
	for id := range within {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if len(g.InducedBlockingPredecessors(id, within)) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// HasBlockingCycle reports whether the blocking-edge subgraph induced by
// `within` contains a cycle (invariant 5 / §4.4 rejection check), via
// Kahn's algorithm.
func (g *Graph) HasBlockingCycle(within map[string]bool) bool {
	indeg := make(map[string]int, len(within))
	for id := range within {
		indeg[id] = len(g.InducedBlockingPredecessors(id, within))
	}

	queue := make([]string, 0, len(within))
	for id, d := range indeg {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++

		next := make([]string, 0)
		for _, e := range g.Successors(id) {
			if e.EdgeType != Blocking || !within[e.Target] {
				continue
			}
			indeg[e.Target]--
			if indeg[e.Target] == 0 {
				next = append(next, e.Target)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
	}

	return visited != len(within)
}
