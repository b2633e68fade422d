// Package storage is the graph store's persistence driver: a node-link
// JSON codec plus write-temp-then-rename atomic save. It is the sole
// crash-safety mechanism (§9): no file locking is needed because the
// workspace worker is the only writer.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/graflow/graflow/internal/domain/graphmodel"
)

// nodeLink is the on-disk/transport representation of a graph.
type nodeLink struct {
	Wrapper string         `json:"wrapper"`
	Nodes   []nodeLinkNode `json:"nodes"`
	Edges   []nodeLinkEdge `json:"edges"`
}

type nodeLinkNode struct {
	ID     string                `json:"id"`
	Label  string                `json:"label"`
	Status graphmodel.NodeStatus `json:"status"`
	Log    string                `json:"log"`
	X      string                `json:"x"`
	Y      string                `json:"y"`
}

type nodeLinkEdge struct {
	ID     string                `json:"id"`
	Source string                `json:"source"`
	Target string                `json:"target"`
	Status graphmodel.EdgeStatus `json:"status"`
	// EdgeType is a pointer so the JSON decoder can distinguish an absent
	// key (backward-compat: defaults to blocking) from an explicit value.
	EdgeType *graphmodel.EdgeType `json:"edge_type,omitempty"`
}

// Encode serializes g to its node-link JSON transport/persistence form.
func Encode(g *graphmodel.Graph) ([]byte, error) {
	doc := nodeLink{Wrapper: g.Wrapper}
	for _, n := range g.Nodes() {
		doc.Nodes = append(doc.Nodes, nodeLinkNode{
			ID: n.ID, Label: n.Label, Status: n.Status, Log: n.Log, X: n.X, Y: n.Y,
		})
	}
	for _, e := range g.Edges() {
		edgeType := e.EdgeType
		doc.Edges = append(doc.Edges, nodeLinkEdge{
			ID: e.ID, Source: e.Source, Target: e.Target, Status: e.Status, EdgeType: &edgeType,
		})
	}
	if doc.Nodes == nil {
		doc.Nodes = []nodeLinkNode{}
	}
	if doc.Edges == nil {
		doc.Edges = []nodeLinkEdge{}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses the node-link JSON form back into a graph. A missing
// edge_type on any edge defaults to blocking, per §6.3 backward
// compatibility.
func Decode(data []byte) (*graphmodel.Graph, error) {
	var doc nodeLink
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	g := graphmodel.New()
	g.Wrapper = doc.Wrapper

	for _, n := range doc.Nodes {
		if err := g.AddNode(&graphmodel.Node{
			ID: n.ID, Label: n.Label, Status: n.Status, Log: n.Log, X: n.X, Y: n.Y,
		}); err != nil {
			return nil, err
		}
	}
	for _, e := range doc.Edges {
		edgeType := graphmodel.Blocking
		if e.EdgeType != nil && *e.EdgeType != "" {
			edgeType = *e.EdgeType
		}
		if err := g.AddEdge(&graphmodel.Edge{
			ID: e.ID, Source: e.Source, Target: e.Target, Status: e.Status, EdgeType: edgeType,
		}); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Load reads and decodes the graph at path. A missing file yields a fresh
// empty graph rather than an error, so a brand-new workspace can start
// from nothing.
func Load(path string) (*graphmodel.Graph, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return graphmodel.New(), nil
	}
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Save writes g to path using write-temp-then-rename, the sole
// crash-safety mechanism for the graph file (§9 design notes).
func Save(g *graphmodel.Graph, path string) error {
	data, err := Encode(g)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
