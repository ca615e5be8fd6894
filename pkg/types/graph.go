package types

import "sort"

// GraphKind identifies what a graph describes
type GraphKind string

const (
	GraphCall       GraphKind = "call"
	GraphDataFlow   GraphKind = "data-flow"
	GraphDependency GraphKind = "dependency"
)

// EdgeKind types a graph edge
type EdgeKind string

const (
	EdgeCalls          EdgeKind = "calls"
	EdgeUnresolvedCall EdgeKind = "unresolved-call"
	EdgeDependsOn      EdgeKind = "depends-on"
	EdgeFlowsTo        EdgeKind = "flows-to"
)

// Node is a graph vertex. ID is derived from (file, name) so rebuilds are idempotent.
type Node struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	File     string `json:"file,omitempty"`
	Kind     string `json:"kind"`
	Line     int    `json:"line,omitempty"`
	External bool   `json:"external,omitempty"`
}

// Edge is a directed, typed graph edge
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
	Line int      `json:"line,omitempty"`
}

// Graph is a directed graph artifact produced by a structural analyzer
type Graph struct {
	Kind   GraphKind  `json:"kind"`
	Nodes  []Node     `json:"nodes"`
	Edges  []Edge     `json:"edges"`
	Cycles [][]string `json:"cycles,omitempty"`

	index map[string]int
	edges map[Edge]struct{}
}

// NewGraph creates an empty graph of the given kind
func NewGraph(kind GraphKind) *Graph {
	return &Graph{
		Kind:  kind,
		Nodes: []Node{},
		Edges: []Edge{},
		index: make(map[string]int),
		edges: make(map[Edge]struct{}),
	}
}

// NodeID derives a deterministic node identity from file and name
func NodeID(file, name string) string {
	if file == "" {
		return name
	}
	return file + "#" + name
}

func (g *Graph) ensureIndex() {
	if g.index != nil {
		return
	}
	g.index = make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		g.index[n.ID] = i
	}
	g.edges = make(map[Edge]struct{}, len(g.Edges))
	for _, e := range g.Edges {
		g.edges[e] = struct{}{}
	}
}

// AddNode inserts a node unless one with the same ID exists
func (g *Graph) AddNode(n Node) {
	g.ensureIndex()
	if _, ok := g.index[n.ID]; ok {
		return
	}
	g.index[n.ID] = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
}

// HasNode reports whether a node with the given ID exists
func (g *Graph) HasNode(id string) bool {
	g.ensureIndex()
	_, ok := g.index[id]
	return ok
}

// Node returns the node with the given ID
func (g *Graph) Node(id string) (Node, bool) {
	g.ensureIndex()
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// AddEdge inserts an edge; duplicates (same from, to, kind, line) are ignored
func (g *Graph) AddEdge(e Edge) {
	g.ensureIndex()
	if _, ok := g.edges[e]; ok {
		return
	}
	g.edges[e] = struct{}{}
	g.Edges = append(g.Edges, e)
}

// HasEdge reports whether any edge from -> to exists, regardless of kind or line
func (g *Graph) HasEdge(from, to string) bool {
	for _, e := range g.Edges {
		if e.From == from && e.To == to {
			return true
		}
	}
	return false
}

// Successors returns the sorted distinct targets of edges leaving id
func (g *Graph) Successors(id string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range g.Edges {
		if e.From != id {
			continue
		}
		if _, ok := seen[e.To]; ok {
			continue
		}
		seen[e.To] = struct{}{}
		out = append(out, e.To)
	}
	sort.Strings(out)
	return out
}

// Sort orders nodes and edges deterministically
func (g *Graph) Sort() {
	g.ensureIndex()
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	for i, n := range g.Nodes {
		g.index[n.ID] = i
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		a, b := g.Edges[i], g.Edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Line < b.Line
	})
}
