package analysis

import "github.com/dshills/codescope/pkg/types"

// DataFlow builds the intra-procedural data flow graph of one parsed file.
// Each variable binding becomes a node named func.var; a flows-to edge runs
// from every local variable read on the right-hand side into the variable
// assigned. Reads of names that are not bound in the function (globals,
// packages) are ignored. When function is non-empty only the function with
// that name or qualified name is analyzed.
func DataFlow(parse *types.ParseResult, function string) *types.Graph {
	g := types.NewGraph(types.GraphDataFlow)
	for _, fn := range parse.Functions {
		qn := fn.QualifiedName()
		if function != "" && function != qn && function != fn.Name {
			continue
		}
		id := func(v string) string { return types.NodeID(parse.File, qn+"."+v) }

		local := make(map[string]bool, len(fn.Bindings))
		for _, b := range fn.Bindings {
			local[b.Name] = true
			g.AddNode(types.Node{ID: id(b.Name), Name: qn + "." + b.Name, File: parse.File, Kind: b.Kind, Line: b.Line})
		}
		for _, b := range fn.Bindings {
			for _, src := range b.Sources {
				if local[src] {
					g.AddEdge(types.Edge{From: id(src), To: id(b.Name), Kind: types.EdgeFlowsTo, Line: b.Line})
				}
			}
		}
	}
	g.Sort()
	return g
}
