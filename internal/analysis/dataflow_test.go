package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codescope/pkg/types"
)

const flowSource = `package app

var items []int

func calc(a, b int) int {
	sum := a + b
	total := sum
	for _, v := range items {
		total += v
	}
	return total
}

func other(x int) int {
	y := x
	return y
}
`

func TestDataFlow(t *testing.T) {
	g := DataFlow(parseOne(t, "calc.go", flowSource), "calc")
	assert.Equal(t, types.GraphDataFlow, g.Kind)

	var names []string
	for _, n := range g.Nodes {
		names = append(names, n.Name)
	}
	assert.ElementsMatch(t, []string{"calc.a", "calc.b", "calc.sum", "calc.total", "calc.v"}, names)

	id := func(v string) string { return "calc.go#calc." + v }
	assert.ElementsMatch(t, [][2]string{
		{id("a"), id("sum")},
		{id("b"), id("sum")},
		{id("sum"), id("total")},
		{id("total"), id("total")},
		{id("v"), id("total")},
	}, edgesOf(g, types.EdgeFlowsTo))

	total, ok := g.Node(id("total"))
	require.True(t, ok)
	assert.Equal(t, "define", total.Kind)
	assert.Equal(t, 7, total.Line)
}

func TestDataFlowAllFunctions(t *testing.T) {
	g := DataFlow(parseOne(t, "calc.go", flowSource), "")
	assert.True(t, g.HasNode("calc.go#other.y"))
	assert.True(t, g.HasEdge("calc.go#other.x", "calc.go#other.y"))
	assert.False(t, g.HasEdge("calc.go#calc.a", "calc.go#other.y"), "flow stays inside one function")
}

func TestDataFlowPython(t *testing.T) {
	src := "def scale(values, factor):\n    out = []\n    for v in values:\n        w = v * factor\n    return out\n"
	g := DataFlow(parseOne(t, "scale.py", src), "scale")
	assert.True(t, g.HasEdge("scale.py#scale.values", "scale.py#scale.v"))
	assert.True(t, g.HasEdge("scale.py#scale.v", "scale.py#scale.w"))
	assert.True(t, g.HasEdge("scale.py#scale.factor", "scale.py#scale.w"))
}

func TestDataFlowRust(t *testing.T) {
	src := "fn scale(values: &[i32], factor: i32) -> i32 {\n    let mut out = 0;\n    for v in values {\n        let w = v * factor;\n        out += w;\n    }\n    out\n}\n"
	g := DataFlow(parseOne(t, "src/scale.rs", src), "scale")
	id := func(v string) string { return "src/scale.rs#scale." + v }
	for _, v := range []string{"values", "factor", "out", "v", "w"} {
		assert.True(t, g.HasNode(id(v)), v)
	}
	assert.True(t, g.HasEdge(id("values"), id("v")))
	assert.True(t, g.HasEdge(id("v"), id("w")))
	assert.True(t, g.HasEdge(id("factor"), id("w")))
	assert.True(t, g.HasEdge(id("w"), id("out")))
}

func TestDataFlowUnknownFunction(t *testing.T) {
	g := DataFlow(parseOne(t, "calc.go", flowSource), "missing")
	assert.Empty(t, g.Nodes)
	assert.Empty(t, g.Edges)
}
