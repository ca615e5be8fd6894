package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codescope/pkg/types"
)

var goCallCorpus = map[string]string{
	"go.mod": "module example.com/app\n",
	"a.go": `package app

import "fmt"

func foo(n int) {
	bar()
	fmt.Println("x")
	if n > 0 {
		foo(n - 1)
	}
}
`,
	"b.go": `package app

import "example.com/app/util"

func bar() {
	util.Do()
}

type Server struct{}

func (s *Server) Run() { s.run() }

func (s *Server) run() {}
`,
	"util/do.go": `package util

func Do() {}
`,
	"other/do.go": `package other

func Do() {}

func bar() {}
`,
}

func TestCallGraphResolvesCalls(t *testing.T) {
	g, err := CallGraph(context.Background(), corpus(t, goCallCorpus))
	require.NoError(t, err)
	assert.Equal(t, types.GraphCall, g.Kind)

	calls := edgesOf(g, types.EdgeCalls)
	assert.Contains(t, calls, [2]string{"a.go#foo", "b.go#bar"})
	assert.Contains(t, calls, [2]string{"a.go#foo", "a.go#foo"}, "recursion keeps a self edge")
	assert.Contains(t, calls, [2]string{"b.go#bar", "util/do.go#Do"})
	assert.Contains(t, calls, [2]string{"b.go#Server.Run", "b.go#Server.run"})

	unresolved := edgesOf(g, types.EdgeUnresolvedCall)
	assert.Equal(t, [][2]string{{"a.go#foo", "external#fmt.Println"}}, unresolved)

	ext, ok := g.Node("external#fmt.Println")
	require.True(t, ok)
	assert.True(t, ext.External)
	assert.Equal(t, "fmt.Println", ext.Name)

	run, ok := g.Node("b.go#Server.Run")
	require.True(t, ok)
	assert.Equal(t, "method", run.Kind)
	assert.Equal(t, 11, run.Line)

	for _, e := range g.Edges {
		if e.From == e.To {
			assert.Equal(t, "a.go#foo", e.From, "only recursive calls produce self edges")
		}
	}
}

func TestCallGraphEndToEnd(t *testing.T) {
	src := corpus(t, map[string]string{
		"a.py": "from b import bar\n\n\ndef foo():\n    bar()\n",
		"b.py": "def bar():\n    pass\n",
	})
	g, err := CallGraph(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, g.HasEdge("a.py#foo", "b.py#bar"))

	sigs := ExtractSignatures(src.Parse("b.py"), false)
	require.Len(t, sigs, 1)
	assert.Equal(t, "bar", sigs[0].Name)
	assert.Zero(t, sigs[0].Unresolved)
}

var rustCallCorpus = map[string]string{
	"src/a.rs": "pub fn foo() -> i32 {\n    bar(1)\n}\n",
	"src/b.rs": "pub fn bar(n: i32) -> i32 {\n    n + 1\n}\n",
	"src/c.rs": "use crate::b;\n\npub fn baz() -> i32 {\n    b::bar(2) + std::cmp::max(1, 2)\n}\n",
}

func TestCallGraphRust(t *testing.T) {
	src := corpus(t, rustCallCorpus)
	g, err := CallGraph(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, g.HasEdge("src/a.rs#foo", "src/b.rs#bar"))
	assert.True(t, g.HasEdge("src/c.rs#baz", "src/b.rs#bar"), "module-qualified call through use")
	assert.Contains(t, edgesOf(g, types.EdgeUnresolvedCall), [2]string{"src/c.rs#baz", "external#max"})

	sigs := ExtractSignatures(src.Parse("src/b.rs"), false)
	require.Len(t, sigs, 1)
	assert.Equal(t, "bar", sigs[0].Name)
	assert.Equal(t, []types.Param{{Name: "n", Type: "i32"}}, sigs[0].Params)
	assert.Equal(t, []string{"i32"}, sigs[0].Results)
	assert.Zero(t, sigs[0].Unresolved)
}

func TestCallGraphAmbiguity(t *testing.T) {
	g, err := CallGraph(context.Background(), corpus(t, map[string]string{
		"c.py": "def helper():\n    pass\n\n\ndef local():\n    helper()\n",
		"d.py": "def helper():\n    pass\n",
		"e.py": "def caller():\n    helper()\n",
	}))
	require.NoError(t, err)

	assert.Contains(t, edgesOf(g, types.EdgeCalls), [2]string{"c.py#local", "c.py#helper"}, "same file wins")
	assert.Contains(t, edgesOf(g, types.EdgeUnresolvedCall), [2]string{"e.py#caller", "external#helper"})
	assert.False(t, g.HasEdge("e.py#caller", "c.py#helper"))
	assert.False(t, g.HasEdge("e.py#caller", "d.py#helper"))
}

func TestCallGraphGoPackageScope(t *testing.T) {
	g, err := CallGraph(context.Background(), corpus(t, goCallCorpus))
	require.NoError(t, err)
	// other/do.go defines bar too, but a.go cannot call into package other
	assert.False(t, g.HasEdge("a.go#foo", "other/do.go#bar"))
}

func TestCallGraphDeterministic(t *testing.T) {
	src := corpus(t, goCallCorpus)
	g1, err := CallGraph(context.Background(), src)
	require.NoError(t, err)
	g2, err := CallGraph(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, g1.Nodes, g2.Nodes)
	assert.Equal(t, g1.Edges, g2.Edges)
}

func TestCallGraphCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CallGraph(ctx, corpus(t, goCallCorpus))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImportBase(t *testing.T) {
	assert.Equal(t, "yaml", importBase("gopkg.in/yaml", "go"))
	assert.Equal(t, "sqlite", importBase("modernc.org/sqlite", "go"))
	assert.Equal(t, "lru", importBase("github.com/hashicorp/golang-lru/v2/lru", "go"))
	assert.Equal(t, "semver", importBase("github.com/Masterminds/semver/v3", "go"))
	assert.Equal(t, "path", importBase("os.path", "python"))
	assert.Equal(t, "b", importBase("crate::b", "rust"))
}
