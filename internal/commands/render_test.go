package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codescope/internal/daemon"
	"github.com/dshills/codescope/internal/indexer"
	"github.com/dshills/codescope/pkg/types"
)

func render(t *testing.T, format string, v any) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, format, v))
	return buf.String()
}

func TestRenderJSON(t *testing.T) {
	matches := []types.MatchResult{{File: "a.go", Line: 3, Column: 2, Text: "foo()", Score: 0.5, Engine: types.EngineText}}
	out := render(t, FormatJSON, matches)

	var back []types.MatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &back))
	assert.Equal(t, matches[0].File, back[0].File)
	assert.Contains(t, out, "\n  ")
}

func TestRenderTextMatches(t *testing.T) {
	out := render(t, FormatText, []types.MatchResult{
		{File: "a.go", Line: 3, Column: 2, Text: "\tfoo()", Score: 1, Engine: types.EngineText},
		{File: "b.go", Line: 9, Column: 1, Text: "bar", Score: 1, Engine: types.EngineGit, LineType: "added"},
	})
	assert.Contains(t, out, "a.go:3:2 [text 1.000]\n    foo()\n")
	assert.Contains(t, out, "b.go:9:1 + [git 1.000]")

	assert.Equal(t, "no matches\n", render(t, FormatText, []types.MatchResult{}))
}

func TestRenderTextGraph(t *testing.T) {
	g := types.NewGraph(types.GraphCall)
	g.AddNode(types.Node{ID: "a.go#foo", Name: "foo", File: "a.go", Kind: "function", Line: 3})
	g.AddNode(types.Node{ID: "external#fmt.Println", Name: "fmt.Println", Kind: "external", External: true})
	g.AddEdge(types.Edge{From: "a.go#foo", To: "external#fmt.Println", Kind: types.EdgeUnresolvedCall, Line: 4})
	g.Cycles = [][]string{{"a.go", "b.go"}}

	out := render(t, FormatText, g)
	assert.Contains(t, out, "call graph (2 nodes, 1 edges)")
	assert.Contains(t, out, "function foo a.go:3")
	assert.Contains(t, out, "a.go#foo -? external#fmt.Println :4")
	assert.Contains(t, out, "cycle: a.go -> b.go")
}

func TestRenderTextOthers(t *testing.T) {
	out := render(t, FormatText, []types.Finding{{
		Rule: "too-many-parameters", File: "w.go", Symbol: "wide", Span: types.Span{StartLine: 3},
		Severity: types.SeverityWarning, Message: "wide has 6 parameters",
	}})
	assert.Equal(t, "w.go:3 warning too-many-parameters wide: wide has 6 parameters\n", out)

	out = render(t, FormatText, []types.Signature{{File: "api.go", Line: 6, Text: "func Get(id string) error"}})
	assert.Equal(t, "api.go:6 func Get(id string) error\n", out)

	out = render(t, FormatText, &types.BlameRecord{
		File: "a.go", Line: 4, Commit: "4e1243bd22c66e76c2ba9eddc1f91394e57f9f83",
		Author: "Ada", AuthorTime: time.Unix(1700000000, 0).UTC(), Summary: "s", Content: "x",
	})
	assert.Contains(t, out, "commit  4e1243bd22c6\n")
	assert.Contains(t, out, "date    2023-11-14 22:13:20 +0000\n")

	out = render(t, FormatText, &indexer.Statistics{FilesIndexed: 2, SymbolsExtracted: 5, Generation: 3})
	assert.Contains(t, out, "indexed generation 3")
	assert.Contains(t, out, "2 indexed, 0 skipped")

	out = render(t, FormatText, daemon.Status{State: daemon.Serving, Root: "/r", Files: 4, Languages: []string{"go", "python"}})
	assert.Contains(t, out, "daemon serving")
	assert.Contains(t, out, "languages   go, python")
}

func TestRenderFallsBackToJSON(t *testing.T) {
	out := render(t, FormatText, map[string]int{"n": 1})
	assert.JSONEq(t, `{"n":1}`, out)
}

func TestRenderError(t *testing.T) {
	err := fmt.Errorf("%w: bad regex", types.ErrInvalidPattern)

	var buf bytes.Buffer
	require.NoError(t, RenderError(&buf, FormatJSON, err))
	assert.JSONEq(t, `{"error":{"kind":"InvalidPattern","message":"invalid pattern: bad regex"}}`, buf.String())

	buf.Reset()
	require.NoError(t, RenderError(&buf, FormatText, err))
	assert.Equal(t, "error: InvalidPattern: invalid pattern: bad regex\n", buf.String())
}

func TestValidFormat(t *testing.T) {
	assert.True(t, ValidFormat("json"))
	assert.True(t, ValidFormat("text"))
	assert.False(t, ValidFormat("yaml"))
}
