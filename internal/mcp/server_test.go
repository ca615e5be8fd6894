package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codescope/internal/commands"
	"github.com/dshills/codescope/internal/config"
	"github.com/dshills/codescope/internal/embedder"
	"github.com/dshills/codescope/pkg/types"
)

var projectFiles = map[string]string{
	"a.go":        "package demo\n\nfunc foo() int {\n\treturn bar(1)\n}\n",
	"b.go":        "package demo\n\nfunc bar(n int) int {\n\treturn n + 1\n}\n",
	"lib/wide.go": "package lib\n\nfunc Wide(a, b, c, d, e, f int) int {\n\treturn a + b + c + d + e + f\n}\n",
}

// noGit fails every git call
type noGit struct{}

func (noGit) Blame(context.Context, string, string, int) ([]byte, error) {
	return nil, errors.Join(types.ErrGitBackend, errors.New("not a git repository"))
}

func (noGit) Diff(context.Context, string, string) ([]byte, error) {
	return nil, errors.Join(types.ErrGitBackend, errors.New("not a git repository"))
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	for rel, content := range projectFiles {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	app, err := commands.New(context.Background(), commands.Options{
		Config:       config.Default(),
		Logger:       config.Discard(),
		Embedder:     embedder.NewLocalProvider(),
		Git:          noGit{},
		CacheQueries: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	s, err := NewServer(app, config.Discard())
	require.NoError(t, err)
	return s, root
}

type handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func request(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

// callJSON invokes h and decodes its text result into out
func callJSON(t *testing.T, h handler, args map[string]interface{}, out any) {
	t.Helper()
	res, err := h(context.Background(), request(args))
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(text.Text), out))
}

func callErr(t *testing.T, h handler, args map[string]interface{}) *MCPError {
	t.Helper()
	_, err := h(context.Background(), request(args))
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	return mcpErr
}

func TestServerRegistersTools(t *testing.T) {
	s, _ := newTestServer(t)
	msg := s.mcp.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	var listed struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &listed))
	var tools []string
	for _, tool := range listed.Result.Tools {
		tools = append(tools, tool.Name)
	}
	for _, name := range []string{
		"index_codebase", "search_code", "query_code", "find_similar", "search_diff", "blame",
		"call_graph", "dependency_graph", "data_flow", "detect_smells", "extract_signatures", "get_status",
	} {
		assert.Contains(t, tools, name)
	}
}

func TestIndexCodebase(t *testing.T) {
	s, root := newTestServer(t)

	var status map[string]interface{}
	callJSON(t, s.handleGetStatus, map[string]interface{}{"path": root}, &status)
	assert.Equal(t, false, status["indexed"])

	var resp map[string]interface{}
	callJSON(t, s.handleIndexCodebase, map[string]interface{}{"path": root}, &resp)
	assert.Equal(t, true, resp["indexed"])
	assert.EqualValues(t, 3, resp["files_indexed"])
	assert.EqualValues(t, 1, resp["generation"])

	// a second call applies changes only
	require.NoError(t, os.Remove(filepath.Join(root, "lib", "wide.go")))
	callJSON(t, s.handleIndexCodebase, map[string]interface{}{"path": root}, &resp)
	assert.EqualValues(t, 1, resp["files_removed"])
	assert.EqualValues(t, 2, resp["generation"])

	callJSON(t, s.handleIndexCodebase, map[string]interface{}{"path": root, "force_reindex": true}, &resp)
	assert.EqualValues(t, 2, resp["files_indexed"])
	assert.EqualValues(t, 1, resp["generation"])

	callJSON(t, s.handleGetStatus, map[string]interface{}{"path": root}, &status)
	assert.Equal(t, true, status["indexed"])
	stats := status["statistics"].(map[string]interface{})
	assert.EqualValues(t, 2, stats["files_count"])
}

func TestSearchCode(t *testing.T) {
	s, root := newTestServer(t)

	var matches []types.MatchResult
	callJSON(t, s.handleSearchCode, map[string]interface{}{"path": root, "query": "foo", "search_mode": "symbol"}, &matches)
	require.NotEmpty(t, matches)
	assert.Equal(t, "foo", matches[0].Symbol.Name)

	callJSON(t, s.handleSearchCode, map[string]interface{}{"path": root, "query": "return", "search_mode": "text", "limit": 2}, &matches)
	assert.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, types.EngineText, m.Engine)
	}

	callJSON(t, s.handleSearchCode, map[string]interface{}{"path": root, "query": "bar"}, &matches)
	assert.NotEmpty(t, matches)

	callJSON(t, s.handleSearchCode, map[string]interface{}{
		"path": root, "query": "Wide", "search_mode": "symbol", "symbol_types": []interface{}{"struct"},
	}, &matches)
	assert.Empty(t, matches)
}

func TestSearchCodeValidation(t *testing.T) {
	s, root := newTestServer(t)

	assert.Equal(t, ErrorCodeEmptyQuery, callErr(t, s.handleSearchCode, map[string]interface{}{"path": root}).Code)
	assert.Equal(t, ErrorCodeInvalidParams, callErr(t, s.handleSearchCode, map[string]interface{}{"query": "x"}).Code)
	assert.Equal(t, ErrorCodeInvalidParams,
		callErr(t, s.handleSearchCode, map[string]interface{}{"path": root, "query": "x", "limit": 500}).Code)
	assert.Equal(t, ErrorCodeInvalidParams,
		callErr(t, s.handleSearchCode, map[string]interface{}{"path": root, "query": "x", "search_mode": "keyword"}).Code)
	assert.Equal(t, ErrorCodeInvalidParams,
		callErr(t, s.handleSearchCode, map[string]interface{}{"path": "relative/dir", "query": "x"}).Code)
	assert.Equal(t, ErrorCodeProjectNotFound,
		callErr(t, s.handleSearchCode, map[string]interface{}{"path": filepath.Join(root, "missing"), "query": "x"}).Code)

	_, err := s.handleSearchCode(context.Background(), mcp.CallToolRequest{})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestQueryCode(t *testing.T) {
	s, root := newTestServer(t)

	var matches []types.MatchResult
	callJSON(t, s.handleQueryCode, map[string]interface{}{"path": root, "query": "symbol:bar AND file:b.go"}, &matches)
	require.NotEmpty(t, matches)
	assert.Equal(t, "b.go", matches[0].File)

	e := callErr(t, s.handleQueryCode, map[string]interface{}{"path": root, "query": "symbol:bar AND ("})
	assert.Equal(t, ErrorCodeInvalidParams, e.Code)
	assert.Equal(t, "QuerySyntaxError", e.Data.(map[string]interface{})["kind"])
}

func TestStructuralTools(t *testing.T) {
	s, root := newTestServer(t)

	var g types.Graph
	callJSON(t, s.handleCallGraph, map[string]interface{}{"path": root}, &g)
	assert.True(t, g.HasEdge("a.go#foo", "b.go#bar"))

	callJSON(t, s.handleDependencyGraph, map[string]interface{}{"path": root}, &g)
	assert.Equal(t, types.GraphDependency, g.Kind)

	callJSON(t, s.handleDataFlow, map[string]interface{}{"path": root, "file": "b.go", "function": "bar"}, &g)
	assert.Equal(t, types.GraphDataFlow, g.Kind)

	e := callErr(t, s.handleDataFlow, map[string]interface{}{"path": root, "file": "b.go", "function": "nope"})
	assert.Equal(t, ErrorCodeNotFound, e.Code)
	assert.Equal(t, ErrorCodeInvalidParams, callErr(t, s.handleDataFlow, map[string]interface{}{"path": root}).Code)

	var findings []types.Finding
	callJSON(t, s.handleDetectSmells, map[string]interface{}{"path": root}, &findings)
	require.Len(t, findings, 1)
	assert.Equal(t, "lib/wide.go", findings[0].File)

	callJSON(t, s.handleDetectSmells, map[string]interface{}{"path": root, "file": "a.go"}, &findings)
	assert.Empty(t, findings)

	var sigs []types.Signature
	callJSON(t, s.handleExtractSignatures, map[string]interface{}{"path": root, "file": filepath.Join(root, "lib")}, &sigs)
	require.Len(t, sigs, 1)
	assert.Equal(t, "Wide", sigs[0].Name)

	callJSON(t, s.handleExtractSignatures, map[string]interface{}{"path": root, "file": "b.go", "include_private": true}, &sigs)
	require.Len(t, sigs, 1)
	assert.Equal(t, "bar", sigs[0].Name)

	e = callErr(t, s.handleExtractSignatures, map[string]interface{}{"path": root, "file": "../outside.go"})
	assert.Equal(t, ErrorCodeInvalidParams, e.Code)
}

func TestFindSimilar(t *testing.T) {
	s, root := newTestServer(t)

	var matches []types.MatchResult
	callJSON(t, s.handleFindSimilar, map[string]interface{}{"path": root, "query": "bar", "limit": 3}, &matches)
	assert.LessOrEqual(t, len(matches), 3)
}

func TestGitToolsReportBackendErrors(t *testing.T) {
	s, root := newTestServer(t)

	e := callErr(t, s.handleBlame, map[string]interface{}{"path": root, "file": "a.go", "line": 4})
	assert.Equal(t, ErrorCodeUnavailable, e.Code)
	assert.Equal(t, "GitBackendError", e.Data.(map[string]interface{})["kind"])

	e = callErr(t, s.handleSearchDiff, map[string]interface{}{"path": root, "pattern": "foo"})
	assert.Equal(t, ErrorCodeUnavailable, e.Code)

	assert.Equal(t, ErrorCodeInvalidParams, callErr(t, s.handleSearchDiff, map[string]interface{}{"path": root}).Code)
	assert.Equal(t, ErrorCodeInvalidParams, callErr(t, s.handleBlame, map[string]interface{}{"path": root, "file": "a.go"}).Code)
}

func TestConcurrentFirstUseBuildsOnce(t *testing.T) {
	s, root := newTestServer(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.handleCallGraph(context.Background(), request(map[string]interface{}{"path": root}))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	state, ok := s.indexed(root)
	require.True(t, ok)
	assert.Equal(t, uint64(1), state.Generation())
}

func TestGetArgumentHelpers(t *testing.T) {
	args := map[string]interface{}{"b": true, "f": float64(3), "i": 4, "s": "x", "l": []interface{}{"a", 1, "b"}}
	assert.True(t, getBoolDefault(args, "b", false))
	assert.True(t, getBoolDefault(args, "missing", true))
	assert.Equal(t, 3, getIntDefault(args, "f", 0))
	assert.Equal(t, 4, getIntDefault(args, "i", 0))
	assert.Equal(t, 9, getIntDefault(args, "s", 9))
	assert.Equal(t, "x", getStringDefault(args, "s", ""))
	assert.Equal(t, []string{"a", "b"}, getStringsDefault(args, "l"))
	assert.Nil(t, getStringsDefault(args, "missing"))
}
