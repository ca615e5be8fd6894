package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codescope/internal/commands"
	"github.com/dshills/codescope/internal/config"
	"github.com/dshills/codescope/internal/daemon"
	"github.com/dshills/codescope/internal/embedder"
	"github.com/dshills/codescope/internal/indexer"
	"github.com/dshills/codescope/pkg/types"
)

var corpus = map[string]string{
	"a.go": "package demo\n\nfunc foo() int {\n\treturn bar(1)\n}\n",
	"b.go": "package demo\n\n// Bar adds one\nfunc Bar(n int) int {\n\treturn n + 1\n}\n\nfunc bar(n int) int {\n\treturn Bar(n)\n}\n",
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, args ...string) result {
	t.Helper()
	t.Setenv(embedder.EnvProvider, "local")
	t.Setenv(config.EnvRoot, "")
	t.Setenv(config.EnvLogLevel, "error")
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), args, &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), "output: %s", s)
	return v
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestSearchPositionalPattern(t *testing.T) {
	root := writeTree(t, corpus)
	res := run(t, "--root", root, "search", "return bar")
	require.Equal(t, 0, res.code, res.stderr)

	matches := decode[[]types.MatchResult](t, res.stdout)
	require.Len(t, matches, 1)
	assert.Equal(t, "a.go", matches[0].File)
	assert.Equal(t, 4, matches[0].Line)
}

func TestSearchFlagsAndLimit(t *testing.T) {
	root := writeTree(t, corpus)
	res := run(t, "--root", root, "search", "--pattern", "RETURN", "-i", "-n", "2")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Len(t, decode[[]types.MatchResult](t, res.stdout), 2)

	res = run(t, "--root", root, "search", "--pattern", "x", "y")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "InvalidArgument", decode[errorBody](t, res.stderr).Error.Kind)
}

func TestSymbolSearchText(t *testing.T) {
	root := writeTree(t, corpus)
	res := run(t, "--root", root, "-o", "text", "search-symbol", "foo")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "a.go:3:")
	assert.Contains(t, res.stdout, "foo")
}

func TestPathFlagsAcceptAbsolutePaths(t *testing.T) {
	root := writeTree(t, corpus)
	res := run(t, "--root", root, "extract-signatures", "--path", filepath.Join(root, "b.go"))
	require.Equal(t, 0, res.code, res.stderr)

	sigs := decode[[]types.Signature](t, res.stdout)
	require.Len(t, sigs, 1)
	assert.Equal(t, "Bar", sigs[0].Name)

	res = run(t, "--root", root, "extract-signatures", "--path", "b.go", "--include-private")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Len(t, decode[[]types.Signature](t, res.stdout), 2)

	res = run(t, "--root", root, "extract-signatures", "--path", filepath.Dir(root))
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "InvalidArgument", decode[errorBody](t, res.stderr).Error.Kind)
}

func TestPathFlagsFollowWorkingDirectory(t *testing.T) {
	root := writeTree(t, map[string]string{
		"b.go":     corpus["b.go"],
		"sub/b.go": "package sub\n\n// Sub does nothing\nfunc Sub() {}\n",
	})
	t.Chdir(filepath.Join(root, "sub"))

	signatures := func(path string) []types.Signature {
		t.Helper()
		res := run(t, "--root", root, "extract-signatures", "--path", path)
		require.Equal(t, 0, res.code, res.stderr)
		return decode[[]types.Signature](t, res.stdout)
	}

	sigs := signatures("./b.go")
	require.Len(t, sigs, 1)
	assert.Equal(t, "Sub", sigs[0].Name)
	assert.Equal(t, "sub/b.go", sigs[0].File)

	sigs = signatures("../b.go")
	require.Len(t, sigs, 1)
	assert.Equal(t, "Bar", sigs[0].Name)

	// nothing at sub/sub/b.go, so the path is taken from the root
	sigs = signatures("sub/b.go")
	require.Len(t, sigs, 1)
	assert.Equal(t, "sub/b.go", sigs[0].File)
}

func TestCallGraph(t *testing.T) {
	root := writeTree(t, corpus)
	res := run(t, "--root", root, "call-graph")
	require.Equal(t, 0, res.code, res.stderr)

	g := decode[types.Graph](t, res.stdout)
	assert.Equal(t, types.GraphCall, g.Kind)
	assert.NotEmpty(t, g.Edges)
}

func TestIndexStatistics(t *testing.T) {
	root := writeTree(t, corpus)
	res := run(t, "--root", root, "index")
	require.Equal(t, 0, res.code, res.stderr)

	stats := decode[indexer.Statistics](t, res.stdout)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Equal(t, uint64(1), stats.Generation)
}

func TestQuery(t *testing.T) {
	root := writeTree(t, corpus)
	res := run(t, "--root", root, "query", "symbol:foo", "AND", "file:a.go")
	require.Equal(t, 0, res.code, res.stderr)
	matches := decode[[]types.MatchResult](t, res.stdout)
	require.NotEmpty(t, matches)
	assert.Equal(t, "a.go", matches[0].File)

	res = run(t, "--root", root, "-o", "text", "query", "--expr", "symbol:foo AND (")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "error: QuerySyntaxError:")
}

func TestSmellsFromConfigFile(t *testing.T) {
	files := map[string]string{
		"wide.go":       "package demo\n\nfunc wide(a, b, c int) int {\n\treturn a + b + c\n}\n",
		config.FileName: "[smells]\nmax_parameters = 2\n",
	}
	root := writeTree(t, files)

	res := run(t, "--root", root, "detect-smells")
	require.Equal(t, 0, res.code, res.stderr)
	findings := decode[[]types.Finding](t, res.stdout)
	require.Len(t, findings, 1)
	assert.Equal(t, "wide", findings[0].Symbol)

	// An explicit --config replaces the root's own file
	empty := filepath.Join(t.TempDir(), "empty.toml")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	res = run(t, "--root", root, "--config", empty, "detect-smells")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Empty(t, decode[[]types.Finding](t, res.stdout))
}

func TestUsageErrors(t *testing.T) {
	root := writeTree(t, corpus)
	tests := []struct {
		name string
		args []string
	}{
		{"bad output format", []string{"--root", root, "-o", "yaml", "search", "x"}},
		{"unknown flag", []string{"--root", root, "search", "--nope", "x"}},
		{"missing pattern", []string{"--root", root, "search"}},
		{"blame without path", []string{"--root", root, "blame", "--line", "1"}},
		{"blame line zero", []string{"--root", root, "blame", "--path", "a.go"}},
		{"stray argument", []string{"--root", root, "call-graph", "extra"}},
		{"revspec option", []string{"--root", root, "search-diff", "--revspec", "--output=x", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.args...)
			assert.Equal(t, 1, res.code)
			assert.Empty(t, res.stdout)
			assert.Equal(t, "InvalidArgument", decode[errorBody](t, res.stderr).Error.Kind)
		})
	}
}

func TestVersion(t *testing.T) {
	res := run(t, "--version")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, Version)
}

// startDaemon serves root on an ephemeral port
func startDaemon(t *testing.T, root string) string {
	t.Helper()
	a, err := commands.New(context.Background(), commands.Options{
		Config:       config.Default(),
		Logger:       config.Discard(),
		Embedder:     embedder.NewLocalProvider(),
		CacheQueries: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	d, err := a.NewDaemon(root, "127.0.0.1:0", true)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop(context.Background()) })
	return d.Addr().String()
}

func TestDaemonForwarding(t *testing.T) {
	root := writeTree(t, corpus)
	addr := startDaemon(t, root)

	local := run(t, "--root", root, "search", "return")
	remote := run(t, "--root", root, "--daemon", addr, "search", "return")
	require.Equal(t, 0, remote.code, remote.stderr)
	assert.JSONEq(t, local.stdout, remote.stdout)

	// Invalid parameters never reach the daemon
	res := run(t, "--root", root, "--daemon", addr, "blame", "--path", "a.go")
	assert.Equal(t, "InvalidArgument", decode[errorBody](t, res.stderr).Error.Kind)

	res = run(t, "--root", root, "--daemon", addr, "data-flow", "--path", "missing.go")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "NotFound", decode[errorBody](t, res.stderr).Error.Kind)
}

func TestDaemonFallsBackToLocal(t *testing.T) {
	root := writeTree(t, corpus)
	other := writeTree(t, map[string]string{"c.go": "package other\n"})
	addr := startDaemon(t, other)

	// The daemon serves another root
	res := run(t, "--root", root, "--daemon", addr, "search", "return bar")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Len(t, decode[[]types.MatchResult](t, res.stdout), 1)

	// Nothing listens on a closed port
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closed := ln.Addr().String()
	require.NoError(t, ln.Close())

	res = run(t, "--root", root, "--daemon", closed, "search", "return bar")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Len(t, decode[[]types.MatchResult](t, res.stdout), 1)
}

func TestStatus(t *testing.T) {
	root := writeTree(t, corpus)
	addr := startDaemon(t, root)

	res := run(t, "--daemon", addr, "status")
	require.Equal(t, 0, res.code, res.stderr)
	st := decode[daemon.Status](t, res.stdout)
	assert.Equal(t, daemon.Serving, st.State)
	assert.Equal(t, root, st.Root)
	assert.Equal(t, 2, st.Files)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closed := ln.Addr().String()
	require.NoError(t, ln.Close())

	res = run(t, "--daemon", closed, "status")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "Unavailable", decode[errorBody](t, res.stderr).Error.Kind)
}

func TestEveryCommandIsRegistered(t *testing.T) {
	cmd := newRootCommand(&env{})
	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, c := range commands.Commands() {
		assert.True(t, names[c.Name], c.Name)
	}
	for _, name := range []string{"daemon", "status", "mcp"} {
		assert.True(t, names[name], name)
	}
}
