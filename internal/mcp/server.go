package mcp

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/codescope/internal/commands"
	"github.com/dshills/codescope/internal/indexer"
)

const (
	// ServerName is the MCP server name
	ServerName = "codescope"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server exposes the commands as MCP tools. Every project root gets its own
// in-memory index, built on first use and refreshed by index_codebase.
type Server struct {
	mcp *server.MCPServer
	app *commands.App
	log *slog.Logger

	mu      sync.Mutex
	indexes map[string]*indexer.State
	builds  singleflight.Group
}

// NewServer creates a new MCP server instance around app
func NewServer(app *commands.App, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		app:     app,
		log:     log,
		indexes: make(map[string]*indexer.State),
	}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexCodebaseTool(), s.handleIndexCodebase)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(queryCodeTool(), s.handleQueryCode)
	s.mcp.AddTool(findSimilarTool(), s.handleFindSimilar)
	s.mcp.AddTool(searchDiffTool(), s.handleSearchDiff)
	s.mcp.AddTool(blameTool(), s.handleBlame)
	s.mcp.AddTool(callGraphTool(), s.handleCallGraph)
	s.mcp.AddTool(dependencyGraphTool(), s.handleDependencyGraph)
	s.mcp.AddTool(dataFlowTool(), s.handleDataFlow)
	s.mcp.AddTool(detectSmellsTool(), s.handleDetectSmells)
	s.mcp.AddTool(extractSignaturesTool(), s.handleExtractSignatures)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}

// index returns the index of root, building it on first use. Concurrent
// first calls share one build.
func (s *Server) index(ctx context.Context, root string) (*indexer.State, error) {
	s.mu.Lock()
	state, ok := s.indexes[root]
	s.mu.Unlock()
	if ok {
		return state, nil
	}
	v, err, _ := s.builds.Do(root, func() (any, error) {
		if state, ok := s.indexed(root); ok {
			return state, nil
		}
		state, _, err := s.build(ctx, root)
		return state, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*indexer.State), nil
}

// build indexes root from scratch and replaces any index it had
func (s *Server) build(ctx context.Context, root string) (*indexer.State, *indexer.Statistics, error) {
	state, stats, err := s.app.Indexer().Build(ctx, root)
	if err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	s.indexes[root] = state
	s.mu.Unlock()
	s.app.Purge()
	s.log.Info("project indexed", "root", root, "files", stats.FilesIndexed, "generation", stats.Generation)
	return state, stats, nil
}

// indexed returns the index of root if one was built
func (s *Server) indexed(root string) (*indexer.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.indexes[root]
	return state, ok
}
