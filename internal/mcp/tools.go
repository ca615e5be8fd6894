package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/codescope/internal/commands"
	"github.com/dshills/codescope/internal/indexer"
	"github.com/dshills/codescope/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // Specified path is not a readable directory
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotFound           = -32003 // A file or symbol named in the request does not exist
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeUnavailable        = -32005 // Embedding provider or git backend failed
)

// searchModes maps search_code modes onto commands
var searchModes = map[string]string{
	"hybrid":   commands.SearchHybrid,
	"semantic": commands.SearchSemantic,
	"fuzzy":    commands.SearchFuzzy,
	"symbol":   commands.SearchSymbol,
	"text":     commands.Search,
}

// handleIndexCodebase handles the index_codebase tool invocation
func (s *Server) handleIndexCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}

	var stats *indexer.Statistics
	state, ok := s.indexed(root)
	if forceReindex := getBoolDefault(args, "force_reindex", false); forceReindex || !ok {
		_, stats, err = s.build(ctx, root)
	} else {
		stats, err = s.app.Indexer().Refresh(ctx, state, s.app.Config().Daemon.WriterLockTimeout.Duration)
		if err == nil {
			s.app.Purge()
		}
	}
	if err != nil {
		return nil, toolError("indexing failed", err)
	}

	response := map[string]interface{}{
		"indexed":           true,
		"generation":        stats.Generation,
		"files_indexed":     stats.FilesIndexed,
		"files_skipped":     stats.FilesSkipped,
		"files_removed":     stats.FilesRemoved,
		"files_failed":      stats.FilesFailed,
		"symbols_extracted": stats.SymbolsExtracted,
		"duration_ms":       stats.Duration.Milliseconds(),
	}
	if len(stats.ErrorMessages) > 0 {
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}
	query, err := requireQuery(args)
	if err != nil {
		return nil, err
	}
	limit, err := limitArg(args)
	if err != nil {
		return nil, err
	}

	searchMode := getStringDefault(args, "search_mode", "hybrid")
	name, ok := searchModes[searchMode]
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   searchMode,
			"allowed": []string{"hybrid", "semantic", "fuzzy", "symbol", "text"},
		})
	}

	var p commands.Params
	if name == commands.Search {
		p = &commands.SearchParams{Pattern: query, Limit: limit}
	} else {
		p = &commands.QueryParams{Query: query, Limit: limit, Kinds: getStringsDefault(args, "symbol_types")}
	}
	return s.run(ctx, root, name, p)
}

// handleQueryCode handles the query_code tool invocation
func (s *Server) handleQueryCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}
	query, err := requireQuery(args)
	if err != nil {
		return nil, err
	}
	limit, err := limitArg(args)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, root, commands.Query, &commands.ExprParams{Expr: query, Limit: limit})
}

// handleFindSimilar handles the find_similar tool invocation
func (s *Server) handleFindSimilar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}
	query, err := requireQuery(args)
	if err != nil {
		return nil, err
	}
	limit, err := limitArg(args)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, root, commands.FindSimilar, &commands.QueryParams{Query: query, Limit: limit})
}

// handleSearchDiff handles the search_diff tool invocation
func (s *Server) handleSearchDiff(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}
	pattern := getStringDefault(args, "pattern", "")
	if pattern == "" {
		return nil, missingParam("pattern")
	}
	limit, err := limitArg(args)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, root, commands.SearchDiff, &commands.DiffParams{
		Revspec:    getStringDefault(args, "revspec", ""),
		Pattern:    pattern,
		Regex:      getBoolDefault(args, "regex", false),
		IgnoreCase: getBoolDefault(args, "ignore_case", false),
		Limit:      limit,
	})
}

// handleBlame handles the blame tool invocation
func (s *Server) handleBlame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}
	file, err := fileArg(args, root, true)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, root, commands.Blame, &commands.BlameParams{Path: file, Line: getIntDefault(args, "line", 0)})
}

// handleCallGraph handles the call_graph tool invocation
func (s *Server) handleCallGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, root, commands.CallGraph, &commands.GraphParams{})
}

// handleDependencyGraph handles the dependency_graph tool invocation
func (s *Server) handleDependencyGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, root, commands.DependencyGraph, &commands.GraphParams{Module: getStringDefault(args, "module", "")})
}

// handleDataFlow handles the data_flow tool invocation
func (s *Server) handleDataFlow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}
	file, err := fileArg(args, root, true)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, root, commands.DataFlow, &commands.DataFlowParams{
		Path:     file,
		Function: getStringDefault(args, "function", ""),
	})
}

// handleDetectSmells handles the detect_smells tool invocation
func (s *Server) handleDetectSmells(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}
	file, err := fileArg(args, root, false)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, root, commands.DetectSmells, &commands.PathParams{Path: file})
}

// handleExtractSignatures handles the extract_signatures tool invocation
func (s *Server) handleExtractSignatures(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}
	file, err := fileArg(args, root, false)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, root, commands.ExtractSignatures, &commands.PathParams{
		Path:           file,
		IncludePrivate: getBoolDefault(args, "include_private", false),
	})
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}

	state, ok := s.indexed(root)
	if !ok {
		response := map[string]interface{}{
			"indexed": false,
			"path":    root,
			"message": "Project not indexed. Use index_codebase tool to index this project.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	st := state.Snapshot().Stats()
	response := map[string]interface{}{
		"indexed": true,
		"path":    root,
		"statistics": map[string]interface{}{
			"generation":    st.Generation,
			"files_count":   st.Files,
			"symbols_count": st.Symbols,
			"languages":     st.Languages,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// run executes a command against the index of root
func (s *Server) run(ctx context.Context, root, name string, p commands.Params) (*mcp.CallToolResult, error) {
	state, err := s.index(ctx, root)
	if err != nil {
		return nil, toolError("indexing failed", err)
	}
	res, err := s.app.Run(ctx, state.Snapshot(), name, p)
	if err != nil {
		return nil, toolError(name+" failed", err)
	}
	return mcp.NewToolResultText(formatJSON(res)), nil
}

// Helper functions

// projectArgs extracts the arguments and the validated project root
func projectArgs(request mcp.CallToolRequest) (map[string]interface{}, string, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, "", missingParam("path")
	}
	if err := validatePath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) || errors.Is(err, ErrPathNotReadable) {
			code = ErrorCodeProjectNotFound
		}
		return nil, "", newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	return args, filepath.Clean(path), nil
}

func requireQuery(args map[string]interface{}) (string, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return "", newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	return query, nil
}

func limitArg(args map[string]interface{}) (int, error) {
	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return 0, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	return limit, nil
}

// fileArg reads the file argument as a path relative to root
func fileArg(args map[string]interface{}, root string, required bool) (string, error) {
	file := getStringDefault(args, "file", "")
	if file == "" && required {
		return "", missingParam("file")
	}
	rel, err := commands.RelPath(root, file)
	if err != nil {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid file", map[string]interface{}{
			"param":  "file",
			"reason": err.Error(),
		})
	}
	return rel, nil
}

func missingParam(name string) error {
	return newMCPError(ErrorCodeInvalidParams, name+" parameter is required", map[string]interface{}{
		"param":  name,
		"reason": "missing or empty",
	})
}

// toolError converts a command failure into an MCP error carrying the
// error kind
func toolError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, indexer.ErrIndexInProgress):
		code = ErrorCodeIndexingInProgress
	case errors.Is(err, types.ErrNotFound):
		code = ErrorCodeNotFound
	case errors.Is(err, types.ErrInvalidArgument),
		errors.Is(err, types.ErrInvalidPattern),
		errors.Is(err, types.ErrQuerySyntax):
		code = ErrorCodeInvalidParams
	case errors.Is(err, types.ErrEmbedding),
		errors.Is(err, types.ErrGitBackend),
		errors.Is(err, types.ErrUnavailable):
		code = ErrorCodeUnavailable
	}
	return newMCPError(code, message+": "+err.Error(), map[string]interface{}{
		"kind":  types.ErrorKind(err),
		"error": err.Error(),
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that a project path is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// formatJSON formats a result as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringsDefault extracts a string array parameter, skipping non-strings
func getStringsDefault(args map[string]interface{}, key string) []string {
	switch vals := args[key].(type) {
	case []string:
		return vals
	case []interface{}:
		var out []string
		for _, v := range vals {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
