package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the project root",
	}
}

func limitProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of results to return (1-100)",
		"default":     10,
		"minimum":     1,
		"maximum":     100,
	}
}

func fileProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// indexCodebaseTool returns the tool definition for index_codebase
func indexCodebaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_codebase",
		Description: "Index a codebase so the other tools can query it. Later calls pick up changed, added and deleted files.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"force_reindex": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, rebuild the index from scratch instead of applying changes",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Search a codebase with natural language, identifiers or literal text",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language, identifier or literal text)",
				},
				"limit": limitProperty(),
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (fuzzy + semantic + symbol), semantic (embeddings only), fuzzy, symbol (names only) or text (literal substring)",
					"enum":        []string{"hybrid", "semantic", "fuzzy", "symbol", "text"},
					"default":     "hybrid",
				},
				"symbol_types": map[string]interface{}{
					"type":        "array",
					"description": "Restrict symbol mode to these symbol kinds",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []string{"function", "method", "struct", "interface", "class", "type", "const", "var", "field", "module"},
					},
				},
			},
			Required: []string{"path", "query"},
		},
	}
}

// queryCodeTool returns the tool definition for query_code
func queryCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "query_code",
		Description: "Run a query language expression such as 'symbol:Parse AND file:*.go NOT path:vendor'",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Query expression. Fields: symbol, text, regex, fuzzy, semantic, hybrid, diff, file, path, lang, kind. Operators: AND, OR, NOT, parentheses. Bare terms use hybrid search.",
				},
				"limit": limitProperty(),
			},
			Required: []string{"path", "query"},
		},
	}
}

// findSimilarTool returns the tool definition for find_similar
func findSimilarTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_similar",
		Description: "Find symbols and code regions similar to a snippet or name",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Code snippet or symbol name to compare against",
				},
				"limit": limitProperty(),
			},
			Required: []string{"path", "query"},
		},
	}
}

// searchDiffTool returns the tool definition for search_diff
func searchDiffTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_diff",
		Description: "Search the added, removed and context lines of a git diff",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "Literal text or regular expression to look for",
				},
				"revspec": map[string]interface{}{
					"type":        "string",
					"description": "Revision or range passed to git diff",
					"default":     "HEAD",
				},
				"regex": map[string]interface{}{
					"type":        "boolean",
					"description": "Treat pattern as a regular expression",
					"default":     false,
				},
				"ignore_case": map[string]interface{}{
					"type":        "boolean",
					"description": "Match case-insensitively",
					"default":     false,
				},
				"limit": limitProperty(),
			},
			Required: []string{"path", "pattern"},
		},
	}
}

// blameTool returns the tool definition for blame
func blameTool() mcp.Tool {
	return mcp.Tool{
		Name:        "blame",
		Description: "Show the commit, author and summary that last touched a line",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"file": fileProperty("File to blame, relative to the project root"),
				"line": map[string]interface{}{
					"type":        "integer",
					"description": "1-based line number",
					"minimum":     1,
				},
			},
			Required: []string{"path", "file", "line"},
		},
	}
}

// callGraphTool returns the tool definition for call_graph
func callGraphTool() mcp.Tool {
	return mcp.Tool{
		Name:        "call_graph",
		Description: "Build the call graph of the project. Calls that cannot be resolved point at external nodes.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
			},
			Required: []string{"path"},
		},
	}
}

// dependencyGraphTool returns the tool definition for dependency_graph
func dependencyGraphTool() mcp.Tool {
	return mcp.Tool{
		Name:        "dependency_graph",
		Description: "Build the file-level import graph of the project and report import cycles",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"module": map[string]interface{}{
					"type":        "string",
					"description": "Go module path to resolve imports against, overriding go.mod",
				},
			},
			Required: []string{"path"},
		},
	}
}

// dataFlowTool returns the tool definition for data_flow
func dataFlowTool() mcp.Tool {
	return mcp.Tool{
		Name:        "data_flow",
		Description: "Build the intra-procedural data flow graph of the functions in one file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"file": fileProperty("File to analyze, relative to the project root"),
				"function": map[string]interface{}{
					"type":        "string",
					"description": "Only analyze this function (name or Type.method)",
				},
			},
			Required: []string{"path", "file"},
		},
	}
}

// detectSmellsTool returns the tool definition for detect_smells
func detectSmellsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "detect_smells",
		Description: "Report long functions, long parameter lists, deep nesting and functions with many returns",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"file": fileProperty("File or directory to check, relative to the project root. Defaults to the whole project."),
			},
			Required: []string{"path"},
		},
	}
}

// extractSignaturesTool returns the tool definition for extract_signatures
func extractSignaturesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "extract_signatures",
		Description: "List the public functions and methods with their parameters and results",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"file": fileProperty("File or directory, relative to the project root. Defaults to the whole project."),
				"include_private": map[string]interface{}{
					"type":        "boolean",
					"description": "Also list unexported functions and methods",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report whether a project is indexed and what its index holds",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
			},
			Required: []string{"path"},
		},
	}
}
