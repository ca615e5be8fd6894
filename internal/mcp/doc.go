// Package mcp implements the Model Context Protocol (MCP) server for codescope.
//
// The server exposes the command layer to AI coding assistants as tools:
//   - index_codebase: index a project, or apply the changes since the last index
//   - search_code: hybrid, semantic, fuzzy, symbol or text search
//   - query_code: run a query language expression
//   - find_similar: symbols and code similar to a snippet
//   - search_diff and blame: git history
//   - call_graph, dependency_graph and data_flow: structural graphs
//   - detect_smells and extract_signatures: per-function reports
//   - get_status: what the index of a project holds
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Every tool takes "path", the absolute project root. The first tool call
// for a root builds its index in memory; later calls reuse it until
// index_codebase refreshes it. File arguments are relative to the root.
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "query": "parse config file",
//	    "limit": 10,
//	    "search_mode": "hybrid"
//	  }
//	}
//
// The result is the JSON array of matches the search commands produce:
// file, line, column, span, text, score and engine, plus the symbol when
// the match is one.
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "codescope": {
//	      "command": "/usr/local/bin/codescope",
//	      "args": ["mcp"]
//	    }
//	  }
//	}
//
// # Error Handling
//
// Handlers return *MCPError. Failures of the command layer carry the error
// kind in Data:
//
//	{
//	  "code": -32602,
//	  "message": "search failed: invalid pattern: missing closing )",
//	  "data": {"kind": "InvalidPattern", "error": "..."}
//	}
//
// Error codes:
//   - -32602: invalid params, patterns or queries
//   - -32603: internal error
//   - -32001: project not found
//   - -32002: indexing in progress
//   - -32003: file or function not found
//   - -32004: empty query
//   - -32005: embedding provider or git backend unavailable
//
// The server logs to stderr; stdout is reserved for the protocol.
package mcp
