// Package types provides shared type definitions for codescope.
//
// This package defines the domain records every engine and analyzer
// exchanges: source files, symbol records, parse results, match results,
// graphs and the error taxonomy.
//
// # Core Types
//
// Symbol is a definition extracted by a language parser, identified by the
// (file, span) pair:
//
//	sym := types.Symbol{
//	    Name: "ParseFile",
//	    Kind: types.KindFunction,
//	    File: "internal/parser/parser.go",
//	    Span: types.Span{StartLine: 27, EndLine: 64},
//	}
//
// MatchResult is the normalized hit record. Every engine (text, symbol,
// fuzzy, semantic, hybrid, git) returns it, tagged with the producing engine:
//
//	m := types.MatchResult{
//	    File:   "main.go",
//	    Line:   12,
//	    Score:  0.92,
//	    Engine: types.EngineFuzzy,
//	}
//
// Scores are normalized to the [0, 1] range, with higher values indicating
// better matches.
//
// # Graphs
//
// Graph is the artifact of the call-graph, data-flow and dependency-graph
// analyzers. Node IDs are derived from (file, name) via NodeID so repeated
// builds over the same input produce identical graphs.
//
// # Errors
//
// The sentinel errors (ErrIO, ErrInvalidPattern, ErrQuerySyntax, ErrEmbedding,
// ErrGitBackend, ErrAllEnginesFailed) are wrapped with %w by the engines.
// ErrorKind maps any wrapped error back to its stable taxonomy name for
// structured output:
//
//	if errors.Is(err, types.ErrEmbedding) {
//	    // caller may degrade to the fuzzy engine
//	}
package types
