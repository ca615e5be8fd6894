// Package parser extracts symbols and function facts from source files.
//
// A Registry maps language tags to LanguageParser implementations:
//
//   - Go is parsed with go/parser and go/ast
//   - Python, JavaScript, TypeScript and Rust are parsed with tree-sitter
//     grammars
//   - anything else goes through a heuristic extractor that recognizes lines
//     beginning with declaration keywords (func, def, class, fn, struct, ...)
//
// # Basic Usage
//
//	reg := parser.NewRegistry()
//	result, err := reg.Parse(ctx, file)
//	if err != nil {
//	    return err
//	}
//	for _, sym := range result.Symbols {
//	    fmt.Printf("%s %s at %s\n", sym.Kind, sym.QualifiedName(), sym.Span)
//	}
//
// # Function Facts
//
// Besides symbols, structured parsers record per-function facts consumed by
// the structural analyzers: parameters and result types, call sites, variable
// bindings with the variables they read, maximum control-flow nesting, and
// return statement counts.
//
// # Error Handling
//
// Syntax errors never fail a parse. They are recorded in ParseResult.Errors
// and whatever could be extracted from the partial tree is still returned.
// Only context cancellation produces an error.
//
// ParseAll parses a file set in parallel, bounded by GOMAXPROCS and split
// into batches so large corpora do not spawn one goroutine per file.
package parser
