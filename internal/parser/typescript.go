package parser

import (
	"context"
	"strings"

	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/dshills/codescope/pkg/types"
)

// TypeScriptParser parses .ts files with the TypeScript grammar and .tsx
// files with the TSX grammar. Both share the JavaScript extractor.
type TypeScriptParser struct {
	ts  *TreeSitterParser
	tsx *TreeSitterParser
}

// NewTypeScriptParser creates a tree-sitter backed TypeScript parser
func NewTypeScriptParser() *TypeScriptParser {
	return &TypeScriptParser{
		ts:  newTreeSitterParser("typescript", typescript.GetLanguage(), jsExtract),
		tsx: newTreeSitterParser("typescript", tsx.GetLanguage(), jsExtract),
	}
}

// Language implements LanguageParser
func (p *TypeScriptParser) Language() string { return "typescript" }

// Parse implements LanguageParser
func (p *TypeScriptParser) Parse(ctx context.Context, file types.SourceFile) (*types.ParseResult, error) {
	if strings.HasSuffix(file.RelPath, ".tsx") {
		return p.tsx.Parse(ctx, file)
	}
	return p.ts.Parse(ctx, file)
}
