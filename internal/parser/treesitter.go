package parser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/codescope/pkg/types"
)

// TreeSitterParser parses one language with a tree-sitter grammar.
// sitter.Parser is not safe for concurrent use, so parsers are pooled.
type TreeSitterParser struct {
	name    string
	pool    sync.Pool
	extract func(c *tsContext, root *sitter.Node)
}

func newTreeSitterParser(name string, lang *sitter.Language, extract func(*tsContext, *sitter.Node)) *TreeSitterParser {
	return &TreeSitterParser{
		name:    name,
		extract: extract,
		pool: sync.Pool{New: func() any {
			p := sitter.NewParser()
			p.SetLanguage(lang)
			return p
		}},
	}
}

// Language implements LanguageParser
func (p *TreeSitterParser) Language() string { return p.name }

// Parse implements LanguageParser
func (p *TreeSitterParser) Parse(ctx context.Context, file types.SourceFile) (*types.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := &types.ParseResult{File: file.RelPath, Language: p.name}
	if len(file.Content) == 0 {
		return result, nil
	}

	sp := p.pool.Get().(*sitter.Parser)
	defer p.pool.Put(sp)

	tree, err := sp.ParseCtx(ctx, nil, file.Content)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("tree-sitter parse %s: %w", file.RelPath, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		result.AddError(file.RelPath, 0, 0, "syntax error")
	}

	c := &tsContext{src: file.Content, file: file.RelPath, result: result}
	p.extract(c, root)
	for i := range result.Symbols {
		result.Symbols[i].Language = p.name
	}
	return result, nil
}

type tsContext struct {
	src    []byte
	file   string
	result *types.ParseResult
}

func (c *tsContext) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(c.src)
}

func (c *tsContext) span(n *sitter.Node) types.Span {
	start, end := n.StartPoint(), n.EndPoint()
	return types.Span{
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
	}
}

func line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func (c *tsContext) addSymbol(sym types.Symbol) {
	sym.File = c.file
	c.result.Symbols = append(c.result.Symbols, sym)
}

// bodyRules describe how to collect function facts for one grammar
type bodyRules struct {
	nesting  map[string]bool // control-flow nodes that add a nesting level
	boundary map[string]bool // nested function nodes
	ret      string          // return statement node type
	callee   func(c *tsContext, n *sitter.Node) (types.CallSite, bool)
	bindings func(c *tsContext, n *sitter.Node) []types.Binding
}

// collect walks a function body. Calls and bindings inside nested functions
// are included; nesting and returns stop at function boundaries.
func (r *bodyRules) collect(c *tsContext, body *sitter.Node, fn *types.Function) {
	if body == nil {
		return
	}
	var visit func(n *sitter.Node, depth int, nested bool)
	visit = func(n *sitter.Node, depth int, nested bool) {
		t := n.Type()
		if call, ok := r.callee(c, n); ok {
			fn.Calls = append(fn.Calls, call)
		}
		fn.Bindings = append(fn.Bindings, r.bindings(c, n)...)

		if !nested {
			if t == r.ret {
				fn.Returns++
			}
			if r.nesting[t] && !isElseIf(n) {
				depth++
				if depth > fn.MaxNesting {
					fn.MaxNesting = depth
				}
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			visit(child, depth, nested || r.boundary[child.Type()])
		}
	}
	visit(body, 0, false)
}

func isElseIf(n *sitter.Node) bool {
	if t := n.Type(); t != "if_statement" && t != "if_expression" {
		return false
	}
	p := n.Parent()
	return p != nil && p.Type() == "else_clause"
}

func unquote(s string) string {
	return strings.Trim(s, "\"'`")
}
