package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/dshills/codescope/pkg/types"
)

// NewRustParser creates a tree-sitter backed Rust parser
func NewRustParser() *TreeSitterParser {
	return newTreeSitterParser("rust", rust.GetLanguage(), rsExtract)
}

var rsRules = &bodyRules{
	nesting: map[string]bool{
		"if_expression": true, "for_expression": true, "while_expression": true,
		"loop_expression": true, "match_expression": true,
	},
	boundary: map[string]bool{"closure_expression": true, "function_item": true},
	ret:      "return_expression",
	callee:   rsCallee,
	bindings: rsBindings,
}

func rsExtract(c *tsContext, root *sitter.Node) {
	rsWalk(c, root)
}

func rsWalk(c *tsContext, n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "function_item":
			rsFunction(c, child, "", rsPublic(child))
		case "impl_item":
			rsImpl(c, child)
		case "trait_item":
			rsTrait(c, child)
		case "struct_item":
			rsStruct(c, child)
		case "enum_item", "union_item", "type_item":
			rsItem(c, child, types.KindType)
		case "const_item":
			rsItem(c, child, types.KindConst)
		case "static_item":
			rsItem(c, child, types.KindVar)
		case "mod_item":
			rsItem(c, child, types.KindModule)
			if body := child.ChildByFieldName("body"); body != nil {
				rsWalk(c, body)
			} else if name := c.text(child.ChildByFieldName("name")); name != "" {
				// mod x; pulls in x.rs or x/mod.rs
				c.result.Imports = append(c.result.Imports, types.Import{Path: "self::" + name, Line: line(child)})
			}
		case "use_declaration":
			rsUse(c, child.ChildByFieldName("argument"), "", line(child))
		}
	}
}

// rsPublic reports whether an item carries a pub visibility modifier
func rsPublic(n *sitter.Node) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if n.NamedChild(i).Type() == "visibility_modifier" {
			return true
		}
	}
	return false
}

// rsHeader is the item text up to its body
func rsHeader(c *tsContext, n *sitter.Node) string {
	body := n.ChildByFieldName("body")
	if body == nil {
		return strings.TrimSuffix(collapse(c.text(n)), ";")
	}
	return collapse(string(c.src[n.StartByte():body.StartByte()]))
}

func rsItem(c *tsContext, n *sitter.Node, kind types.SymbolKind) {
	name := c.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	c.addSymbol(types.Symbol{
		Name:      name,
		Kind:      kind,
		Span:      c.span(n),
		Signature: rsHeader(c, n),
		Scope:     jsScope(rsPublic(n)),
	})
}

func rsStruct(c *tsContext, n *sitter.Node) {
	rsItem(c, n, types.KindStruct)
	name := c.text(n.ChildByFieldName("name"))
	body := n.ChildByFieldName("body")
	if name == "" || body == nil || body.Type() != "field_declaration_list" {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		f := body.NamedChild(i)
		if f.Type() != "field_declaration" {
			continue
		}
		fname := c.text(f.ChildByFieldName("name"))
		if fname == "" {
			continue
		}
		c.addSymbol(types.Symbol{
			Name:      fname,
			Kind:      types.KindField,
			Parent:    name,
			Span:      c.span(f),
			Signature: collapse(c.text(f)),
			Scope:     jsScope(rsPublic(f)),
		})
	}
}

// rsTypeName strips generics and paths from an impl target
func rsTypeName(s string) string {
	if i := strings.IndexByte(s, '<'); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "::"); i >= 0 {
		s = s[i+2:]
	}
	return strings.TrimSpace(s)
}

// rsImpl records methods under the implementing type. Methods of a trait
// impl are as visible as the trait itself.
func rsImpl(c *tsContext, n *sitter.Node) {
	typ := rsTypeName(c.text(n.ChildByFieldName("type")))
	body := n.ChildByFieldName("body")
	if typ == "" || body == nil {
		return
	}
	forTrait := n.ChildByFieldName("trait") != nil
	for i := 0; i < int(body.NamedChildCount()); i++ {
		if m := body.NamedChild(i); m.Type() == "function_item" {
			rsFunction(c, m, typ, forTrait || rsPublic(m))
		}
	}
}

func rsTrait(c *tsContext, n *sitter.Node) {
	name := c.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	public := rsPublic(n)
	c.addSymbol(types.Symbol{
		Name:      name,
		Kind:      types.KindInterface,
		Span:      c.span(n),
		Signature: rsHeader(c, n),
		Scope:     jsScope(public),
	})
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		m := body.NamedChild(i)
		switch m.Type() {
		case "function_item":
			rsFunction(c, m, name, public)
		case "function_signature_item":
			c.addSymbol(types.Symbol{
				Name:      c.text(m.ChildByFieldName("name")),
				Kind:      types.KindMethod,
				Parent:    name,
				Span:      c.span(m),
				Signature: rsHeader(c, m),
				Scope:     jsScope(public),
			})
		}
	}
}

func rsFunction(c *tsContext, n *sitter.Node, parent string, exported bool) {
	name := c.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	kind := types.KindFunction
	if parent != "" {
		kind = types.KindMethod
	}
	span := c.span(n)
	c.addSymbol(types.Symbol{
		Name:      name,
		Kind:      kind,
		Parent:    parent,
		Span:      span,
		Signature: rsHeader(c, n),
		Scope:     jsScope(exported),
	})

	fn := types.Function{
		Name:     name,
		Parent:   parent,
		Span:     span,
		Exported: exported,
		Params:   rsParams(c, n.ChildByFieldName("parameters")),
	}
	if ret := n.ChildByFieldName("return_type"); ret != nil {
		fn.Results = []string{collapse(c.text(ret))}
	}
	for _, p := range fn.Params {
		fn.Bindings = append(fn.Bindings, types.Binding{Name: p.Name, Line: span.StartLine, Kind: "param"})
	}
	rsRules.collect(c, n.ChildByFieldName("body"), &fn)
	c.result.Functions = append(c.result.Functions, fn)
}

// rsParams lists the typed parameters; the self receiver is not one
func rsParams(c *tsContext, n *sitter.Node) []types.Param {
	if n == nil {
		return nil
	}
	var out []types.Param
	for i := 0; i < int(n.NamedChildCount()); i++ {
		p := n.NamedChild(i)
		if p.Type() != "parameter" {
			continue
		}
		out = append(out, types.Param{
			Name: strings.TrimPrefix(collapse(c.text(p.ChildByFieldName("pattern"))), "mut "),
			Type: collapse(c.text(p.ChildByFieldName("type"))),
		})
	}
	return out
}

// rsUse expands a use tree into one import per leaf path
func rsUse(c *tsContext, n *sitter.Node, prefix string, ln int) {
	if n == nil {
		return
	}
	join := func(p string) string {
		switch {
		case prefix == "":
			return p
		case p == "self":
			return prefix
		}
		return prefix + "::" + p
	}
	switch n.Type() {
	case "identifier", "scoped_identifier", "crate", "self", "super":
		c.result.Imports = append(c.result.Imports, types.Import{Path: join(c.text(n)), Line: ln})
	case "use_as_clause":
		c.result.Imports = append(c.result.Imports, types.Import{
			Path:  join(c.text(n.ChildByFieldName("path"))),
			Alias: c.text(n.ChildByFieldName("alias")),
			Line:  ln,
		})
	case "use_wildcard":
		c.result.Imports = append(c.result.Imports, types.Import{Path: join(strings.TrimSuffix(c.text(n), "::*")), Line: ln})
	case "scoped_use_list":
		inner := prefix
		if p := n.ChildByFieldName("path"); p != nil {
			inner = join(c.text(p))
		}
		rsUse(c, n.ChildByFieldName("list"), inner, ln)
	case "use_list":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			rsUse(c, n.NamedChild(i), prefix, ln)
		}
	}
}

func rsCallee(c *tsContext, n *sitter.Node) (types.CallSite, bool) {
	if n.Type() != "call_expression" {
		return types.CallSite{}, false
	}
	fn := n.ChildByFieldName("function")
	if fn != nil && fn.Type() == "generic_function" {
		fn = fn.ChildByFieldName("function")
	}
	if fn == nil {
		return types.CallSite{}, false
	}
	switch fn.Type() {
	case "identifier":
		return types.CallSite{Name: c.text(fn), Line: line(n)}, true
	case "scoped_identifier":
		return types.CallSite{
			Name:      c.text(fn.ChildByFieldName("name")),
			Qualifier: c.text(fn.ChildByFieldName("path")),
			Line:      line(n),
		}, true
	case "field_expression":
		return types.CallSite{
			Name:      c.text(fn.ChildByFieldName("field")),
			Qualifier: c.text(fn.ChildByFieldName("value")),
			Line:      line(n),
		}, true
	}
	return types.CallSite{}, false
}

func rsBindings(c *tsContext, n *sitter.Node) []types.Binding {
	switch n.Type() {
	case "let_declaration":
		src := dedupe(rsReads(c, n.ChildByFieldName("value")))
		return rsTargets(c, n.ChildByFieldName("pattern"), "define", src)
	case "assignment_expression":
		left := n.ChildByFieldName("left")
		if left == nil || left.Type() != "identifier" {
			return nil
		}
		return []types.Binding{{Name: c.text(left), Line: line(n), Kind: "assign", Sources: dedupe(rsReads(c, n.ChildByFieldName("right")))}}
	case "compound_assignment_expr":
		left := n.ChildByFieldName("left")
		if left == nil || left.Type() != "identifier" {
			return nil
		}
		name := c.text(left)
		return []types.Binding{{Name: name, Line: line(n), Kind: "assign", Sources: dedupe(append([]string{name}, rsReads(c, n.ChildByFieldName("right"))...))}}
	case "for_expression":
		src := dedupe(rsReads(c, n.ChildByFieldName("value")))
		return rsTargets(c, n.ChildByFieldName("pattern"), "range", src)
	}
	return nil
}

func rsTargets(c *tsContext, n *sitter.Node, kind string, src []string) []types.Binding {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier":
		return []types.Binding{{Name: c.text(n), Line: line(n), Kind: kind, Sources: src}}
	case "mut_pattern", "ref_pattern", "tuple_pattern", "tuple_struct_pattern", "slice_pattern":
		var out []types.Binding
		for i := 0; i < int(n.NamedChildCount()); i++ {
			out = append(out, rsTargets(c, n.NamedChild(i), kind, src)...)
		}
		return out
	}
	return nil
}

// rsReads returns identifiers read by an expression. Paths such as
// Type::CONST name items, not variables.
func rsReads(c *tsContext, n *sitter.Node) []string {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier":
		return []string{c.text(n)}
	case "field_expression":
		return rsReads(c, n.ChildByFieldName("value"))
	case "call_expression":
		var out []string
		if fn := n.ChildByFieldName("function"); fn != nil && fn.Type() == "field_expression" {
			out = rsReads(c, fn)
		}
		return append(out, rsReads(c, n.ChildByFieldName("arguments"))...)
	case "macro_invocation":
		var out []string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child.Type() == "token_tree" {
				out = append(out, rsReads(c, child)...)
			}
		}
		return out
	case "scoped_identifier", "closure_expression":
		return nil
	}
	var out []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, rsReads(c, n.NamedChild(i))...)
	}
	return out
}
