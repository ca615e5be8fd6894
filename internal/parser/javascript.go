package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/dshills/codescope/pkg/types"
)

// NewJavaScriptParser creates a tree-sitter backed JavaScript parser
func NewJavaScriptParser() *TreeSitterParser {
	return newTreeSitterParser("javascript", javascript.GetLanguage(), jsExtract)
}

var jsRules = &bodyRules{
	nesting: map[string]bool{
		"if_statement": true, "for_statement": true, "for_in_statement": true,
		"while_statement": true, "do_statement": true, "switch_statement": true,
		"try_statement": true,
	},
	boundary: map[string]bool{
		"function": true, "function_expression": true, "arrow_function": true,
		"function_declaration": true, "generator_function": true,
		"generator_function_declaration": true, "method_definition": true,
		"class": true, "class_declaration": true,
	},
	ret:      "return_statement",
	callee:   jsCallee,
	bindings: jsBindings,
}

func jsExtract(c *tsContext, root *sitter.Node) {
	jsWalk(c, root, false)
	jsRequires(c, root)
}

func jsWalk(c *tsContext, n *sitter.Node, exported bool) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "export_statement":
			if decl := child.ChildByFieldName("declaration"); decl != nil {
				jsDecl(c, decl, child, true)
			}
			if src := child.ChildByFieldName("source"); src != nil {
				c.result.Imports = append(c.result.Imports, types.Import{Path: unquote(c.text(src)), Line: line(child)})
			}
		case "import_statement":
			if src := child.ChildByFieldName("source"); src != nil {
				c.result.Imports = append(c.result.Imports, types.Import{Path: unquote(c.text(src)), Line: line(child)})
			}
		case "function_declaration", "generator_function_declaration", "class_declaration",
			"lexical_declaration", "variable_declaration", "abstract_class_declaration",
			"interface_declaration", "type_alias_declaration", "enum_declaration":
			jsDecl(c, child, child, exported)
		case "statement_block", "if_statement", "try_statement":
			jsWalk(c, child, exported)
		}
	}
}

func jsScope(exported bool) types.SymbolScope {
	if exported {
		return types.ScopeExported
	}
	return types.ScopeUnexported
}

func jsDecl(c *tsContext, decl, outer *sitter.Node, exported bool) {
	switch decl.Type() {
	case "function_declaration", "generator_function_declaration":
		name := c.text(decl.ChildByFieldName("name"))
		jsFunction(c, name, "", decl, outer, exported)
	case "class_declaration", "abstract_class_declaration":
		jsClass(c, decl, outer, exported)
	case "interface_declaration":
		jsTypeDecl(c, decl, outer, types.KindInterface, exported)
	case "type_alias_declaration", "enum_declaration":
		jsTypeDecl(c, decl, outer, types.KindType, exported)
	case "lexical_declaration", "variable_declaration":
		kind := types.KindVar
		if decl.ChildCount() > 0 && decl.Child(0).Type() == "const" {
			kind = types.KindConst
		}
		for i := 0; i < int(decl.NamedChildCount()); i++ {
			d := decl.NamedChild(i)
			if d.Type() != "variable_declarator" {
				continue
			}
			nameNode := d.ChildByFieldName("name")
			if nameNode == nil || nameNode.Type() != "identifier" {
				continue
			}
			name := c.text(nameNode)
			value := d.ChildByFieldName("value")
			if value != nil && jsIsFunction(value.Type()) {
				jsFunction(c, name, "", value, outer, exported)
				continue
			}
			c.addSymbol(types.Symbol{
				Name:      name,
				Kind:      kind,
				Span:      c.span(d),
				Signature: firstLine(c.text(d)),
				Scope:     jsScope(exported),
			})
		}
	}
}

// jsTypeDecl records TypeScript interfaces, type aliases and enums
func jsTypeDecl(c *tsContext, decl, outer *sitter.Node, kind types.SymbolKind, exported bool) {
	name := c.text(decl.ChildByFieldName("name"))
	if name == "" {
		return
	}
	c.addSymbol(types.Symbol{
		Name:      name,
		Kind:      kind,
		Span:      c.span(outer),
		Signature: strings.TrimSpace(strings.TrimSuffix(firstLine(c.text(decl)), "{")),
		Scope:     jsScope(exported),
	})
}

func jsIsFunction(t string) bool {
	switch t {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	}
	return false
}

func jsFunction(c *tsContext, name, class string, fnNode, outer *sitter.Node, exported bool) {
	if name == "" {
		return
	}
	kind := types.KindFunction
	if class != "" {
		kind = types.KindMethod
	}
	paramsNode := fnNode.ChildByFieldName("parameters")
	if paramsNode == nil {
		// single-parameter arrow functions: x => ...
		if p := fnNode.ChildByFieldName("parameter"); p != nil {
			paramsNode = p
		}
	}

	var result string
	if ret := fnNode.ChildByFieldName("return_type"); ret != nil {
		result = tsType(c, ret)
	}

	span := c.span(outer)
	c.addSymbol(types.Symbol{
		Name:      name,
		Kind:      kind,
		Parent:    class,
		Span:      span,
		Signature: jsSignature(c, name, paramsNode, result),
		Scope:     jsScope(exported),
	})

	fn := types.Function{
		Name:     name,
		Parent:   class,
		Span:     span,
		Exported: exported,
		Params:   jsParams(c, paramsNode),
	}
	if result != "" {
		fn.Results = []string{result}
	}
	for _, p := range fn.Params {
		fn.Bindings = append(fn.Bindings, types.Binding{Name: strings.TrimPrefix(p.Name, "..."), Line: span.StartLine, Kind: "param"})
	}
	body := fnNode.ChildByFieldName("body")
	if body != nil && body.Type() != "statement_block" {
		// expression-bodied arrow function
		fn.Returns = 1
	}
	jsRules.collect(c, body, &fn)
	c.result.Functions = append(c.result.Functions, fn)
}

func jsSignature(c *tsContext, name string, params *sitter.Node, result string) string {
	p := "()"
	if params != nil {
		p = collapse(c.text(params))
		if !strings.HasPrefix(p, "(") {
			p = "(" + p + ")"
		}
	}
	if result != "" {
		p += ": " + result
	}
	return "function " + name + p
}

// tsType is the text of a type annotation without its colon
func tsType(c *tsContext, n *sitter.Node) string {
	return strings.TrimSpace(strings.TrimPrefix(collapse(c.text(n)), ":"))
}

func jsParams(c *tsContext, n *sitter.Node) []types.Param {
	if n == nil {
		return nil
	}
	if n.Type() == "identifier" {
		return []types.Param{{Name: c.text(n)}}
	}
	var out []types.Param
	for i := 0; i < int(n.NamedChildCount()); i++ {
		p := n.NamedChild(i)
		switch p.Type() {
		case "identifier", "rest_pattern", "object_pattern", "array_pattern":
			out = append(out, types.Param{Name: collapse(c.text(p))})
		case "assignment_pattern":
			out = append(out, types.Param{Name: c.text(p.ChildByFieldName("left"))})
		case "required_parameter", "optional_parameter":
			param := types.Param{Name: collapse(c.text(p.ChildByFieldName("pattern")))}
			if t := p.ChildByFieldName("type"); t != nil {
				param.Type = tsType(c, t)
			}
			out = append(out, param)
		}
	}
	return out
}

func jsClass(c *tsContext, decl, outer *sitter.Node, exported bool) {
	name := c.text(decl.ChildByFieldName("name"))
	if name == "" {
		return
	}
	sig := "class " + name
	c.addSymbol(types.Symbol{
		Name:      name,
		Kind:      types.KindClass,
		Span:      c.span(outer),
		Signature: sig,
		Scope:     jsScope(exported),
	})
	body := decl.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "method_definition":
			mname := c.text(member.ChildByFieldName("name"))
			public := exported && !strings.HasPrefix(mname, "#") && !strings.HasPrefix(mname, "_") && !tsHidden(c, member)
			jsFunction(c, mname, name, member, member, public)
		case "field_definition", "public_field_definition":
			prop := member.ChildByFieldName("property")
			if prop == nil {
				// TypeScript names the field "name"
				prop = member.ChildByFieldName("name")
			}
			if prop == nil {
				continue
			}
			fname := c.text(prop)
			c.addSymbol(types.Symbol{
				Name:      fname,
				Kind:      types.KindField,
				Parent:    name,
				Span:      c.span(member),
				Signature: firstLine(c.text(member)),
				Scope:     jsScope(exported && !strings.HasPrefix(fname, "#") && !tsHidden(c, member)),
			})
		}
	}
}

// tsHidden reports a private or protected class member
func tsHidden(c *tsContext, member *sitter.Node) bool {
	for i := 0; i < int(member.NamedChildCount()); i++ {
		if m := member.NamedChild(i); m.Type() == "accessibility_modifier" {
			return c.text(m) != "public"
		}
	}
	return false
}

// jsRequires records CommonJS require("x") calls as imports
func jsRequires(c *tsContext, n *sitter.Node) {
	if n.Type() == "call_expression" {
		fn := n.ChildByFieldName("function")
		args := n.ChildByFieldName("arguments")
		if fn != nil && fn.Type() == "identifier" && c.text(fn) == "require" && args != nil && args.NamedChildCount() == 1 {
			if arg := args.NamedChild(0); arg.Type() == "string" {
				c.result.Imports = append(c.result.Imports, types.Import{Path: unquote(c.text(arg)), Line: line(n)})
			}
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		jsRequires(c, n.NamedChild(i))
	}
}

func jsCallee(c *tsContext, n *sitter.Node) (types.CallSite, bool) {
	var fn *sitter.Node
	switch n.Type() {
	case "call_expression":
		fn = n.ChildByFieldName("function")
	case "new_expression":
		fn = n.ChildByFieldName("constructor")
	default:
		return types.CallSite{}, false
	}
	if fn == nil {
		return types.CallSite{}, false
	}
	switch fn.Type() {
	case "identifier":
		name := c.text(fn)
		if name == "require" {
			return types.CallSite{}, false
		}
		return types.CallSite{Name: name, Line: line(n)}, true
	case "member_expression":
		return types.CallSite{
			Name:      c.text(fn.ChildByFieldName("property")),
			Qualifier: c.text(fn.ChildByFieldName("object")),
			Line:      line(n),
		}, true
	}
	return types.CallSite{}, false
}

func jsBindings(c *tsContext, n *sitter.Node) []types.Binding {
	switch n.Type() {
	case "variable_declarator":
		name := n.ChildByFieldName("name")
		if name == nil || name.Type() != "identifier" {
			return nil
		}
		return []types.Binding{{Name: c.text(name), Line: line(n), Kind: "define", Sources: dedupe(jsReads(c, n.ChildByFieldName("value")))}}
	case "assignment_expression":
		left := n.ChildByFieldName("left")
		if left == nil || left.Type() != "identifier" {
			return nil
		}
		return []types.Binding{{Name: c.text(left), Line: line(n), Kind: "assign", Sources: dedupe(jsReads(c, n.ChildByFieldName("right")))}}
	case "augmented_assignment_expression":
		left := n.ChildByFieldName("left")
		if left == nil || left.Type() != "identifier" {
			return nil
		}
		name := c.text(left)
		return []types.Binding{{Name: name, Line: line(n), Kind: "assign", Sources: dedupe(append([]string{name}, jsReads(c, n.ChildByFieldName("right"))...))}}
	case "update_expression":
		arg := n.ChildByFieldName("argument")
		if arg == nil || arg.Type() != "identifier" {
			return nil
		}
		name := c.text(arg)
		return []types.Binding{{Name: name, Line: line(n), Kind: "assign", Sources: []string{name}}}
	case "for_in_statement":
		left := n.ChildByFieldName("left")
		if left == nil || left.Type() != "identifier" {
			return nil
		}
		return []types.Binding{{Name: c.text(left), Line: line(n), Kind: "range", Sources: dedupe(jsReads(c, n.ChildByFieldName("right")))}}
	}
	return nil
}

func jsReads(c *tsContext, n *sitter.Node) []string {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier", "shorthand_property_identifier":
		return []string{c.text(n)}
	case "member_expression":
		return jsReads(c, n.ChildByFieldName("object"))
	case "call_expression":
		var out []string
		if fn := n.ChildByFieldName("function"); fn != nil && fn.Type() != "identifier" {
			out = jsReads(c, fn)
		}
		return append(out, jsReads(c, n.ChildByFieldName("arguments"))...)
	case "pair":
		return jsReads(c, n.ChildByFieldName("value"))
	case "arrow_function", "function", "function_expression":
		return nil
	}
	var out []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, jsReads(c, n.NamedChild(i))...)
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
