package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/dshills/codescope/pkg/types"
)

// NewPythonParser creates a tree-sitter backed Python parser
func NewPythonParser() *TreeSitterParser {
	return newTreeSitterParser("python", python.GetLanguage(), pyExtract)
}

var pyRules = &bodyRules{
	nesting: map[string]bool{
		"if_statement": true, "for_statement": true, "while_statement": true,
		"try_statement": true, "with_statement": true, "match_statement": true,
	},
	boundary: map[string]bool{"function_definition": true, "lambda": true, "class_definition": true},
	ret:      "return_statement",
	callee:   pyCallee,
	bindings: pyBindings,
}

func pyExtract(c *tsContext, root *sitter.Node) {
	pyWalk(c, root, "")
}

func pyWalk(c *tsContext, n *sitter.Node, class string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "decorated_definition":
			def := child.ChildByFieldName("definition")
			if def == nil {
				continue
			}
			switch def.Type() {
			case "function_definition":
				pyFunction(c, def, child, class)
			case "class_definition":
				pyClass(c, def, child)
			}
		case "function_definition":
			pyFunction(c, child, child, class)
		case "class_definition":
			pyClass(c, child, child)
		case "import_statement", "import_from_statement":
			pyImport(c, child)
		case "expression_statement":
			pyAssignment(c, child, class)
		default:
			pyWalk(c, child, class)
		}
	}
}

func pyScope(name string) types.SymbolScope {
	if strings.HasPrefix(name, "_") && !(strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")) {
		return types.ScopeUnexported
	}
	return types.ScopeExported
}

func pyFunction(c *tsContext, def, outer *sitter.Node, class string) {
	name := c.text(def.ChildByFieldName("name"))
	if name == "" {
		return
	}
	kind := types.KindFunction
	if class != "" {
		kind = types.KindMethod
	}
	paramsNode := def.ChildByFieldName("parameters")
	retNode := def.ChildByFieldName("return_type")

	sig := "def " + name + collapse(c.text(paramsNode))
	if retNode != nil {
		sig += " -> " + c.text(retNode)
	}

	span := c.span(outer)
	c.addSymbol(types.Symbol{
		Name:      name,
		Kind:      kind,
		Parent:    class,
		Span:      span,
		Signature: sig,
		Scope:     pyScope(name),
	})

	fn := types.Function{
		Name:     name,
		Parent:   class,
		Span:     span,
		Exported: pyScope(name) == types.ScopeExported && pyScope(class) == types.ScopeExported,
		Params:   pyParams(c, paramsNode, class != ""),
	}
	if retNode != nil {
		fn.Results = []string{c.text(retNode)}
	}
	for _, p := range fn.Params {
		fn.Bindings = append(fn.Bindings, types.Binding{Name: strings.TrimLeft(p.Name, "*"), Line: span.StartLine, Kind: "param"})
	}
	pyRules.collect(c, def.ChildByFieldName("body"), &fn)
	c.result.Functions = append(c.result.Functions, fn)
}

func pyParams(c *tsContext, n *sitter.Node, method bool) []types.Param {
	if n == nil {
		return nil
	}
	var out []types.Param
	for i := 0; i < int(n.NamedChildCount()); i++ {
		p := n.NamedChild(i)
		var param types.Param
		switch p.Type() {
		case "identifier":
			param.Name = c.text(p)
		case "typed_parameter":
			if p.NamedChildCount() > 0 {
				param.Name = c.text(p.NamedChild(0))
			}
			param.Type = c.text(p.ChildByFieldName("type"))
		case "default_parameter":
			param.Name = c.text(p.ChildByFieldName("name"))
		case "typed_default_parameter":
			param.Name = c.text(p.ChildByFieldName("name"))
			param.Type = c.text(p.ChildByFieldName("type"))
		case "list_splat_pattern", "dictionary_splat_pattern":
			param.Name = c.text(p)
		default:
			continue
		}
		if method && len(out) == 0 && i == 0 && (param.Name == "self" || param.Name == "cls") {
			continue
		}
		out = append(out, param)
	}
	return out
}

func pyClass(c *tsContext, def, outer *sitter.Node) {
	name := c.text(def.ChildByFieldName("name"))
	if name == "" {
		return
	}
	sig := "class " + name
	if bases := def.ChildByFieldName("superclasses"); bases != nil {
		sig += collapse(c.text(bases))
	}
	c.addSymbol(types.Symbol{
		Name:      name,
		Kind:      types.KindClass,
		Span:      c.span(outer),
		Signature: sig,
		Scope:     pyScope(name),
	})
	if body := def.ChildByFieldName("body"); body != nil {
		pyWalk(c, body, name)
	}
}

func pyImport(c *tsContext, n *sitter.Node) {
	ln := line(n)
	if n.Type() == "import_from_statement" {
		if mod := n.ChildByFieldName("module_name"); mod != nil {
			c.result.Imports = append(c.result.Imports, types.Import{Path: c.text(mod), Line: ln})
		}
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			c.result.Imports = append(c.result.Imports, types.Import{Path: c.text(child), Line: ln})
		case "aliased_import":
			c.result.Imports = append(c.result.Imports, types.Import{
				Path:  c.text(child.ChildByFieldName("name")),
				Alias: c.text(child.ChildByFieldName("alias")),
				Line:  ln,
			})
		}
	}
}

// pyAssignment records module variables and class attributes
func pyAssignment(c *tsContext, stmt *sitter.Node, class string) {
	if stmt.NamedChildCount() == 0 {
		return
	}
	assign := stmt.NamedChild(0)
	if assign.Type() != "assignment" {
		return
	}
	left := assign.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return
	}
	name := c.text(left)
	kind := types.KindVar
	switch {
	case class != "":
		kind = types.KindField
	case name == strings.ToUpper(name):
		kind = types.KindConst
	}
	c.addSymbol(types.Symbol{
		Name:      name,
		Kind:      kind,
		Parent:    class,
		Span:      c.span(stmt),
		Signature: collapse(c.text(assign)),
		Scope:     pyScope(name),
	})
}

func pyCallee(c *tsContext, n *sitter.Node) (types.CallSite, bool) {
	if n.Type() != "call" {
		return types.CallSite{}, false
	}
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return types.CallSite{}, false
	}
	switch fn.Type() {
	case "identifier":
		return types.CallSite{Name: c.text(fn), Line: line(n)}, true
	case "attribute":
		return types.CallSite{
			Name:      c.text(fn.ChildByFieldName("attribute")),
			Qualifier: c.text(fn.ChildByFieldName("object")),
			Line:      line(n),
		}, true
	}
	return types.CallSite{}, false
}

func pyBindings(c *tsContext, n *sitter.Node) []types.Binding {
	switch n.Type() {
	case "assignment":
		src := dedupe(pyReads(c, n.ChildByFieldName("right")))
		return pyTargets(c, n.ChildByFieldName("left"), "define", src)
	case "augmented_assignment":
		left := n.ChildByFieldName("left")
		if left == nil || left.Type() != "identifier" {
			return nil
		}
		name := c.text(left)
		src := dedupe(append([]string{name}, pyReads(c, n.ChildByFieldName("right"))...))
		return []types.Binding{{Name: name, Line: line(n), Kind: "assign", Sources: src}}
	case "for_statement":
		src := dedupe(pyReads(c, n.ChildByFieldName("right")))
		return pyTargets(c, n.ChildByFieldName("left"), "range", src)
	}
	return nil
}

func pyTargets(c *tsContext, n *sitter.Node, kind string, src []string) []types.Binding {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier":
		return []types.Binding{{Name: c.text(n), Line: line(n), Kind: kind, Sources: src}}
	case "pattern_list", "tuple_pattern", "list_pattern":
		var out []types.Binding
		for i := 0; i < int(n.NamedChildCount()); i++ {
			out = append(out, pyTargets(c, n.NamedChild(i), kind, src)...)
		}
		return out
	}
	return nil
}

// pyReads returns identifiers read by an expression
func pyReads(c *tsContext, n *sitter.Node) []string {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier":
		return []string{c.text(n)}
	case "attribute":
		return pyReads(c, n.ChildByFieldName("object"))
	case "call":
		var out []string
		if fn := n.ChildByFieldName("function"); fn != nil && fn.Type() != "identifier" {
			out = pyReads(c, fn)
		}
		return append(out, pyReads(c, n.ChildByFieldName("arguments"))...)
	case "keyword_argument":
		return pyReads(c, n.ChildByFieldName("value"))
	case "lambda":
		return nil
	}
	var out []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, pyReads(c, n.NamedChild(i))...)
	}
	return out
}
