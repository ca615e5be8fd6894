package parser

import (
	"context"
	"fmt"
	"go/ast"
	goparser "go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/dshills/codescope/pkg/types"
)

// GoParser extracts symbols and function facts from Go source using go/ast
type GoParser struct{}

// NewGoParser creates a Go parser
func NewGoParser() *GoParser {
	return &GoParser{}
}

// Language implements LanguageParser
func (p *GoParser) Language() string { return "go" }

// Parse implements LanguageParser. Syntax errors are recorded on the result
// and whatever partial AST go/parser produced is still used.
func (p *GoParser) Parse(ctx context.Context, file types.SourceFile) (*types.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &types.ParseResult{File: file.RelPath, Language: "go"}

	fset := token.NewFileSet()
	f, err := goparser.ParseFile(fset, file.RelPath, file.Content, goparser.SkipObjectResolution)
	if err != nil {
		result.AddError(file.RelPath, 0, 0, fmt.Sprintf("syntax error: %v", err))
	}
	if f == nil {
		return result, nil
	}

	if f.Name != nil {
		result.Package = f.Name.Name
	}

	e := &goExtractor{fset: fset, file: file.RelPath}
	result.Imports = e.imports(f)

	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			e.funcDecl(d)
		case *ast.GenDecl:
			e.genDecl(d)
		}
	}
	result.Symbols = e.symbols
	result.Functions = e.functions

	for i := range result.Symbols {
		result.Symbols[i].Language = "go"
	}
	return result, nil
}

type goExtractor struct {
	fset      *token.FileSet
	file      string
	symbols   []types.Symbol
	functions []types.Function
}

func (e *goExtractor) imports(f *ast.File) []types.Import {
	imports := make([]types.Import, 0, len(f.Imports))
	for _, imp := range f.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			path = strings.Trim(imp.Path.Value, "\"`")
		}
		spec := types.Import{Path: path, Line: e.fset.Position(imp.Pos()).Line}
		if imp.Name != nil {
			spec.Alias = imp.Name.Name
		}
		imports = append(imports, spec)
	}
	return imports
}

func (e *goExtractor) span(from, to token.Pos) types.Span {
	start := e.fset.Position(from)
	end := e.fset.Position(to)
	return types.Span{StartLine: start.Line, StartCol: start.Column, EndLine: end.Line, EndCol: end.Column}
}

func (e *goExtractor) funcDecl(fd *ast.FuncDecl) {
	sym := types.Symbol{
		Name:      fd.Name.Name,
		Kind:      types.KindFunction,
		File:      e.file,
		Span:      e.span(fd.Pos(), fd.End()),
		Signature: e.funcSignature(fd),
		Scope:     scopeOf(fd.Name.Name),
	}
	if fd.Recv != nil && len(fd.Recv.List) > 0 {
		sym.Kind = types.KindMethod
		sym.Parent = receiverType(fd.Recv.List[0].Type)
	}
	e.symbols = append(e.symbols, sym)

	fn := types.Function{
		Name:     sym.Name,
		Parent:   sym.Parent,
		Span:     sym.Span,
		Exported: token.IsExported(sym.Name),
		Params:   params(fd.Type.Params),
		Results:  results(fd.Type.Results),
	}
	if fd.Body != nil {
		fn.Calls = e.calls(fd.Body)
		fn.Bindings = e.bindings(fd)
		fn.MaxNesting = maxNesting(fd.Body)
		fn.Returns = countReturns(fd.Body)
	}
	e.functions = append(e.functions, fn)
}

func (e *goExtractor) genDecl(gd *ast.GenDecl) {
	for _, spec := range gd.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			e.typeSpec(s)
		case *ast.ValueSpec:
			kind := types.KindVar
			if gd.Tok == token.CONST {
				kind = types.KindConst
			}
			for _, name := range s.Names {
				if name.Name == "_" {
					continue
				}
				sig := name.Name
				if s.Type != nil {
					sig = name.Name + " " + exprString(s.Type)
				}
				e.symbols = append(e.symbols, types.Symbol{
					Name:      name.Name,
					Kind:      kind,
					File:      e.file,
					Span:      e.span(name.Pos(), s.End()),
					Signature: sig,
					Scope:     scopeOf(name.Name),
				})
			}
		}
	}
}

func (e *goExtractor) typeSpec(ts *ast.TypeSpec) {
	sym := types.Symbol{
		Name:  ts.Name.Name,
		Kind:  types.KindType,
		File:  e.file,
		Span:  e.span(ts.Pos(), ts.End()),
		Scope: scopeOf(ts.Name.Name),
	}
	switch t := ts.Type.(type) {
	case *ast.StructType:
		sym.Kind = types.KindStruct
		sym.Signature = fmt.Sprintf("type %s struct", ts.Name.Name)
		e.symbols = append(e.symbols, sym)
		e.fields(ts.Name.Name, t)
		return
	case *ast.InterfaceType:
		sym.Kind = types.KindInterface
		sym.Signature = fmt.Sprintf("type %s interface", ts.Name.Name)
	default:
		sym.Signature = fmt.Sprintf("type %s %s", ts.Name.Name, exprString(ts.Type))
	}
	e.symbols = append(e.symbols, sym)
}

func (e *goExtractor) fields(structName string, st *ast.StructType) {
	if st.Fields == nil {
		return
	}
	for _, field := range st.Fields.List {
		for _, name := range field.Names {
			e.symbols = append(e.symbols, types.Symbol{
				Name:      name.Name,
				Kind:      types.KindField,
				File:      e.file,
				Parent:    structName,
				Span:      e.span(name.Pos(), field.End()),
				Signature: name.Name + " " + exprString(field.Type),
				Scope:     scopeOf(name.Name),
			})
		}
	}
}

func (e *goExtractor) funcSignature(fd *ast.FuncDecl) string {
	var sig strings.Builder
	sig.WriteString("func ")
	if fd.Recv != nil && len(fd.Recv.List) > 0 {
		sig.WriteString("(")
		sig.WriteString(exprString(fd.Recv.List[0].Type))
		sig.WriteString(") ")
	}
	sig.WriteString(fd.Name.Name)
	sig.WriteString("(")
	sig.WriteString(fieldListString(fd.Type.Params))
	sig.WriteString(")")
	if res := fd.Type.Results; res != nil && res.NumFields() > 0 {
		if res.NumFields() > 1 || len(res.List[0].Names) > 0 {
			sig.WriteString(" (" + fieldListString(res) + ")")
		} else {
			sig.WriteString(" " + fieldListString(res))
		}
	}
	return sig.String()
}

// calls collects call expressions, including those inside closures
func (e *goExtractor) calls(body *ast.BlockStmt) []types.CallSite {
	var calls []types.CallSite
	ast.Inspect(body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		line := e.fset.Position(call.Lparen).Line
		switch fn := call.Fun.(type) {
		case *ast.Ident:
			if !isBuiltin(fn.Name) {
				calls = append(calls, types.CallSite{Name: fn.Name, Line: line})
			}
		case *ast.SelectorExpr:
			calls = append(calls, types.CallSite{Name: fn.Sel.Name, Qualifier: exprString(fn.X), Line: line})
		case *ast.IndexExpr:
			if id, ok := fn.X.(*ast.Ident); ok {
				calls = append(calls, types.CallSite{Name: id.Name, Line: line})
			}
		}
		return true
	})
	return calls
}

func (e *goExtractor) bindings(fd *ast.FuncDecl) []types.Binding {
	var out []types.Binding
	line := func(p token.Pos) int { return e.fset.Position(p).Line }

	addFields := func(fl *ast.FieldList) {
		if fl == nil {
			return
		}
		for _, f := range fl.List {
			for _, name := range f.Names {
				if name.Name != "_" {
					out = append(out, types.Binding{Name: name.Name, Line: line(name.Pos()), Kind: "param"})
				}
			}
		}
	}
	if fd.Recv != nil {
		addFields(fd.Recv)
	}
	addFields(fd.Type.Params)
	addFields(fd.Type.Results)

	ast.Inspect(fd.Body, func(n ast.Node) bool {
		switch s := n.(type) {
		case *ast.AssignStmt:
			kind := "assign"
			if s.Tok == token.DEFINE {
				kind = "define"
			}
			for i, lhs := range s.Lhs {
				id, ok := lhs.(*ast.Ident)
				if !ok || id.Name == "_" {
					continue
				}
				var src []string
				switch {
				case len(s.Lhs) == len(s.Rhs):
					src = identsIn(s.Rhs[i])
				default:
					for _, r := range s.Rhs {
						src = append(src, identsIn(r)...)
					}
				}
				// x += y reads x too
				if s.Tok != token.DEFINE && s.Tok != token.ASSIGN {
					src = append([]string{id.Name}, src...)
				}
				out = append(out, types.Binding{Name: id.Name, Line: line(id.Pos()), Kind: kind, Sources: dedupe(src)})
			}
		case *ast.ValueSpec:
			for i, id := range s.Names {
				if id.Name == "_" {
					continue
				}
				var src []string
				switch {
				case len(s.Values) == len(s.Names):
					src = identsIn(s.Values[i])
				default:
					for _, v := range s.Values {
						src = append(src, identsIn(v)...)
					}
				}
				out = append(out, types.Binding{Name: id.Name, Line: line(id.Pos()), Kind: "define", Sources: dedupe(src)})
			}
		case *ast.RangeStmt:
			src := dedupe(identsIn(s.X))
			for _, x := range []ast.Expr{s.Key, s.Value} {
				if id, ok := x.(*ast.Ident); ok && id.Name != "_" {
					out = append(out, types.Binding{Name: id.Name, Line: line(id.Pos()), Kind: "range", Sources: src})
				}
			}
		case *ast.IncDecStmt:
			if id, ok := s.X.(*ast.Ident); ok {
				out = append(out, types.Binding{Name: id.Name, Line: line(id.Pos()), Kind: "assign", Sources: []string{id.Name}})
			}
		}
		return true
	})
	return out
}

// identsIn returns identifiers read by an expression. Called function names
// and selector field names are not reads of local variables.
func identsIn(expr ast.Expr) []string {
	var names []string
	ast.Inspect(expr, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.SelectorExpr:
			names = append(names, identsIn(x.X)...)
			return false
		case *ast.CallExpr:
			if _, ok := x.Fun.(*ast.Ident); !ok {
				names = append(names, identsIn(x.Fun)...)
			}
			for _, a := range x.Args {
				names = append(names, identsIn(a)...)
			}
			return false
		case *ast.KeyValueExpr:
			// struct literal keys are field names
			if _, ok := x.Key.(*ast.Ident); !ok {
				names = append(names, identsIn(x.Key)...)
			}
			names = append(names, identsIn(x.Value)...)
			return false
		case *ast.CompositeLit:
			for _, elt := range x.Elts {
				names = append(names, identsIn(elt)...)
			}
			return false
		case *ast.Ident:
			if !isPredeclared(x.Name) {
				names = append(names, x.Name)
			}
		}
		return true
	})
	return names
}

// maxNesting returns the deepest control-flow nesting in body. An else-if
// chain counts as one level. Closures are not counted.
func maxNesting(body *ast.BlockStmt) int {
	deepest := 0
	var walk func(n ast.Node, depth int)
	var visitIf func(s *ast.IfStmt, depth int)

	note := func(d int) {
		if d > deepest {
			deepest = d
		}
	}
	visitIf = func(s *ast.IfStmt, depth int) {
		note(depth)
		walk(s.Body, depth)
		switch el := s.Else.(type) {
		case *ast.IfStmt:
			visitIf(el, depth)
		case *ast.BlockStmt:
			walk(el, depth)
		}
	}
	walk = func(n ast.Node, depth int) {
		ast.Inspect(n, func(c ast.Node) bool {
			if c == n {
				return true
			}
			switch s := c.(type) {
			case *ast.FuncLit:
				return false
			case *ast.IfStmt:
				visitIf(s, depth+1)
				return false
			case *ast.ForStmt, *ast.RangeStmt, *ast.SwitchStmt, *ast.TypeSwitchStmt, *ast.SelectStmt:
				note(depth + 1)
				walk(c, depth+1)
				return false
			}
			return true
		})
	}
	walk(body, 0)
	return deepest
}

func countReturns(body *ast.BlockStmt) int {
	n := 0
	ast.Inspect(body, func(c ast.Node) bool {
		switch c.(type) {
		case *ast.FuncLit:
			return false
		case *ast.ReturnStmt:
			n++
		}
		return true
	})
	return n
}

func params(fl *ast.FieldList) []types.Param {
	if fl == nil {
		return nil
	}
	var out []types.Param
	for _, f := range fl.List {
		typ := exprString(f.Type)
		if len(f.Names) == 0 {
			out = append(out, types.Param{Type: typ})
			continue
		}
		for _, name := range f.Names {
			out = append(out, types.Param{Name: name.Name, Type: typ})
		}
	}
	return out
}

func results(fl *ast.FieldList) []string {
	if fl == nil {
		return nil
	}
	var out []string
	for _, f := range fl.List {
		typ := exprString(f.Type)
		n := len(f.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			out = append(out, typ)
		}
	}
	return out
}

func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	}
	return ""
}

func fieldListString(fl *ast.FieldList) string {
	if fl == nil || len(fl.List) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fl.List))
	for _, field := range fl.List {
		typ := exprString(field.Type)
		if len(field.Names) == 0 {
			parts = append(parts, typ)
			continue
		}
		for _, name := range field.Names {
			parts = append(parts, name.Name+" "+typ)
		}
	}
	return strings.Join(parts, ", ")
}

func exprString(expr ast.Expr) string {
	if expr == nil {
		return ""
	}
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	case *ast.ArrayType:
		if t.Len != nil {
			return "[" + exprString(t.Len) + "]" + exprString(t.Elt)
		}
		return "[]" + exprString(t.Elt)
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", exprString(t.Key), exprString(t.Value))
	case *ast.ChanType:
		switch t.Dir {
		case ast.SEND:
			return "chan<- " + exprString(t.Value)
		case ast.RECV:
			return "<-chan " + exprString(t.Value)
		}
		return "chan " + exprString(t.Value)
	case *ast.FuncType:
		return "func(" + fieldListString(t.Params) + ")"
	case *ast.InterfaceType:
		if t.Methods == nil || len(t.Methods.List) == 0 {
			return "interface{}"
		}
		return "interface{...}"
	case *ast.StructType:
		return "struct{...}"
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + exprString(t.Elt)
	case *ast.IndexExpr:
		return exprString(t.X) + "[" + exprString(t.Index) + "]"
	case *ast.IndexListExpr:
		idx := make([]string, len(t.Indices))
		for i, x := range t.Indices {
			idx[i] = exprString(x)
		}
		return exprString(t.X) + "[" + strings.Join(idx, ", ") + "]"
	case *ast.BasicLit:
		return t.Value
	case *ast.ParenExpr:
		return "(" + exprString(t.X) + ")"
	case *ast.CallExpr:
		return exprString(t.Fun) + "(...)"
	case *ast.UnaryExpr:
		return t.Op.String() + exprString(t.X)
	default:
		return "..."
	}
}

func scopeOf(name string) types.SymbolScope {
	if token.IsExported(name) {
		return types.ScopeExported
	}
	return types.ScopeUnexported
}

var goBuiltins = map[string]struct{}{
	"append": {}, "cap": {}, "clear": {}, "close": {}, "complex": {}, "copy": {},
	"delete": {}, "imag": {}, "len": {}, "make": {}, "max": {}, "min": {},
	"new": {}, "panic": {}, "print": {}, "println": {}, "real": {}, "recover": {},
}

func isBuiltin(name string) bool {
	_, ok := goBuiltins[name]
	return ok
}

func isPredeclared(name string) bool {
	switch name {
	case "nil", "true", "false", "iota", "_":
		return true
	}
	return false
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := names[:0:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
