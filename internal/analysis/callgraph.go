package analysis

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/dshills/codescope/pkg/types"
)

// ExternalPrefix starts the ID of every synthetic node standing in for an
// unresolved call target or an import outside the corpus
const ExternalPrefix = "external#"

// definition is a callable a call site can resolve to
type definition struct {
	id     string
	file   string
	dir    string
	pkg    string
	parent string
	lang   string
}

// defIndex finds definitions by bare name
type defIndex struct {
	byName map[string][]definition
	seen   map[string]bool
}

func newDefIndex() *defIndex {
	return &defIndex{byName: make(map[string][]definition), seen: make(map[string]bool)}
}

func (x *defIndex) add(name string, d definition) {
	if x.seen[d.id] {
		return
	}
	x.seen[d.id] = true
	x.byName[name] = append(x.byName[name], d)
}

// CallGraph builds the call graph of every parsed file in src. A call site
// resolves to a definition when one is unambiguous: first within the
// caller's file, then across the corpus. Unqualified Go calls only resolve
// within the caller's directory since they cannot leave the package.
// Anything else becomes an unresolved-call edge to an external node.
func CallGraph(ctx context.Context, src Source) (*types.Graph, error) {
	items := collect(src)
	g := types.NewGraph(types.GraphCall)
	idx := newDefIndex()

	for _, it := range items {
		rel := it.file.RelPath
		for _, fn := range it.parse.Functions {
			qn := fn.QualifiedName()
			id := types.NodeID(rel, qn)
			kind := types.KindFunction
			if fn.Parent != "" {
				kind = types.KindMethod
			}
			g.AddNode(types.Node{ID: id, Name: qn, File: rel, Kind: string(kind), Line: fn.Span.StartLine})
			idx.add(fn.Name, definition{
				id:     id,
				file:   rel,
				dir:    path.Dir(rel),
				pkg:    packageName(it),
				parent: fn.Parent,
				lang:   it.parse.Language,
			})
		}
	}

	perFile, err := mapFiles(ctx, items, idx.resolveFile)
	if err != nil {
		return nil, err
	}
	for _, edges := range perFile {
		for _, e := range edges {
			if e.Kind == types.EdgeUnresolvedCall && !g.HasNode(e.To) {
				g.AddNode(externalNode(e.To))
			}
			g.AddEdge(e)
		}
	}
	g.Sort()
	return g, nil
}

func (x *defIndex) resolveFile(it parsed) []types.Edge {
	imports := importNames(it.parse)
	var edges []types.Edge
	for _, fn := range it.parse.Functions {
		from := types.NodeID(it.file.RelPath, fn.QualifiedName())
		for _, call := range fn.Calls {
			to, ok := x.resolve(it, imports, call)
			kind := types.EdgeCalls
			if !ok {
				kind = types.EdgeUnresolvedCall
			}
			edges = append(edges, types.Edge{From: from, To: to, Kind: kind, Line: call.Line})
		}
	}
	return edges
}

// resolve returns the node ID a call site refers to and whether it resolved
func (x *defIndex) resolve(it parsed, imports map[string]string, call types.CallSite) (string, bool) {
	cands := x.byName[call.Name]

	if pkg, ok := imports[call.Qualifier]; ok && call.Qualifier != "" {
		var match []definition
		for _, d := range cands {
			if d.parent == "" && d.pkg == pkg {
				match = append(match, d)
			}
		}
		if len(match) == 1 {
			return match[0].id, true
		}
		return ExternalPrefix + call.Qualifier + "." + call.Name, false
	}

	// qualified calls on values are method calls; bare calls are functions
	wantMethod := call.Qualifier != ""
	var kindMatch []definition
	for _, d := range cands {
		if (d.parent != "") == wantMethod {
			kindMatch = append(kindMatch, d)
		}
	}
	if wantMethod && len(kindMatch) == 0 {
		kindMatch = cands
	}

	var sameFile, reachable []definition
	for _, d := range kindMatch {
		if d.file == it.file.RelPath {
			sameFile = append(sameFile, d)
		}
		if wantMethod || it.parse.Language != "go" || d.lang != "go" || d.dir == path.Dir(it.file.RelPath) {
			reachable = append(reachable, d)
		}
	}
	switch {
	case len(sameFile) == 1:
		return sameFile[0].id, true
	case len(sameFile) == 0 && len(reachable) == 1:
		return reachable[0].id, true
	}
	return ExternalPrefix + call.Name, false
}

func externalNode(id string) types.Node {
	return types.Node{ID: id, Name: strings.TrimPrefix(id, ExternalPrefix), Kind: "external", External: true}
}

// majorVersion matches the /vN suffix of Go module paths
var majorVersion = regexp.MustCompile(`^v[0-9]+$`)

// importNames maps each name a file can use to reach an import onto the
// package name that import provides
func importNames(p *types.ParseResult) map[string]string {
	names := make(map[string]string, len(p.Imports))
	for _, imp := range p.Imports {
		pkg := importBase(imp.Path, p.Language)
		if pkg == "" {
			continue
		}
		if imp.Alias != "" && imp.Alias != "_" && imp.Alias != "." {
			names[imp.Alias] = pkg
			continue
		}
		names[pkg] = pkg
		if p.Language == "python" {
			names[imp.Path] = pkg
		}
	}
	return names
}

// importBase is the package name an import path conventionally binds
func importBase(importPath, lang string) string {
	sep := "/"
	switch lang {
	case "python":
		sep = "."
	case "rust":
		sep = "::"
	}
	parts := strings.Split(strings.Trim(importPath, sep), sep)
	base := parts[len(parts)-1]
	if lang == "go" && majorVersion.MatchString(base) && len(parts) > 1 {
		base = parts[len(parts)-2]
	}
	return base
}

// packageName is the name other files import a definition's file under
func packageName(it parsed) string {
	if it.parse.Package != "" {
		return it.parse.Package
	}
	base := path.Base(it.file.RelPath)
	return strings.TrimSuffix(base, path.Ext(base))
}
