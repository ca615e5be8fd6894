package analysis

import (
	"bufio"
	"bytes"
	"context"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/dshills/codescope/pkg/types"
)

// DependencyOptions tunes import resolution
type DependencyOptions struct {
	// ModulePath is the Go module path. When empty it is read from a go.mod
	// at the corpus root.
	ModulePath string
}

// jsExtensions are tried, in order, when a relative specifier has none
var jsExtensions = []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx"}

// depResolver maps import paths onto corpus files
type depResolver struct {
	module string
	files  map[string]bool
	goDirs map[string][]string // dir -> non-test Go files
}

// DependencyGraph builds the file dependency graph of src. Nodes are files
// with a structured language; imports that resolve into the corpus become
// depends-on edges between files, the rest point at external module nodes.
// Cycles are found with Tarjan's algorithm and reported on the graph.
func DependencyGraph(ctx context.Context, src Source, opts DependencyOptions) (*types.Graph, error) {
	all := src.Files()
	r := &depResolver{module: opts.ModulePath, files: make(map[string]bool, len(all)), goDirs: make(map[string][]string)}
	for _, f := range all {
		r.files[f.RelPath] = true
		if f.Language == "go" && !strings.HasSuffix(f.RelPath, "_test.go") {
			dir := path.Dir(f.RelPath)
			r.goDirs[dir] = append(r.goDirs[dir], f.RelPath)
		}
		if r.module == "" && f.RelPath == "go.mod" {
			r.module = ModulePath(f.Content)
		}
	}

	var items []parsed
	for _, it := range collect(src) {
		if dependencyLanguage(it.parse.Language) {
			items = append(items, it)
		}
	}

	g := types.NewGraph(types.GraphDependency)
	for _, it := range items {
		g.AddNode(types.Node{ID: it.file.RelPath, Name: it.file.RelPath, File: it.file.RelPath, Kind: "file"})
	}

	perFile, err := mapFiles(ctx, items, r.fileEdges)
	if err != nil {
		return nil, err
	}
	for _, edges := range perFile {
		for _, e := range edges {
			if strings.HasPrefix(e.To, ExternalPrefix) && !g.HasNode(e.To) {
				g.AddNode(types.Node{ID: e.To, Name: strings.TrimPrefix(e.To, ExternalPrefix), Kind: "module", External: true})
			}
			g.AddEdge(e)
		}
	}
	g.Sort()
	g.Cycles = Cycles(g)
	return g, nil
}

func dependencyLanguage(lang string) bool {
	switch lang {
	case "go", "python", "javascript", "typescript", "rust":
		return true
	}
	return false
}

func (r *depResolver) fileEdges(it parsed) []types.Edge {
	from := it.file.RelPath
	var edges []types.Edge
	for _, imp := range it.parse.Imports {
		targets := r.resolve(it.file.RelPath, it.parse.Language, imp.Path)
		if len(targets) == 0 {
			edges = append(edges, types.Edge{From: from, To: ExternalPrefix + imp.Path, Kind: types.EdgeDependsOn, Line: imp.Line})
			continue
		}
		for _, to := range targets {
			if to != from {
				edges = append(edges, types.Edge{From: from, To: to, Kind: types.EdgeDependsOn, Line: imp.Line})
			}
		}
	}
	return edges
}

// resolve returns the corpus files an import refers to, or nil
func (r *depResolver) resolve(from, lang, importPath string) []string {
	switch lang {
	case "go":
		return r.resolveGo(importPath)
	case "python":
		return r.resolvePython(from, importPath)
	case "rust":
		return r.resolveRust(from, importPath)
	default:
		return r.resolveJS(from, importPath)
	}
}

// resolveGo maps a module-relative import path onto the package directory
func (r *depResolver) resolveGo(importPath string) []string {
	if r.module == "" {
		return nil
	}
	var dir string
	switch {
	case importPath == r.module:
		dir = "."
	case strings.HasPrefix(importPath, r.module+"/"):
		dir = strings.TrimPrefix(importPath, r.module+"/")
	default:
		return nil
	}
	return r.goDirs[dir]
}

// resolvePython handles dotted module paths, relative to the root or to
// the importing file's package for leading dots
func (r *depResolver) resolvePython(from, importPath string) []string {
	base := ""
	rest := importPath
	if strings.HasPrefix(importPath, ".") {
		dots := len(importPath) - len(strings.TrimLeft(importPath, "."))
		base = path.Dir(from)
		for range dots - 1 {
			base = path.Dir(base)
		}
		rest = importPath[dots:]
	}
	mod := strings.ReplaceAll(rest, ".", "/")
	prefixes := []string{base}
	if base == "" {
		prefixes = []string{"", "src"}
	}
	var candidates []string
	for _, prefix := range prefixes {
		p := path.Join(prefix, mod)
		candidates = append(candidates, p+".py", p+".pyi", path.Join(p, "__init__.py"))
	}
	return r.first(candidates)
}

// resolveJS handles relative specifiers; bare specifiers are packages
func (r *depResolver) resolveJS(from, spec string) []string {
	if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") {
		return nil
	}
	p := path.Join(path.Dir(from), spec)
	candidates := []string{p}
	for _, ext := range jsExtensions {
		candidates = append(candidates, p+ext)
	}
	for _, ext := range jsExtensions {
		candidates = append(candidates, path.Join(p, "index"+ext))
	}
	return r.first(candidates)
}

// resolveRust maps crate::, self:: and super:: paths onto module files.
// The longest path prefix naming a file wins, so an imported item resolves
// to the module declaring it. Other crates are external.
func (r *depResolver) resolveRust(from, importPath string) []string {
	segs := strings.Split(strings.TrimPrefix(importPath, "::"), "::")
	var base string
	switch segs[0] {
	case "crate":
		base = r.crateRoot(from)
	case "self", "super":
		base = rustModuleDir(from)
	default:
		return nil
	}
	rest := segs[1:]
	if segs[0] == "super" {
		base = path.Dir(base)
	}
	for len(rest) > 0 && rest[0] == "super" {
		base = path.Dir(base)
		rest = rest[1:]
	}

	var candidates []string
	for k := len(rest); k >= 1; k-- {
		p := path.Join(append([]string{base}, rest[:k]...)...)
		candidates = append(candidates, p+".rs", path.Join(p, "mod.rs"))
	}
	if len(rest) == 0 {
		candidates = append(candidates, base+".rs", path.Join(base, "mod.rs"))
	}
	return r.first(candidates)
}

// crateRoot is the nearest directory above from holding lib.rs or main.rs,
// else the enclosing src directory
func (r *depResolver) crateRoot(from string) string {
	for dir := path.Dir(from); ; dir = path.Dir(dir) {
		if r.files[path.Join(dir, "lib.rs")] || r.files[path.Join(dir, "main.rs")] {
			return dir
		}
		if dir == "." || dir == "/" {
			break
		}
	}
	parts := strings.Split(path.Dir(from), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "src" {
			return path.Join(parts[:i+1]...)
		}
	}
	return "."
}

// rustModuleDir is the directory holding the children of from's module
func rustModuleDir(from string) string {
	switch base := path.Base(from); base {
	case "mod.rs", "lib.rs", "main.rs":
		return path.Dir(from)
	default:
		return path.Join(path.Dir(from), strings.TrimSuffix(base, ".rs"))
	}
}

func (r *depResolver) first(candidates []string) []string {
	for _, c := range candidates {
		if r.files[c] {
			return []string{c}
		}
	}
	return nil
}

// ModulePath reads the module directive from go.mod content
func ModulePath(gomod []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(gomod))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "module"); ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t') {
			mod := strings.TrimSpace(rest)
			if i := strings.Index(mod, "//"); i >= 0 {
				mod = strings.TrimSpace(mod[:i])
			}
			return strings.Trim(mod, `"`)
		}
	}
	return ""
}

// Cycles returns the strongly connected components of g that contain a
// cycle: components of two or more nodes, or a node with a self edge.
// Members of each cycle are sorted and cycles are ordered by first member.
func Cycles(g *types.Graph) [][]string {
	succ := make(map[string][]string, len(g.Nodes))
	selfLoop := make(map[string]bool)
	for _, e := range g.Edges {
		if e.From == e.To {
			selfLoop[e.From] = true
		}
		succ[e.From] = append(succ[e.From], e.To)
	}

	t := &tarjan{succ: succ, index: make(map[string]int), low: make(map[string]int), onStack: make(map[string]bool)}
	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, seen := t.index[id]; !seen {
			t.strongConnect(id)
		}
	}

	var cycles [][]string
	for _, scc := range t.components {
		if len(scc) > 1 || selfLoop[scc[0]] {
			slices.Sort(scc)
			cycles = append(cycles, scc)
		}
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

type tarjan struct {
	succ       map[string][]string
	index      map[string]int
	low        map[string]int
	onStack    map[string]bool
	stack      []string
	next       int
	components [][]string
}

func (t *tarjan) strongConnect(v string) {
	t.index[v] = t.next
	t.low[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.succ[v] {
		if _, seen := t.index[w]; !seen {
			t.strongConnect(w)
			t.low[v] = min(t.low[v], t.low[w])
		} else if t.onStack[w] {
			t.low[v] = min(t.low[v], t.index[w])
		}
	}

	if t.low[v] == t.index[v] {
		var scc []string
		for {
			w := t.stack[len(t.stack)-1]
			t.stack = t.stack[:len(t.stack)-1]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		t.components = append(t.components, scc)
	}
}
