package commands

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/dshills/codescope/pkg/types"
)

// Params is implemented by every command's parameter struct
type Params interface {
	root() string
	setRoot(string)
	validate() error
}

// Scope is embedded in every parameter struct. Root is absolute; it is
// ignored when a command runs on a daemon, which always uses its own root.
type Scope struct {
	Root string `json:"root,omitempty"`
}

func (s *Scope) root() string      { return s.Root }
func (s *Scope) setRoot(r string) { s.Root = r }

// SearchParams drives the text search command
type SearchParams struct {
	Scope
	Pattern    string `json:"pattern"`
	Regex      bool   `json:"regex,omitempty"`
	IgnoreCase bool   `json:"ignore_case,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

func (p *SearchParams) validate() error {
	if p.Pattern == "" {
		return missing("pattern")
	}
	return checkLimit(p.Limit)
}

// QueryParams drives the symbol, fuzzy, semantic, hybrid and find-similar
// commands. Kinds restricts symbol search to the given symbol kinds.
type QueryParams struct {
	Scope
	Query string   `json:"query"`
	Limit int      `json:"limit,omitempty"`
	Kinds []string `json:"kinds,omitempty"`
}

func (p *QueryParams) validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return missing("query")
	}
	return checkLimit(p.Limit)
}

// DiffParams drives search-diff. An empty revspec means git.DefaultRevspec.
type DiffParams struct {
	Scope
	Revspec    string `json:"revspec,omitempty"`
	Pattern    string `json:"pattern"`
	Regex      bool   `json:"regex,omitempty"`
	IgnoreCase bool   `json:"ignore_case,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

func (p *DiffParams) validate() error {
	if p.Pattern == "" {
		return missing("pattern")
	}
	if strings.HasPrefix(p.Revspec, "-") {
		return fmt.Errorf("%w: revspec must not start with '-'", types.ErrInvalidArgument)
	}
	return checkLimit(p.Limit)
}

// BlameParams drives blame
type BlameParams struct {
	Scope
	Path string `json:"path"`
	Line int    `json:"line"`
}

func (p *BlameParams) validate() error {
	if err := cleanRel(&p.Path); err != nil {
		return err
	}
	if p.Path == "" {
		return missing("path")
	}
	if p.Line < 1 {
		return fmt.Errorf("%w: line must be at least 1, got %d", types.ErrInvalidArgument, p.Line)
	}
	return nil
}

// GraphParams drives call-graph and dependency-graph. Module overrides the
// Go module path dependency-graph reads from go.mod.
type GraphParams struct {
	Scope
	Module string `json:"module,omitempty"`
}

func (p *GraphParams) validate() error { return nil }

// DataFlowParams drives data-flow. Function limits the graph to one
// function, by name or qualified name.
type DataFlowParams struct {
	Scope
	Path     string `json:"path"`
	Function string `json:"function,omitempty"`
}

func (p *DataFlowParams) validate() error {
	if err := cleanRel(&p.Path); err != nil {
		return err
	}
	if p.Path == "" {
		return missing("path")
	}
	return nil
}

// PathParams drives detect-smells and extract-signatures. Path is a file or
// directory relative to the root; empty means the whole root.
// IncludePrivate only affects extract-signatures.
type PathParams struct {
	Scope
	Path           string `json:"path,omitempty"`
	IncludePrivate bool   `json:"include_private,omitempty"`
}

func (p *PathParams) validate() error { return cleanRel(&p.Path) }

// IndexParams drives index. Paths only matter to a daemon, which reindexes
// just those files; a local run always builds the whole index.
type IndexParams struct {
	Scope
	Paths []string `json:"paths,omitempty"`
}

func (p *IndexParams) validate() error {
	for i := range p.Paths {
		if err := cleanRel(&p.Paths[i]); err != nil {
			return err
		}
	}
	return nil
}

// ExprParams drives query
type ExprParams struct {
	Scope
	Expr  string `json:"expr"`
	Limit int    `json:"limit,omitempty"`
}

func (p *ExprParams) validate() error {
	if strings.TrimSpace(p.Expr) == "" {
		return missing("expr")
	}
	return checkLimit(p.Limit)
}

func missing(name string) error {
	return fmt.Errorf("%w: %s is required", types.ErrInvalidArgument, name)
}

func checkLimit(limit int) error {
	if limit < 0 {
		return fmt.Errorf("%w: limit must not be negative, got %d", types.ErrInvalidArgument, limit)
	}
	return nil
}

// cleanRel normalizes a root-relative path in place and rejects paths that
// leave the root
func cleanRel(p *string) error {
	rel := path.Clean(filepath.ToSlash(*p))
	if path.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") {
		return fmt.Errorf("%w: path %q is outside the root", types.ErrInvalidArgument, *p)
	}
	if rel == "." {
		rel = ""
	}
	*p = rel
	return nil
}

// RelPath turns a user supplied path into a slash separated path relative
// to root. Relative paths are taken as relative to root already.
func RelPath(root, p string) (string, error) {
	if p == "" || !filepath.IsAbs(p) {
		rel := p
		return rel, cleanRel(&rel)
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", fmt.Errorf("%w: path %q is outside the root %s", types.ErrInvalidArgument, p, root)
	}
	if err := cleanRel(&rel); err != nil {
		return "", fmt.Errorf("%w: path %q is outside the root %s", types.ErrInvalidArgument, p, root)
	}
	return rel, nil
}
