package types

import "time"

// SourceFile is a file read by the corpus walker. It is immutable once read.
type SourceFile struct {
	Path     string    `json:"path"`     // absolute path
	RelPath  string    `json:"rel_path"` // slash-separated, relative to the walk root
	Language string    `json:"language"`
	Content  []byte    `json:"-"`
	ModTime  time.Time `json:"mod_time"`
	Size     int64     `json:"size"`
}

// ParseResult is the output of parsing one source file
type ParseResult struct {
	File      string
	Language  string
	Package   string
	Symbols   []Symbol
	Imports   []Import
	Functions []Function

	// Errors encountered during parsing; partial results are still usable
	Errors []ParseError
}

// Import is an import/require statement
type Import struct {
	Path  string `json:"path"`
	Alias string `json:"alias,omitempty"`
	Line  int    `json:"line"`
}

// Param is a function parameter. Type is empty when not statically known.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// CallSite is a call expression inside a function body
type CallSite struct {
	Name      string `json:"name"`                // called identifier
	Qualifier string `json:"qualifier,omitempty"` // receiver or package expression
	Line      int    `json:"line"`
}

// Binding is a variable definition or use inside a function body.
// Sources lists the variables read to produce the value.
type Binding struct {
	Name    string   `json:"name"`
	Line    int      `json:"line"`
	Kind    string   `json:"kind"` // param | assign | define | range
	Sources []string `json:"sources,omitempty"`
}

// Function holds the facts structural analyzers need about one function
type Function struct {
	Name       string     `json:"name"`
	Parent     string     `json:"parent,omitempty"`
	Span       Span       `json:"span"`
	Exported   bool       `json:"exported"`
	Params     []Param    `json:"params"`
	Results    []string   `json:"results,omitempty"`
	Calls      []CallSite `json:"calls,omitempty"`
	Bindings   []Binding  `json:"bindings,omitempty"`
	MaxNesting int        `json:"max_nesting"`
	Returns    int        `json:"returns"`
}

// QualifiedName returns Parent.Name for methods and Name otherwise
func (f *Function) QualifiedName() string {
	if f.Parent != "" {
		return f.Parent + "." + f.Name
	}
	return f.Name
}

// ParseError represents an error that occurred during parsing
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	return pe.Message
}

// HasErrors returns true if any parsing errors occurred
func (pr *ParseResult) HasErrors() bool {
	return len(pr.Errors) > 0
}

// AddError adds a parsing error to the result
func (pr *ParseResult) AddError(file string, line, col int, msg string) {
	pr.Errors = append(pr.Errors, ParseError{
		File:    file,
		Line:    line,
		Column:  col,
		Message: msg,
	})
}
