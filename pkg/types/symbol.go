package types

import (
	"errors"
	"fmt"
)

// SymbolKind represents the syntactic kind of a symbol
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindConst     SymbolKind = "const"
	KindVar       SymbolKind = "var"
	KindField     SymbolKind = "field"
	KindModule    SymbolKind = "module"
)

// SymbolScope represents the visibility scope of a symbol
type SymbolScope string

const (
	ScopeExported   SymbolScope = "exported"
	ScopeUnexported SymbolScope = "unexported"
)

// Priority orders kinds for ranking; lower is better.
// Callables and type declarations outrank values.
func (k SymbolKind) Priority() int {
	switch k {
	case KindFunction, KindMethod, KindClass, KindStruct, KindInterface:
		return 0
	case KindType, KindModule:
		return 1
	case KindConst, KindVar:
		return 2
	case KindField:
		return 3
	default:
		return 4
	}
}

// IsCallable reports whether the kind can appear as a call-graph node
func (k SymbolKind) IsCallable() bool {
	return k == KindFunction || k == KindMethod
}

// Span is a 1-based line/column range within a file
type Span struct {
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col"`
}

// Contains reports whether line falls inside the span
func (s Span) Contains(line int) bool {
	return line >= s.StartLine && line <= s.EndLine
}

// Lines returns the number of lines covered by the span
func (s Span) Lines() int {
	if s.EndLine < s.StartLine {
		return 0
	}
	return s.EndLine - s.StartLine + 1
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

// Symbol is a symbol record extracted from a source file
type Symbol struct {
	Name      string      `json:"name"`
	Kind      SymbolKind  `json:"kind"`
	File      string      `json:"file"`
	Language  string      `json:"language,omitempty"`
	Span      Span        `json:"span"`
	Parent    string      `json:"parent,omitempty"` // receiver type or enclosing class
	Signature string      `json:"signature,omitempty"`
	Scope     SymbolScope `json:"scope,omitempty"`
}

// Key returns the (file, span) identity of the symbol
func (s *Symbol) Key() MatchKey {
	return MatchKey{File: s.File, Span: s.Span}
}

// QualifiedName returns Parent.Name for members and Name otherwise
func (s *Symbol) QualifiedName() string {
	if s.Parent != "" {
		return s.Parent + "." + s.Name
	}
	return s.Name
}

// IsExported returns true if the symbol is visible outside its package or module
func (s *Symbol) IsExported() bool {
	return s.Scope == ScopeExported
}

// Validate performs validation of the symbol record
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return errors.New("symbol name is required")
	}
	if s.File == "" {
		return errors.New("symbol file is required")
	}
	if s.Span.StartLine <= 0 || s.Span.EndLine <= 0 {
		return errors.New("invalid span: line numbers must be positive")
	}
	if s.Span.StartLine > s.Span.EndLine {
		return errors.New("invalid span: start line must be before or equal to end line")
	}
	return nil
}
