package types

import (
	"sort"
	"time"
)

// EngineKind tags which engine produced a match
type EngineKind string

const (
	EngineText     EngineKind = "text"
	EngineSymbol   EngineKind = "symbol"
	EngineFuzzy    EngineKind = "fuzzy"
	EngineSemantic EngineKind = "semantic"
	EngineHybrid   EngineKind = "hybrid"
	EngineGit      EngineKind = "git"
	EngineSimilar  EngineKind = "similar"
	EngineFilter   EngineKind = "filter"
)

// MatchKey is the (file, span) identity used for dedup and set operations
type MatchKey struct {
	File string
	Span Span
}

// MatchResult is the generic hit record every engine normalizes to
type MatchResult struct {
	File      string     `json:"file"`
	Line      int        `json:"line"`
	Column    int        `json:"column"`
	EndColumn int        `json:"end_column"`
	Span      Span       `json:"span"`
	Text      string     `json:"text"`
	Score     float64    `json:"score"`
	Engine    EngineKind `json:"engine"`
	Symbol    *Symbol    `json:"symbol,omitempty"`
	LineType  string     `json:"line_type,omitempty"` // diff search: added | removed | context
	Language  string     `json:"language,omitempty"`
}

// Key returns the (file, span) identity of the match
func (m *MatchResult) Key() MatchKey {
	return MatchKey{File: m.File, Span: m.Span}
}

// Validate checks if the match result is valid
func (m *MatchResult) Validate() error {
	if m.File == "" {
		return ErrMissingFileInfo
	}
	if m.Score < 0 || m.Score > 1 {
		return ErrInvalidRelevanceScore
	}
	return nil
}

// SortByScore orders matches by score descending, then file, line and column
func SortByScore(matches []MatchResult) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := &matches[i], &matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return LessByLocation(a, b)
	})
}

// SortByLocation orders matches by file, line and column
func SortByLocation(matches []MatchResult) {
	sort.SliceStable(matches, func(i, j int) bool {
		return LessByLocation(&matches[i], &matches[j])
	})
}

// LessByLocation compares two matches by file path, then line, then column, then span end
func LessByLocation(a, b *MatchResult) bool {
	if a.File != b.File {
		return a.File < b.File
	}
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	if a.Column != b.Column {
		return a.Column < b.Column
	}
	return a.Span.EndLine < b.Span.EndLine
}

// Truncate cuts matches to at most limit entries; limit <= 0 means no limit
func Truncate(matches []MatchResult, limit int) []MatchResult {
	if limit > 0 && len(matches) > limit {
		return matches[:limit]
	}
	return matches
}

// BlameRecord describes the commit that last touched a line
type BlameRecord struct {
	File       string    `json:"file"`
	Line       int       `json:"line"`
	Commit     string    `json:"commit"`
	Author     string    `json:"author"`
	AuthorMail string    `json:"author_mail,omitempty"`
	AuthorTime time.Time `json:"author_time"`
	Summary    string    `json:"summary"`
	Content    string    `json:"content"`
}

// Severity grades a code smell finding
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Finding is one code smell reported by the detector
type Finding struct {
	Rule      string   `json:"rule"`
	File      string   `json:"file"`
	Symbol    string   `json:"symbol"`
	Span      Span     `json:"span"`
	Severity  Severity `json:"severity"`
	Value     int      `json:"value"`
	Threshold int      `json:"threshold"`
	Message   string   `json:"message"`
}

// Signature is one entry of a file's public call surface
type Signature struct {
	Name       string   `json:"name"`
	Parent     string   `json:"parent,omitempty"`
	File       string   `json:"file"`
	Line       int      `json:"line"`
	Params     []Param  `json:"params"`
	Results    []string `json:"results,omitempty"`
	Unresolved int      `json:"unresolved"` // parameters with no static type
	Text       string   `json:"text"`
}
