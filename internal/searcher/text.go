package searcher

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/codescope/pkg/types"
)

// TextEngine scans file contents for a literal substring or a regular
// expression. Results come out in (file, line, column) order.
type TextEngine struct{}

// NewTextEngine creates a text engine
func NewTextEngine() *TextEngine { return &TextEngine{} }

// Kind implements Engine
func (e *TextEngine) Kind() types.EngineKind { return types.EngineText }

// CompilePattern turns a literal or regex pattern into a compiled matcher.
// Literals are case-sensitive unless fold is set.
func CompilePattern(pattern string, regex, fold bool) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", types.ErrInvalidPattern)
	}
	expr := pattern
	if !regex {
		expr = regexp.QuoteMeta(pattern)
	}
	if fold {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidPattern, err)
	}
	return re, nil
}

// Search implements Engine. The pattern is compiled once, before any file
// is touched.
func (e *TextEngine) Search(ctx context.Context, c Corpus, req Request) ([]types.MatchResult, error) {
	re, err := CompilePattern(req.Query, req.Regex, req.CaseInsensitive)
	if err != nil {
		return nil, err
	}
	return ScanFiles(ctx, c.Files(), re, req.Limit)
}

// ScanFiles reports every non-empty match of re in files. files must be
// sorted by path; scanning stops once limit matches are found.
func ScanFiles(ctx context.Context, files []types.SourceFile, re *regexp.Regexp, limit int) ([]types.MatchResult, error) {
	var out []types.MatchResult
	for i, f := range files {
		if err := checkCancel(ctx, i); err != nil {
			return nil, err
		}
		for n, line := range splitLines(f.Content) {
			for _, loc := range re.FindAllStringIndex(line, -1) {
				if loc[0] == loc[1] {
					continue
				}
				lineNo := n + 1
				out = append(out, types.MatchResult{
					File:      f.RelPath,
					Line:      lineNo,
					Column:    loc[0] + 1,
					EndColumn: loc[1],
					Span:      types.Span{StartLine: lineNo, StartCol: loc[0] + 1, EndLine: lineNo, EndCol: loc[1]},
					Text:      strings.TrimSpace(line),
					Score:     1.0,
					Engine:    types.EngineText,
					Language:  f.Language,
				})
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
	}
	return out, nil
}
