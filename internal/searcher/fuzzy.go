package searcher

import (
	"context"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/dshills/codescope/pkg/types"
)

const (
	// defaultMaxLineLength skips minified or generated lines
	defaultMaxLineLength = 400

	// minLineScore drops weak in-file matches, which are plentiful
	minLineScore = 0.2

	// maxFuzzyScore keeps inexact matches strictly below an exact basename
	maxFuzzyScore = 0.99
)

// FuzzyEngine scores subsequence matches of the pattern against file paths
// and file lines. Contiguous runs and matches after separators or camel-case
// boundaries score higher; gaps and a late first match score lower.
type FuzzyEngine struct {
	paths         bool
	lines         bool
	maxLineLength int
}

// NewFuzzyEngine creates a fuzzy engine over paths and lines
func NewFuzzyEngine() *FuzzyEngine {
	return &FuzzyEngine{paths: true, lines: true, maxLineLength: defaultMaxLineLength}
}

// NewPathFuzzyEngine creates a fuzzy engine that only matches file paths
func NewPathFuzzyEngine() *FuzzyEngine {
	return &FuzzyEngine{paths: true, maxLineLength: defaultMaxLineLength}
}

// Kind implements Engine
func (e *FuzzyEngine) Kind() types.EngineKind { return types.EngineFuzzy }

type fuzzyHit struct {
	res  types.MatchResult
	span int // length of the matched region
}

// Search implements Engine. A pattern equal to a file's basename scores 1.0
// for that file; every other match scores below 1.0. Order is score
// descending, then shorter match span, then path, then line.
func (e *FuzzyEngine) Search(ctx context.Context, c Corpus, req Request) ([]types.MatchResult, error) {
	if err := requireQuery(req); err != nil {
		return nil, err
	}
	pattern := req.Query
	ideal := selfScore(pattern)
	files := c.Files()

	var hits []fuzzyHit
	if e.paths {
		hits = append(hits, e.matchPaths(pattern, ideal, files)...)
	}
	if e.lines {
		for i, f := range files {
			if err := checkCancel(ctx, i); err != nil {
				return nil, err
			}
			hits = append(hits, e.matchLines(pattern, ideal, f)...)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		a, b := &hits[i], &hits[j]
		if a.res.Score != b.res.Score {
			return a.res.Score > b.res.Score
		}
		if a.span != b.span {
			return a.span < b.span
		}
		return types.LessByLocation(&a.res, &b.res)
	})

	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	out := make([]types.MatchResult, len(hits))
	for i := range hits {
		out[i] = hits[i].res
	}
	return out, nil
}

// matchPaths scores every file by the better of its basename and its
// relative path. Matches are whole-file results with a zero span.
func (e *FuzzyEngine) matchPaths(pattern string, ideal int, files []types.SourceFile) []fuzzyHit {
	names := make([]string, len(files))
	rels := make([]string, len(files))
	for i, f := range files {
		names[i] = basename(f.RelPath)
		rels[i] = f.RelPath
	}

	best := make(map[int]fuzzyHit)
	consider := func(i int, score float64, span int) {
		if cur, ok := best[i]; ok && (cur.res.Score > score || (cur.res.Score == score && cur.span <= span)) {
			return
		}
		f := files[i]
		best[i] = fuzzyHit{
			span: span,
			res: types.MatchResult{
				File:     f.RelPath,
				Text:     f.RelPath,
				Score:    score,
				Engine:   types.EngineFuzzy,
				Language: f.Language,
			},
		}
	}

	for i, name := range names {
		if name == pattern {
			consider(i, 1.0, len(name))
		}
	}
	for _, m := range fuzzy.Find(pattern, names) {
		consider(m.Index, normalizeFuzzy(m.Score, ideal), matchSpan(m.MatchedIndexes))
	}
	for _, m := range fuzzy.Find(pattern, rels) {
		consider(m.Index, normalizeFuzzy(m.Score, ideal), matchSpan(m.MatchedIndexes))
	}

	out := make([]fuzzyHit, 0, len(best))
	for i := range files {
		if h, ok := best[i]; ok && h.res.Score > 0 {
			out = append(out, h)
		}
	}
	return out
}

// lineSource adapts file lines to fuzzy.Source, hiding blank and overlong lines
type lineSource struct {
	lines []string
	max   int
}

func (s lineSource) String(i int) string {
	l := s.lines[i]
	if len(l) > s.max || strings.TrimSpace(l) == "" {
		return ""
	}
	return l
}

func (s lineSource) Len() int { return len(s.lines) }

func (e *FuzzyEngine) matchLines(pattern string, ideal int, f types.SourceFile) []fuzzyHit {
	lines := splitLines(f.Content)
	if len(lines) == 0 {
		return nil
	}
	var out []fuzzyHit
	for _, m := range fuzzy.FindFrom(pattern, lineSource{lines: lines, max: e.maxLineLength}) {
		score := min(normalizeFuzzy(m.Score, ideal), maxFuzzyScore)
		if score < minLineScore || len(m.MatchedIndexes) == 0 {
			continue
		}
		lineNo := m.Index + 1
		first := m.MatchedIndexes[0]
		last := m.MatchedIndexes[len(m.MatchedIndexes)-1]
		out = append(out, fuzzyHit{
			span: last - first + 1,
			res: types.MatchResult{
				File:      f.RelPath,
				Line:      lineNo,
				Column:    first + 1,
				EndColumn: last + 1,
				Span:      types.Span{StartLine: lineNo, StartCol: first + 1, EndLine: lineNo, EndCol: last + 1},
				Text:      strings.TrimSpace(lines[m.Index]),
				Score:     score,
				Engine:    types.EngineFuzzy,
				Language:  f.Language,
			},
		})
	}
	return out
}

// selfScore is the raw score of the pattern matched against itself, the
// reference point for normalizing other scores
func selfScore(pattern string) int {
	if m := fuzzy.Find(pattern, []string{pattern}); len(m) == 1 && m[0].Score > 0 {
		return m[0].Score
	}
	return 1
}

// normalizeFuzzy maps a raw score into [0, maxFuzzyScore]
func normalizeFuzzy(raw, ideal int) float64 {
	if raw <= 0 {
		return 0
	}
	return min(float64(raw)/float64(ideal), maxFuzzyScore)
}

func matchSpan(idx []int) int {
	if len(idx) == 0 {
		return 0
	}
	return idx[len(idx)-1] - idx[0] + 1
}
