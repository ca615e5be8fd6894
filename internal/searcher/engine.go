package searcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/codescope/pkg/types"
)

// fileBatch is how many files an engine scans between cancellation checks
const fileBatch = 64

// Corpus is the read-only view engines search. *indexer.Snapshot implements it.
type Corpus interface {
	Root() string
	Files() []types.SourceFile // sorted by relative path
	Symbols() []types.Symbol   // sorted by file, then position
	Parse(rel string) *types.ParseResult
}

// Request is the uniform engine input
type Request struct {
	Query           string `json:"query"`
	Regex           bool   `json:"regex,omitempty"`
	CaseInsensitive bool   `json:"case_insensitive,omitempty"`
	Limit           int    `json:"limit,omitempty"` // <= 0 means unlimited
}

// Engine is the single search capability every engine variant implements.
// Results are fully ordered and at most Limit long.
type Engine interface {
	Kind() types.EngineKind
	Search(ctx context.Context, c Corpus, req Request) ([]types.MatchResult, error)
}

func requireQuery(req Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("%w: empty query", types.ErrInvalidArgument)
	}
	return nil
}

// checkCancel reports ctx cancellation every fileBatch files
func checkCancel(ctx context.Context, i int) error {
	if i%fileBatch == 0 {
		return ctx.Err()
	}
	return nil
}

// splitLines splits content into lines without their terminators
func splitLines(content []byte) []string {
	s := string(content)
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// basename returns the last element of a slash-separated path
func basename(rel string) string {
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		return rel[i+1:]
	}
	return rel
}
