package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dshills/codescope/internal/indexer"
	"github.com/dshills/codescope/internal/parser"
	"github.com/dshills/codescope/internal/walker"
	"github.com/dshills/codescope/pkg/types"
)

// corpus parses in-memory files into a snapshot
func corpus(t *testing.T, files map[string]string) *indexer.Snapshot {
	t.Helper()
	reg := parser.NewRegistry()
	var entries []*indexer.Entry
	for rel, content := range files {
		f := types.SourceFile{
			Path:     "/src/" + rel,
			RelPath:  rel,
			Language: walker.LanguageFor(rel),
			Content:  []byte(content),
		}
		res, err := reg.Parse(context.Background(), f)
		require.NoError(t, err)
		entries = append(entries, indexer.NewEntry(f, res))
	}
	return indexer.NewSnapshot("/src", entries)
}

func parseOne(t *testing.T, rel, content string) *types.ParseResult {
	t.Helper()
	return corpus(t, map[string]string{rel: content}).Parse(rel)
}

func edgesOf(g *types.Graph, kind types.EdgeKind) [][2]string {
	var out [][2]string
	for _, e := range g.Edges {
		if e.Kind == kind {
			out = append(out, [2]string{e.From, e.To})
		}
	}
	return out
}
