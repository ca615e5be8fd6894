package searcher

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codescope/pkg/types"
)

var textCorpus = map[string]string{
	"b.go": "package b\n\n// TODO: remove\nfunc Bar() {}\n",
	"a.go": "package a\n\nfunc Foo() {\n\t// todo later\n\tBar() // TODO TODO\n}\n",
	"c.md": "nothing here\n",
}

func TestTextSearchLiteralCaseSensitive(t *testing.T) {
	c := newCorpus(t, textCorpus)
	res, err := NewTextEngine().Search(context.Background(), c, Request{Query: "TODO"})
	require.NoError(t, err)

	require.Len(t, res, 3)
	assert.Equal(t, "a.go", res[0].File)
	assert.Equal(t, 5, res[0].Line)
	assert.Equal(t, 11, res[0].Column)
	assert.Equal(t, 14, res[0].EndColumn)
	assert.Equal(t, "Bar() // TODO TODO", res[0].Text)
	assert.Equal(t, 16, res[1].Column)
	assert.Equal(t, "b.go", res[2].File)
	for _, r := range res {
		assert.Equal(t, types.EngineText, r.Engine)
		assert.Equal(t, 1.0, r.Score)
	}
}

func TestTextSearchCaseInsensitive(t *testing.T) {
	c := newCorpus(t, textCorpus)
	res, err := NewTextEngine().Search(context.Background(), c, Request{Query: "todo", CaseInsensitive: true})
	require.NoError(t, err)
	assert.Len(t, res, 4)
}

func TestTextSearchRegex(t *testing.T) {
	c := newCorpus(t, textCorpus)
	res, err := NewTextEngine().Search(context.Background(), c, Request{Query: `func \w+\(`, Regex: true})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, []string{"a.go", "b.go"}, files(res))
}

func TestTextSearchRegexMetacharsLiteral(t *testing.T) {
	c := newCorpus(t, map[string]string{"x.go": "a.b\naxb\n"})
	res, err := NewTextEngine().Search(context.Background(), c, Request{Query: "a.b"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 1, res[0].Line)
}

func TestTextSearchInvalidPattern(t *testing.T) {
	c := newCorpus(t, textCorpus)
	_, err := NewTextEngine().Search(context.Background(), c, Request{Query: "func (", Regex: true})
	assert.ErrorIs(t, err, types.ErrInvalidPattern)

	_, err = NewTextEngine().Search(context.Background(), c, Request{Query: ""})
	assert.ErrorIs(t, err, types.ErrInvalidPattern)
}

func TestTextSearchSkipsEmptyMatches(t *testing.T) {
	c := newCorpus(t, map[string]string{"x.txt": "aaa\nbbb\n"})
	res, err := NewTextEngine().Search(context.Background(), c, Request{Query: "a*", Regex: true})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 1, res[0].Column)
	assert.Equal(t, 3, res[0].EndColumn)
}

func TestTextSearchSortedAndLimited(t *testing.T) {
	content := map[string]string{}
	for _, name := range []string{"z.go", "m/a.go", "a.go", "m/b.go"} {
		content[name] = "x\nx x\nx\n"
	}
	c := newCorpus(t, content)

	for _, limit := range []int{0, 1, 3, 7, 100} {
		res, err := NewTextEngine().Search(context.Background(), c, Request{Query: "x", Limit: limit})
		require.NoError(t, err)
		if limit > 0 {
			assert.LessOrEqual(t, len(res), limit)
		} else {
			assert.Len(t, res, 16)
		}
		assert.True(t, sort.SliceIsSorted(res, func(i, j int) bool {
			return types.LessByLocation(&res[i], &res[j])
		}))
	}
}

func TestTextSearchCancelled(t *testing.T) {
	c := newCorpus(t, textCorpus)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTextEngine().Search(ctx, c, Request{Query: "TODO"})
	assert.ErrorIs(t, err, context.Canceled)
}
