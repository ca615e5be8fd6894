package chunker

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codescope/internal/parser"
	"github.com/dshills/codescope/pkg/types"
)

func numberedFile(n int) types.SourceFile {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return types.SourceFile{RelPath: "notes.txt", Language: "text", Content: []byte(b.String())}
}

func TestNew_Defaults(t *testing.T) {
	w, o := New(0, -1).Window()
	assert.Equal(t, DefaultWindow, w)
	assert.Equal(t, DefaultOverlap, o)

	w, o = New(5, 5).Window()
	assert.Equal(t, 5, w)
	assert.Equal(t, 4, o)
}

func TestChunkFile_OverlappingWindows(t *testing.T) {
	chunks := New(10, 3).ChunkFile(numberedFile(25), nil)
	require.Len(t, chunks, 4)

	spans := make([][2]int, len(chunks))
	for i, c := range chunks {
		spans[i] = [2]int{c.StartLine, c.EndLine}
	}
	assert.Equal(t, [][2]int{{1, 10}, {8, 17}, {15, 24}, {22, 25}}, spans)

	// adjacent windows share exactly the overlap
	assert.True(t, strings.HasSuffix(chunks[0].Content, "line 8\nline 9\nline 10"))
	assert.True(t, strings.HasPrefix(chunks[1].Content, "line 8\n"))
}

func TestChunkFile_ShortFile(t *testing.T) {
	chunks := New(40, 10).ChunkFile(numberedFile(5), nil)
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 5, chunks[0].EndLine)
}

func TestChunkFile_Empty(t *testing.T) {
	assert.Nil(t, New(10, 2).ChunkFile(types.SourceFile{RelPath: "e.go"}, nil))
}

func TestChunkFile_HeaderAndHash(t *testing.T) {
	content := `package testpkg

import "fmt"

// Greet prints a greeting message
func Greet(name string) {
	fmt.Println("Hello, " + name)
}
`
	file := types.SourceFile{RelPath: "greet.go", Language: "go", Content: []byte(content)}
	parsed, err := parser.NewGoParser().Parse(context.Background(), file)
	require.NoError(t, err)

	chunks := New(40, 10).ChunkFile(file, parsed)
	require.Len(t, chunks, 1)

	c := chunks[0]
	assert.Equal(t, []string{"Greet"}, c.Symbols)
	assert.Contains(t, c.Header, "// file: greet.go")
	assert.Contains(t, c.Header, "// package: testpkg")
	assert.Contains(t, c.EmbedText(), "fmt.Println")
	assert.Equal(t, ContentHash(c.EmbedText()), c.Hash)
	assert.Len(t, c.Hash, 64)

	again := New(40, 10).ChunkFile(file, parsed)
	assert.Equal(t, c.Hash, again[0].Hash)
}

func TestEmbedText_Truncated(t *testing.T) {
	c := &Chunk{Content: strings.Repeat("x", MaxTokensPerChunk*TokensPerChar*2)}
	assert.Len(t, c.EmbedText(), MaxTokensPerChunk*TokensPerChar)
}

func TestEstimateTokenCount(t *testing.T) {
	assert.Equal(t, 0, EstimateTokenCount(""))
	assert.Equal(t, 25, EstimateTokenCount(strings.Repeat("a", 100)))
}
