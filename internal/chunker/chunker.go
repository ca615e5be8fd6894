package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dshills/codescope/pkg/types"
)

const (
	// DefaultWindow is the default chunk size in lines
	DefaultWindow = 40

	// DefaultOverlap is the default number of lines shared by adjacent chunks
	DefaultOverlap = 10

	// MaxTokensPerChunk caps the text sent to the embedding provider
	MaxTokensPerChunk = 1000

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// Chunk is a window of file content used as the unit of embedding
type Chunk struct {
	File      string
	Language  string
	StartLine int
	EndLine   int
	Content   string

	// Header is prepended to Content when embedding: path, package and the
	// symbols declared in the window
	Header string

	Symbols    []string
	Hash       string // hex sha256 of EmbedText
	TokenCount int
}

// Span returns the line span of the chunk
func (c *Chunk) Span() types.Span {
	return types.Span{StartLine: c.StartLine, StartCol: 1, EndLine: c.EndLine, EndCol: 1}
}

// EmbedText is the text handed to the embedder, truncated to the token cap
func (c *Chunk) EmbedText() string {
	text := c.Header + c.Content
	if limit := MaxTokensPerChunk * TokensPerChar; len(text) > limit {
		text = text[:limit]
	}
	return text
}

// Chunker splits files into overlapping line windows
type Chunker struct {
	window  int
	overlap int
}

// New creates a Chunker. Out of range values fall back to the defaults.
func New(window, overlap int) *Chunker {
	if window <= 0 {
		window = DefaultWindow
	}
	if overlap < 0 || overlap >= window {
		overlap = min(DefaultOverlap, window-1)
	}
	return &Chunker{window: window, overlap: overlap}
}

// Window returns the configured window and overlap
func (c *Chunker) Window() (int, int) {
	return c.window, c.overlap
}

// ChunkFile splits file into windows of c.window lines, each starting
// c.window-c.overlap lines after the previous one. The final window always
// ends at the last line. parse may be nil.
func (c *Chunker) ChunkFile(file types.SourceFile, parse *types.ParseResult) []*Chunk {
	lines := splitLines(string(file.Content))
	if len(lines) == 0 {
		return nil
	}

	step := c.window - c.overlap
	var chunks []*Chunk
	for start := 0; start < len(lines); start += step {
		end := min(start+c.window, len(lines))
		content := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(content) != "" {
			chunk := &Chunk{
				File:      file.RelPath,
				Language:  file.Language,
				StartLine: start + 1,
				EndLine:   end,
				Content:   content,
			}
			chunk.Symbols = symbolsIn(parse, chunk.StartLine, chunk.EndLine)
			chunk.Header = buildHeader(file, parse, chunk.Symbols)
			chunk.TokenCount = EstimateTokenCount(chunk.Header + chunk.Content)
			chunk.Hash = ContentHash(chunk.EmbedText())
			chunks = append(chunks, chunk)
		}
		if end == len(lines) {
			break
		}
	}
	return chunks
}

func splitLines(content string) []string {
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

// symbolsIn lists declarations that start inside [start, end]
func symbolsIn(parse *types.ParseResult, start, end int) []string {
	if parse == nil {
		return nil
	}
	var names []string
	for i := range parse.Symbols {
		sym := &parse.Symbols[i]
		if sym.Kind == types.KindField {
			continue
		}
		if sym.Span.StartLine >= start && sym.Span.StartLine <= end {
			names = append(names, sym.QualifiedName())
		}
	}
	return names
}

func buildHeader(file types.SourceFile, parse *types.ParseResult, symbols []string) string {
	var h strings.Builder
	fmt.Fprintf(&h, "// file: %s\n", file.RelPath)
	if parse != nil && parse.Package != "" {
		fmt.Fprintf(&h, "// package: %s\n", parse.Package)
	}
	if len(symbols) > 0 {
		fmt.Fprintf(&h, "// declares: %s\n", strings.Join(symbols, ", "))
	}
	return h.String()
}

// ContentHash returns the hex SHA-256 of text. Embeddings are cached and
// stored under this key.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EstimateTokenCount estimates the number of tokens in a string
func EstimateTokenCount(text string) int {
	return len(text) / TokensPerChar
}
