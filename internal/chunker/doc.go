// Package chunker splits source files into overlapping line windows for
// semantic search.
//
// Each window is Window lines long and starts Window-Overlap lines after the
// previous one, so text near a boundary always appears whole in at least one
// chunk. The last window always ends at the final line of the file.
//
//	c := chunker.New(40, 10)
//	for _, ch := range c.ChunkFile(file, parseResult) {
//	    fmt.Printf("%s:%d-%d %s\n", ch.File, ch.StartLine, ch.EndLine, ch.Hash)
//	}
//
// A short header naming the file, package and declared symbols is prepended
// to each chunk's text before embedding. Chunk.Hash is the SHA-256 of that
// text and is the key under which embeddings are cached and stored.
package chunker
