// Package analysis builds structural artifacts from parse results: call
// graphs, intra-procedural data flow, file dependency graphs, code smell
// findings and public signatures.
//
// Every analyzer is a pure function of file contents and parse results.
// Corpus-wide analyzers fan out across files in batches with errgroup,
// bounded by GOMAXPROCS, and merge per-file output in path order so results
// are deterministic.
//
// Graph node identity is (file, qualified name). Two definitions with the
// same qualified name in one file, such as a redefined Python function or
// several Go init functions, share a node: the first definition supplies the
// node's line and later definitions add their edges to it.
package analysis
