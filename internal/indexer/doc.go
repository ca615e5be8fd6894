// Package indexer builds and maintains the in-memory index: every source
// file under a root, its parse result and an xxhash content fingerprint.
//
// # Basic Usage
//
//	idx, err := indexer.New(indexer.Config{Walker: w, Logger: log})
//	state, stats, err := idx.Build(ctx, root)
//
//	// later, after files change
//	stats, err = idx.Update(ctx, state, []string{"pkg/a.go"}, 10*time.Second)
//
// # Consistency
//
// State is single-writer, multi-reader. Changed files are read and parsed
// outside any lock; Apply then swaps in a new immutable Snapshot under the
// write lock. Readers hold a snapshot, never the lock, so a query sees every
// symbol of a batch or none of them. Each applied batch bumps the generation.
//
// Waiting for the writer lock is bounded; ErrLockTimeout means readers are
// stuck and the owner should restart.
package indexer
