// Package storage persists embedding vectors in SQLite, keyed by the
// content hash of the embedded text together with the provider and model
// that produced them. A rebuilt index re-embeds only text it has never seen.
//
// Two builds are supported:
//
//   - default (purego): modernc.org/sqlite, similarity computed in Go
//   - sqlite_vec tag: mattn/go-sqlite3 plus the sqlite-vec extension,
//     similarity computed with vec_distance_cosine
//
// Vectors are stored as little-endian float32 blobs, the layout sqlite-vec
// reads natively, so databases are portable between the two builds.
//
// # Basic Usage
//
//	store, err := storage.Open(ctx, filepath.Join(dir, "vectors.db"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	resolver := embedder.NewResolver(provider, cache, store, logger)
package storage
