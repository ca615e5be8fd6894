//go:build purego || !sqlite_vec

package storage

// Default build: pure Go SQLite (modernc.org/sqlite), no C compiler needed.
// Similarity is computed in Go after loading the candidate vectors.
//
//   CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
