package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/codescope/internal/indexer"
	"github.com/dshills/codescope/pkg/types"
)

// source yields the corpus a command runs over
type source interface {
	root() string
	// all returns the whole corpus
	all(ctx context.Context) (*indexer.Snapshot, error)
	// under returns the parsed files at rel: one file, every file below a
	// directory, or the whole corpus when rel is empty
	under(ctx context.Context, rel string) (*subset, error)
}

// subset is a snapshot restricted to some of its files. It satisfies
// analysis.Source and searcher.Corpus.
type subset struct {
	*indexer.Snapshot
	files []types.SourceFile
}

// Files returns the selected files in path order
func (s *subset) Files() []types.SourceFile { return s.files }

func whole(snap *indexer.Snapshot) *subset {
	return &subset{Snapshot: snap, files: snap.Files()}
}

// within keeps the files of snap at or below rel
func within(snap *indexer.Snapshot, rel string) *subset {
	if rel == "" {
		return whole(snap)
	}
	if f, ok := snap.File(rel); ok {
		return &subset{Snapshot: snap, files: []types.SourceFile{f}}
	}
	prefix := rel + "/"
	s := &subset{Snapshot: snap}
	for _, f := range snap.Files() {
		if strings.HasPrefix(f.RelPath, prefix) {
			s.files = append(s.files, f)
		}
	}
	return s
}

// local builds snapshots on demand from the file system
type local struct {
	app    *App
	dir    string
	corpus Corpus
}

func (l *local) root() string { return l.dir }

func (l *local) all(ctx context.Context) (*indexer.Snapshot, error) {
	ix := l.app.idx
	if l.corpus == FileCorpus {
		ix = l.app.scan
	}
	snap, _, err := ix.Snapshot(ctx, l.dir)
	return snap, err
}

func (l *local) under(ctx context.Context, rel string) (*subset, error) {
	if rel == "" {
		snap, err := l.all(ctx)
		if err != nil {
			return nil, err
		}
		return whole(snap), nil
	}

	info, err := os.Stat(filepath.Join(l.dir, filepath.FromSlash(rel)))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, rel)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", types.ErrIO, err)
	case info.IsDir():
		snap, err := l.all(ctx)
		if err != nil {
			return nil, err
		}
		return within(snap, rel), nil
	}

	// a single file is parsed on its own instead of indexing the root
	f, ok := l.app.idx.Walker().Load(l.dir, rel)
	if !ok {
		return nil, fmt.Errorf("%w: %s is ignored or not a source file", types.ErrNotFound, rel)
	}
	parse, err := l.app.idx.Registry().Parse(ctx, f)
	if err != nil {
		return nil, err
	}
	return whole(indexer.NewSnapshot(l.dir, []*indexer.Entry{indexer.NewEntry(f, parse)})), nil
}

// live serves commands from a daemon's current snapshot
type live struct {
	snap *indexer.Snapshot
}

func (l live) root() string { return l.snap.Root() }

func (l live) all(context.Context) (*indexer.Snapshot, error) { return l.snap, nil }

func (l live) under(_ context.Context, rel string) (*subset, error) {
	s := within(l.snap, rel)
	if rel != "" && len(s.files) == 0 {
		return nil, fmt.Errorf("%w: no indexed files at %s", types.ErrNotFound, rel)
	}
	return s, nil
}
