package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codescope/internal/config"
	"github.com/dshills/codescope/internal/walker"
	"github.com/dshills/codescope/pkg/types"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newIndexer(t *testing.T, skipParse bool) *Indexer {
	t.Helper()
	w, err := walker.New(walker.Options{Logger: config.Discard()})
	require.NoError(t, err)
	idx, err := New(Config{Walker: w, Logger: config.Discard(), SkipParse: skipParse})
	require.NoError(t, err)
	return idx
}

func symbolNames(syms []types.Symbol) []string {
	out := make([]string, len(syms))
	for i, s := range syms {
		out[i] = s.Name
	}
	return out
}

func TestBuild(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n\nfunc Foo() { Bar() }\n")
	writeFile(t, root, "b/b.go", "package b\n\nfunc Bar() {}\n\ntype T struct{}\n")
	writeFile(t, root, "README.md", "# readme\n")

	state, stats, err := newIndexer(t, false).Build(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.FilesIndexed)
	assert.Equal(t, uint64(1), stats.Generation)
	assert.Equal(t, 0, stats.FilesFailed)

	snap := state.Snapshot()
	assert.Equal(t, root, snap.Root())
	require.Len(t, snap.Files(), 3)
	assert.Equal(t, "README.md", snap.Files()[0].RelPath)
	assert.Equal(t, []string{"Foo"}, symbolNames(snap.SymbolsIn("a.go")))
	assert.Equal(t, []string{"Bar", "T"}, symbolNames(snap.SymbolsIn("b/b.go")))
	assert.NotNil(t, snap.Parse("a.go"))
	assert.Len(t, snap.Parses(), 3)

	for _, s := range snap.Symbols() {
		assert.Equal(t, "go", s.Language)
	}
}

func TestBuildSkipParse(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n\nfunc Foo() {}\n")

	snap, stats, err := newIndexer(t, true).Snapshot(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Len(t, snap.Files(), 1)
	assert.Empty(t, snap.Symbols())
	assert.Nil(t, snap.Parse("a.go"))
}

func TestBuildRecordsParseFailures(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bad.go", "package bad\n\nfunc (\n")

	_, stats, err := newIndexer(t, false).Build(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesFailed)
	assert.NotEmpty(t, stats.ErrorMessages)
}

func TestBuildUnreadableRoot(t *testing.T) {
	_, _, err := newIndexer(t, false).Build(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, types.ErrIO)
}

func TestUpdateOnlyTouchesChangedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n\nfunc Foo() {}\n")
	writeFile(t, root, "b.go", "package a\n\nfunc Bar() {}\n")

	idx := newIndexer(t, false)
	ctx := context.Background()
	state, _, err := idx.Build(ctx, root)
	require.NoError(t, err)
	before := state.Snapshot()

	writeFile(t, root, "a.go", "package a\n\nfunc Foo() {}\n\nfunc Baz() {}\n")
	stats, err := idx.Update(ctx, state, []string{"a.go", "b.go"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesSkipped)
	assert.Equal(t, uint64(2), stats.Generation)

	after := state.Snapshot()
	assert.Equal(t, []string{"Foo", "Baz"}, symbolNames(after.SymbolsIn("a.go")))
	assert.Equal(t, before.SymbolsIn("b.go"), after.SymbolsIn("b.go"))

	// the old snapshot is unchanged
	assert.Equal(t, []string{"Foo"}, symbolNames(before.SymbolsIn("a.go")))
	assert.Equal(t, uint64(1), before.Generation())
}

func TestUpdateUnchangedIsNoop(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	idx := newIndexer(t, false)
	ctx := context.Background()
	state, _, err := idx.Build(ctx, root)
	require.NoError(t, err)

	stats, err := idx.Update(ctx, state, []string{"a.go"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesSkipped)
	assert.Equal(t, uint64(1), state.Generation())
}

func TestUpdateRemovesDeletedAndIgnored(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n\nfunc Foo() {}\n")
	writeFile(t, root, "b.go", "package a\n\nfunc Bar() {}\n")

	idx := newIndexer(t, false)
	ctx := context.Background()
	state, _, err := idx.Build(ctx, root)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "b.go")))
	writeFile(t, root, "c.go", "package a\n\nfunc Qux() {}\n")

	stats, err := idx.Update(ctx, state, []string{"b.go", "c.go", "never.go"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesRemoved)
	assert.Equal(t, 1, stats.FilesIndexed)

	assert.Equal(t, []string{"a.go", "c.go"}, state.Paths())
}

func TestRefresh(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "b.go", "package a\n")

	idx := newIndexer(t, false)
	ctx := context.Background()
	state, _, err := idx.Build(ctx, root)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "a.go")))
	writeFile(t, root, "sub/c.go", "package sub\n\nfunc C() {}\n")

	stats, err := idx.Refresh(ctx, state, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesRemoved)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesSkipped)
	assert.Equal(t, []string{"b.go", "sub/c.go"}, state.Paths())
}

func TestBuildConcurrentRejected(t *testing.T) {
	idx := newIndexer(t, false)
	require.True(t, idx.lock.TryAcquire())
	defer idx.lock.Release()

	_, _, err := idx.Build(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrIndexInProgress)
}

func TestReadersNeverSeeTornBatch(t *testing.T) {
	root := t.TempDir()
	oldSrc := "package a\n\nfunc A1() {}\n\nfunc A2() {}\n"
	newSrc := "package a\n\nfunc B1() {}\n\nfunc B2() {}\n\nfunc B3() {}\n"
	writeFile(t, root, "a.go", oldSrc)

	idx := newIndexer(t, false)
	ctx := context.Background()
	state, _, err := idx.Build(ctx, root)
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var torn sync.Once
	tornSeen := false
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				names := symbolNames(state.Snapshot().SymbolsIn("a.go"))
				ok := assert.ObjectsAreEqual([]string{"A1", "A2"}, names) ||
					assert.ObjectsAreEqual([]string{"B1", "B2", "B3"}, names)
				if !ok {
					torn.Do(func() { tornSeen = true })
				}
			}
		}()
	}

	for i := range 20 {
		src := newSrc
		if i%2 == 1 {
			src = oldSrc
		}
		writeFile(t, root, "a.go", src)
		_, err := idx.Update(ctx, state, []string{"a.go"}, time.Second)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	assert.False(t, tornSeen)
}

func TestApplyLockTimeout(t *testing.T) {
	state := NewState("/r", nil)
	state.mu.RLock()
	defer state.mu.RUnlock()

	batch := &Batch{Updates: []*Entry{NewEntry(types.SourceFile{RelPath: "a.go"}, nil)}}
	_, err := state.Apply(context.Background(), batch, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Equal(t, uint64(1), state.snapshot.generation)
}

func TestApplyCancelledWhileWaiting(t *testing.T) {
	state := NewState("/r", nil)
	state.mu.RLock()
	defer state.mu.RUnlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	batch := &Batch{Removals: []string{"x"}}
	_, err := state.Apply(ctx, batch, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotLookups(t *testing.T) {
	snap := NewSnapshot("/r", []*Entry{
		NewEntry(types.SourceFile{RelPath: "z.py", Language: "python"}, nil),
		NewEntry(types.SourceFile{RelPath: "a.go", Language: "go"}, &types.ParseResult{
			Symbols: []types.Symbol{
				{Name: "Second", Span: types.Span{StartLine: 9, EndLine: 9}},
				{Name: "First", Span: types.Span{StartLine: 2, EndLine: 3}},
			},
		}),
	})

	f, ok := snap.File("z.py")
	require.True(t, ok)
	assert.Equal(t, "python", f.Language)
	_, ok = snap.File("nope")
	assert.False(t, ok)

	assert.Equal(t, []string{"First", "Second"}, symbolNames(snap.Symbols()))
	assert.Equal(t, "a.go", snap.Symbols()[0].File)

	st := snap.Stats()
	assert.Equal(t, 2, st.Files)
	assert.Equal(t, 2, st.Symbols)
	assert.Equal(t, []string{"go:1", "python:1"}, st.Languages)
	assert.Contains(t, st.String(), "2 files")
}

func TestBatchPaths(t *testing.T) {
	b := &Batch{
		Updates:  []*Entry{NewEntry(types.SourceFile{RelPath: "b.go"}, nil)},
		Removals: []string{"a.go"},
	}
	assert.Equal(t, []string{"a.go", "b.go"}, b.Paths())
	assert.False(t, b.Empty())
	assert.True(t, (&Batch{}).Empty())
	var nilBatch *Batch
	assert.True(t, nilBatch.Empty())
}

func TestIndexLock(t *testing.T) {
	var l IndexLock
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
}
