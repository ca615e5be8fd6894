package daemon

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codescope/internal/config"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func startWatcher(t *testing.T, root string, skip func(string) bool) *Watcher {
	t.Helper()
	w, err := NewWatcher(root, 50*time.Millisecond, skip, config.Discard())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Close() })
	return w
}

// collect gathers batches until want are all seen or the deadline passes
func collect(t *testing.T, w *Watcher, want ...string) []string {
	t.Helper()
	var seen []string
	deadline := time.After(5 * time.Second)
	for {
		missing := false
		for _, p := range want {
			if !slices.Contains(seen, p) {
				missing = true
			}
		}
		if !missing {
			return seen
		}
		select {
		case batch, ok := <-w.Batches():
			require.True(t, ok, "batches closed")
			seen = append(seen, batch...)
		case <-deadline:
			t.Fatalf("saw %v, want %v", seen, want)
		}
	}
}

func TestWatcherCoalescesEvents(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, nil)

	writeFiles(t, root, map[string]string{"a.go": "package a\n", "b.go": "package b\n"})
	writeFiles(t, root, map[string]string{"a.go": "package a\n\nfunc A() {}\n"})

	select {
	case batch := <-w.Batches():
		assert.Equal(t, []string{"a.go", "b.go"}, batch)
	case <-time.After(5 * time.Second):
		t.Fatal("no batch")
	}
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, nil)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "sub"), 0755))
	time.Sleep(100 * time.Millisecond)
	writeFiles(t, root, map[string]string{"pkg/sub/x.go": "package sub\n"})

	collect(t, w, "pkg/sub/x.go")
}

func TestWatcherReportsRemovals(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"gone.go": "package gone\n"})
	w := startWatcher(t, root, nil)

	require.NoError(t, os.Remove(filepath.Join(root, "gone.go")))
	collect(t, w, "gone.go")
}

func TestWatcherSkipsDirectories(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"ignored/keep.txt": "x\n"})
	w := startWatcher(t, root, func(rel string) bool { return strings.HasPrefix(rel, "ignored") })

	writeFiles(t, root, map[string]string{"ignored/new.go": "package x\n"})
	time.Sleep(100 * time.Millisecond)
	writeFiles(t, root, map[string]string{"main.go": "package main\n"})

	seen := collect(t, w, "main.go")
	assert.NotContains(t, seen, "ignored/new.go")
}

func TestWatcherCloseEndsBatches(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), 0, nil, config.Discard())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, ok := <-w.Batches()
	assert.False(t, ok)
}

func removeFile(root, rel string) error {
	return os.Remove(filepath.Join(root, filepath.FromSlash(rel)))
}

func removeAll(root, rel string) error {
	return os.RemoveAll(filepath.Join(root, filepath.FromSlash(rel)))
}
