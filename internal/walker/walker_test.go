package walker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codescope/internal/config"
	"github.com/dshills/codescope/pkg/types"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func relPaths(files []types.SourceFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func newWalker(t *testing.T, opts Options) *Walker {
	t.Helper()
	opts.Logger = config.Discard()
	w, err := New(opts)
	require.NoError(t, err)
	return w
}

func TestFiles_SortedAndFiltered(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"main.go":                 "package main\n",
		"pkg/util.go":             "package pkg\n",
		"pkg/gen/model.gen.go":    "package gen\n",
		"node_modules/x/index.js": "module.exports = 1\n",
		".git/config":             "[core]\n",
		"ignored/secret.txt":      "nope\n",
		"build.log":               "log\n",
		".gitignore":              "ignored/\n*.log\n",
		"script.py":               "def f():\n    pass\n",
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.bin"), []byte{0x7f, 'E', 0x00, 0x01}, 0644))

	w := newWalker(t, Options{RespectGitignore: true, Exclude: []string{"**/*.gen.go"}})
	files, err := w.Files(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{".gitignore", "main.go", "pkg/util.go", "script.py"}, relPaths(files))
	assert.Equal(t, "go", files[1].Language)
	assert.Equal(t, "python", files[3].Language)
	assert.Equal(t, "package main\n", string(files[1].Content))
}

func TestFiles_MaxFileSize(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"small.go": "package a\n",
		"big.go":   "package a\n// xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx\n",
	})

	w := newWalker(t, Options{MaxFileSize: 20})
	files, err := w.Files(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"small.go"}, relPaths(files))
}

func TestWalk_UnreadableRoot(t *testing.T) {
	w := newWalker(t, Options{})
	var errs []error
	for _, err := range w.Walk(context.Background(), filepath.Join(t.TempDir(), "missing")) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], types.ErrIO))
}

func TestWalk_Restartable(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.go": "package a\n", "b.go": "package b\n"})

	w := newWalker(t, Options{})
	seq := w.Walk(context.Background(), root)

	count := func() int {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 2, count())
	assert.Equal(t, 2, count())
}

func TestWalk_EarlyBreak(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.go": "package a\n", "b.go": "package b\n", "c.go": "package c\n"})

	w := newWalker(t, Options{})
	n := 0
	for _, err := range w.Walk(context.Background(), root) {
		require.NoError(t, err)
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestWalk_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.go": "package a\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := newWalker(t, Options{})
	_, err := w.Files(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_InvalidExclude(t *testing.T) {
	_, err := New(Options{Exclude: []string{"[unclosed"}})
	assert.ErrorIs(t, err, types.ErrInvalidPattern)
}

func TestAccept(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{".gitignore": "tmp/\n"})

	w := newWalker(t, Options{RespectGitignore: true, Exclude: []string{"docs/**"}})
	assert.True(t, w.Accept(root, "pkg/a.go"))
	assert.False(t, w.Accept(root, "tmp/a.go"))
	assert.False(t, w.Accept(root, "node_modules/a/index.js"))
	assert.False(t, w.Accept(root, "docs/guide.md"))
}

func TestSkipDir(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{".gitignore": "tmp/\n"})

	w := newWalker(t, Options{RespectGitignore: true, Exclude: []string{"docs/**"}})
	assert.False(t, w.SkipDir(root, "."))
	assert.False(t, w.SkipDir(root, "pkg/sub"))
	assert.True(t, w.SkipDir(root, "tmp"))
	assert.True(t, w.SkipDir(root, "web/node_modules/lib"))
	assert.True(t, w.SkipDir(root, ".git"))
	assert.True(t, w.SkipDir(root, "docs/api"))
}

func TestIsBinary(t *testing.T) {
	assert.False(t, IsBinary([]byte("hello\nworld")))
	assert.True(t, IsBinary([]byte{'a', 0, 'b'}))
	assert.False(t, IsBinary(nil))
}

func TestLanguageFor(t *testing.T) {
	assert.Equal(t, "go", LanguageFor("x/y.go"))
	assert.Equal(t, "javascript", LanguageFor("App.JSX"))
	assert.Equal(t, "text", LanguageFor("README"))
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.go":              "package a\n",
		"node_modules/x.js": "x\n",
		"bin.dat":           "a\x00b",
	})
	w := newWalker(t, Options{})

	f, ok := w.Load(root, "a.go")
	require.True(t, ok)
	assert.Equal(t, "go", f.Language)
	assert.Equal(t, "package a\n", string(f.Content))

	_, ok = w.Load(root, "node_modules/x.js")
	assert.False(t, ok)
	_, ok = w.Load(root, "bin.dat")
	assert.False(t, ok)
	_, ok = w.Load(root, "gone.go")
	assert.False(t, ok)
}
