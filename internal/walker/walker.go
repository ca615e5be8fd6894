// Package walker enumerates the source files of a corpus root, applying
// ignore rules. Walks are lazy: files are read as the sequence is consumed,
// and each range over the sequence starts a fresh walk.
package walker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/dshills/codescope/pkg/types"
)

// DefaultMaxFileSize is used when Options.MaxFileSize is zero
const DefaultMaxFileSize = 1 << 20

// binarySniffLen is how much of a file is checked for NUL bytes
const binarySniffLen = 8 << 10

var skipDirs = map[string]struct{}{
	".git":          {},
	".hg":           {},
	".svn":          {},
	"node_modules":  {},
	"vendor":        {},
	"__pycache__":   {},
	".venv":         {},
	"venv":          {},
	".tox":          {},
	".mypy_cache":   {},
	".pytest_cache": {},
	".idea":         {},
	".vscode":       {},
	"target":        {},
	"dist":          {},
}

// Options control which files a walk yields
type Options struct {
	MaxFileSize      int64
	Exclude          []string // doublestar globs relative to root
	RespectGitignore bool
	Logger           *slog.Logger
}

// Walker walks a corpus root
type Walker struct {
	opts Options
	log  *slog.Logger
}

// New creates a Walker. Invalid exclude globs are rejected up front.
func New(opts Options) (*Walker, error) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	for _, pattern := range opts.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: exclude glob %q", types.ErrInvalidPattern, pattern)
		}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Walker{opts: opts, log: log}, nil
}

// Walk returns a lazy sequence of source files under root. An unreadable
// root yields a single ErrIO error. Unreadable files are logged and skipped.
// Cancelling ctx ends the sequence with ctx.Err().
func (w *Walker) Walk(ctx context.Context, root string) iter.Seq2[types.SourceFile, error] {
	return func(yield func(types.SourceFile, error) bool) {
		info, err := os.Stat(root)
		if err != nil {
			yield(types.SourceFile{}, fmt.Errorf("%w: root %s: %v", types.ErrIO, root, err))
			return
		}
		if !info.IsDir() {
			yield(types.SourceFile{}, fmt.Errorf("%w: root %s is not a directory", types.ErrIO, root))
			return
		}

		gi := w.loadGitignore(root)
		stop := errors.New("stop")

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if path == root {
					return fmt.Errorf("%w: %v", types.ErrIO, err)
				}
				w.log.Warn("skipping unreadable path", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if path == root {
					return nil
				}
				if w.skipDir(d.Name(), rel, gi) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if w.excluded(rel, gi) {
				return nil
			}

			file, ok := w.read(path, rel)
			if !ok {
				return nil
			}
			if !yield(file, nil) {
				return stop
			}
			return nil
		})

		if err != nil && !errors.Is(err, stop) {
			yield(types.SourceFile{}, err)
		}
	}
}

// Files collects every file under root, sorted by relative path
func (w *Walker) Files(ctx context.Context, root string) ([]types.SourceFile, error) {
	var files []types.SourceFile
	for f, err := range w.Walk(ctx, root) {
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// Accept reports whether a path relative to root would be yielded by a walk,
// without reading it. The daemon uses it to filter watch events.
func (w *Walker) Accept(root, rel string) bool {
	rel = filepath.ToSlash(rel)
	gi := w.loadGitignore(root)
	parts := strings.Split(rel, "/")
	for i := 0; i < len(parts)-1; i++ {
		if w.skipDir(parts[i], strings.Join(parts[:i+1], "/"), gi) {
			return false
		}
	}
	return !w.excluded(rel, gi)
}

// SkipDir reports whether a walk prunes the directory rel under root
func (w *Walker) SkipDir(root, rel string) bool {
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." {
		return false
	}
	gi := w.loadGitignore(root)
	parts := strings.Split(rel, "/")
	for i := range parts {
		if w.skipDir(parts[i], strings.Join(parts[:i+1], "/"), gi) {
			return true
		}
	}
	return false
}

// Load reads rel the way a walk would. ok is false when the file is
// ignored, missing, too large or binary.
func (w *Walker) Load(root, rel string) (types.SourceFile, bool) {
	rel = filepath.ToSlash(rel)
	if !w.Accept(root, rel) {
		return types.SourceFile{}, false
	}
	path := filepath.Join(root, filepath.FromSlash(rel))
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return types.SourceFile{}, false
	}
	return w.read(path, rel)
}

func (w *Walker) skipDir(name, rel string, gi *ignore.GitIgnore) bool {
	if _, skip := skipDirs[name]; skip {
		return true
	}
	if gi != nil && gi.MatchesPath(rel+"/") {
		return true
	}
	for _, pattern := range w.opts.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (w *Walker) excluded(rel string, gi *ignore.GitIgnore) bool {
	if gi != nil && gi.MatchesPath(rel) {
		return true
	}
	for _, pattern := range w.opts.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (w *Walker) read(path, rel string) (types.SourceFile, bool) {
	info, err := os.Stat(path)
	if err != nil {
		w.log.Warn("skipping unreadable file", "path", rel, "error", err)
		return types.SourceFile{}, false
	}
	if info.Size() > w.opts.MaxFileSize {
		w.log.Debug("skipping large file", "path", rel, "size", info.Size())
		return types.SourceFile{}, false
	}
	content, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn("skipping unreadable file", "path", rel, "error", err)
		return types.SourceFile{}, false
	}
	if IsBinary(content) {
		return types.SourceFile{}, false
	}
	return types.SourceFile{
		Path:     path,
		RelPath:  rel,
		Language: LanguageFor(rel),
		Content:  content,
		ModTime:  info.ModTime(),
		Size:     info.Size(),
	}, true
}

func (w *Walker) loadGitignore(root string) *ignore.GitIgnore {
	if !w.opts.RespectGitignore {
		return nil
	}
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}

// IsBinary reports whether content looks binary (a NUL byte in the first 8 KiB)
func IsBinary(content []byte) bool {
	n := len(content)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	return bytes.IndexByte(content[:n], 0) >= 0
}

// ReadFile reads a single file relative to root the same way a walk does.
// It returns ErrIO when the file cannot be read.
func ReadFile(root, rel string) (types.SourceFile, error) {
	path := rel
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, rel)
	}
	info, err := os.Stat(path)
	if err != nil {
		return types.SourceFile{}, fmt.Errorf("%w: %v", types.ErrIO, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return types.SourceFile{}, fmt.Errorf("%w: %v", types.ErrIO, err)
	}
	relPath, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(relPath, "..") {
		relPath = filepath.Base(path)
	}
	relPath = filepath.ToSlash(relPath)
	return types.SourceFile{
		Path:     path,
		RelPath:  relPath,
		Language: LanguageFor(relPath),
		Content:  content,
		ModTime:  info.ModTime(),
		Size:     info.Size(),
	}, nil
}
