package indexer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dshills/codescope/pkg/types"
)

// ErrLockTimeout is returned when the writer lock cannot be acquired within
// the configured bound. Callers treat it as fatal.
var ErrLockTimeout = errors.New("index writer lock timeout")

// lockPollInterval is how often a blocked writer retries TryLock
const lockPollInterval = 2 * time.Millisecond

// Entry is the indexed view of one file
type Entry struct {
	File        types.SourceFile
	Parse       *types.ParseResult // nil when the file was scanned but not parsed
	Fingerprint uint64
}

// NewEntry fingerprints file and pairs it with its parse result
func NewEntry(file types.SourceFile, parse *types.ParseResult) *Entry {
	return &Entry{File: file, Parse: parse, Fingerprint: Fingerprint(file.Content)}
}

// Fingerprint hashes file content for change detection
func Fingerprint(content []byte) uint64 {
	return xxhash.Sum64(content)
}

// Batch is a set of changes applied to a State in one step
type Batch struct {
	Updates  []*Entry
	Removals []string // relative paths
}

// Empty reports whether the batch changes nothing
func (b *Batch) Empty() bool {
	return b == nil || (len(b.Updates) == 0 && len(b.Removals) == 0)
}

// Paths returns the sorted relative paths touched by the batch
func (b *Batch) Paths() []string {
	out := make([]string, 0, len(b.Updates)+len(b.Removals))
	for _, e := range b.Updates {
		out = append(out, e.File.RelPath)
	}
	out = append(out, b.Removals...)
	sort.Strings(out)
	return out
}

// State is the live index owned by the daemon: symbols and fingerprints per
// file plus a generation counter. Readers take immutable snapshots under the
// read lock; Apply swaps in a new snapshot under the write lock, so a reader
// sees either all of a batch or none of it.
type State struct {
	applyMu  sync.Mutex // serializes Apply
	mu       sync.RWMutex
	root     string
	entries  map[string]*Entry
	snapshot *Snapshot
}

// NewState builds a state at generation 1 from entries
func NewState(root string, entries []*Entry) *State {
	m := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		m[e.File.RelPath] = e
	}
	return &State{
		root:     root,
		entries:  m,
		snapshot: newSnapshot(root, 1, m),
	}
}

// Root returns the indexed root directory
func (s *State) Root() string { return s.root }

// Snapshot returns the current immutable view
func (s *State) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Generation returns the number of applied batches plus one
func (s *State) Generation() uint64 {
	return s.Snapshot().Generation()
}

// Fingerprint returns the stored fingerprint for rel
func (s *State) Fingerprint(rel string) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[rel]
	if !ok {
		return 0, false
	}
	return e.Fingerprint, true
}

// Paths returns every indexed relative path, sorted
func (s *State) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.entries))
}

// Apply installs batch atomically. The new snapshot is built before the
// lock is taken; only the swap happens under it. Waiting for the lock is
// bounded by timeout (zero means wait indefinitely) and returns
// ErrLockTimeout when exceeded.
func (s *State) Apply(ctx context.Context, batch *Batch, timeout time.Duration) (uint64, error) {
	if batch.Empty() {
		return s.Generation(), nil
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	// entries only changes under applyMu, so a read lock suffices here
	s.mu.RLock()
	next := maps.Clone(s.entries)
	gen := s.snapshot.generation + 1
	s.mu.RUnlock()

	for _, rel := range batch.Removals {
		delete(next, rel)
	}
	for _, e := range batch.Updates {
		next[e.File.RelPath] = e
	}
	snap := newSnapshot(s.root, gen, next)

	if err := s.lock(ctx, timeout); err != nil {
		return 0, err
	}
	s.entries = next
	s.snapshot = snap
	s.mu.Unlock()
	return gen, nil
}

func (s *State) lock(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		s.mu.Lock()
		return nil
	}
	deadline := time.Now().Add(timeout)
	for !s.mu.TryLock() {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s", ErrLockTimeout, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
	return nil
}

// Snapshot is an immutable view of the index at one generation
type Snapshot struct {
	root       string
	generation uint64
	files      []types.SourceFile
	symbols    []types.Symbol
	parses     map[string]*types.ParseResult
	byFile     map[string][]types.Symbol
	index      map[string]int
}

// NewSnapshot builds a standalone snapshot from entries
func NewSnapshot(root string, entries []*Entry) *Snapshot {
	m := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		m[e.File.RelPath] = e
	}
	return newSnapshot(root, 1, m)
}

func newSnapshot(root string, gen uint64, entries map[string]*Entry) *Snapshot {
	snap := &Snapshot{
		root:       root,
		generation: gen,
		files:      make([]types.SourceFile, 0, len(entries)),
		parses:     make(map[string]*types.ParseResult, len(entries)),
		byFile:     make(map[string][]types.Symbol, len(entries)),
		index:      make(map[string]int, len(entries)),
	}
	for _, rel := range slices.Sorted(maps.Keys(entries)) {
		e := entries[rel]
		snap.index[rel] = len(snap.files)
		snap.files = append(snap.files, e.File)
		if e.Parse == nil {
			continue
		}
		snap.parses[rel] = e.Parse
		syms := make([]types.Symbol, len(e.Parse.Symbols))
		copy(syms, e.Parse.Symbols)
		for i := range syms {
			syms[i].File = rel
			if syms[i].Language == "" {
				syms[i].Language = e.File.Language
			}
		}
		sort.SliceStable(syms, func(i, j int) bool {
			a, b := syms[i].Span, syms[j].Span
			if a.StartLine != b.StartLine {
				return a.StartLine < b.StartLine
			}
			return a.StartCol < b.StartCol
		})
		snap.byFile[rel] = syms
		snap.symbols = append(snap.symbols, syms...)
	}
	return snap
}

// Root returns the indexed root directory
func (s *Snapshot) Root() string { return s.root }

// Generation identifies the batch this snapshot reflects
func (s *Snapshot) Generation() uint64 { return s.generation }

// Files returns all files sorted by relative path. The slice is shared.
func (s *Snapshot) Files() []types.SourceFile { return s.files }

// Symbols returns all symbols sorted by file then position. The slice is shared.
func (s *Snapshot) Symbols() []types.Symbol { return s.symbols }

// File looks up a file by relative path
func (s *Snapshot) File(rel string) (types.SourceFile, bool) {
	i, ok := s.index[rel]
	if !ok {
		return types.SourceFile{}, false
	}
	return s.files[i], true
}

// Parse returns the parse result for rel, or nil
func (s *Snapshot) Parse(rel string) *types.ParseResult { return s.parses[rel] }

// SymbolsIn returns the symbols defined in rel
func (s *Snapshot) SymbolsIn(rel string) []types.Symbol { return s.byFile[rel] }

// Parses returns parse results in file order, skipping unparsed files
func (s *Snapshot) Parses() []*types.ParseResult {
	out := make([]*types.ParseResult, 0, len(s.parses))
	for _, f := range s.files {
		if p := s.parses[f.RelPath]; p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Stats summarizes the snapshot
func (s *Snapshot) Stats() Stats {
	st := Stats{Generation: s.generation, Files: len(s.files), Symbols: len(s.symbols)}
	langs := make(map[string]int)
	for _, f := range s.files {
		langs[f.Language]++
	}
	for _, l := range slices.Sorted(maps.Keys(langs)) {
		st.Languages = append(st.Languages, fmt.Sprintf("%s:%d", l, langs[l]))
	}
	return st
}

// Stats is a point-in-time summary of a snapshot
type Stats struct {
	Generation uint64   `json:"generation"`
	Files      int      `json:"files"`
	Symbols    int      `json:"symbols"`
	Languages  []string `json:"languages"`
}

func (st Stats) String() string {
	return fmt.Sprintf("generation %d: %d files, %d symbols (%s)", st.Generation, st.Files, st.Symbols, strings.Join(st.Languages, " "))
}
