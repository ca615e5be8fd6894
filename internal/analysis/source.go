package analysis

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/codescope/pkg/types"
)

// fileBatch is the number of files one worker handles at a time
const fileBatch = 32

// Source is the parsed corpus an analyzer reads. *indexer.Snapshot
// satisfies it.
type Source interface {
	Files() []types.SourceFile
	Parse(rel string) *types.ParseResult
}

// parsed pairs a file with its parse result
type parsed struct {
	file  types.SourceFile
	parse *types.ParseResult
}

// collect returns the files of src that have a parse result, in path order
func collect(src Source) []parsed {
	files := src.Files()
	out := make([]parsed, 0, len(files))
	for _, f := range files {
		if p := src.Parse(f.RelPath); p != nil {
			out = append(out, parsed{file: f, parse: p})
		}
	}
	return out
}

// mapFiles applies fn to every item in parallel batches and returns the
// outputs in input order. Cancellation is checked between files.
func mapFiles[T any](ctx context.Context, items []parsed, fn func(parsed) T) ([]T, error) {
	out := make([]T, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for start := 0; start < len(items); start += fileBatch {
		end := min(start+fileBatch, len(items))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				out[i] = fn(items[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, ctx.Err()
}
