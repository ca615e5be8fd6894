package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/codescope/pkg/types"
)

const (
	// DefaultEngineTimeout bounds each sub-engine call
	DefaultEngineTimeout = 30 * time.Second

	// candidateFactor widens sub-engine limits so fusion has more to work with
	candidateFactor = 4
	minCandidates   = 50
)

// Weights are the fusion weights of the hybrid sub-engines
type Weights struct {
	Fuzzy    float64 `json:"fuzzy"`
	Semantic float64 `json:"semantic"`
	Symbol   float64 `json:"symbol"`
}

// DefaultWeights weighs the three engines equally
func DefaultWeights() Weights {
	return Weights{Fuzzy: 1.0 / 3, Semantic: 1.0 / 3, Symbol: 1.0 / 3}
}

// Validate rejects negative weights and an all-zero set
func (w Weights) Validate() error {
	if w.Fuzzy < 0 || w.Semantic < 0 || w.Symbol < 0 {
		return fmt.Errorf("%w: hybrid weights must be non-negative", types.ErrInvalidArgument)
	}
	if w.Fuzzy+w.Semantic+w.Symbol == 0 {
		return fmt.Errorf("%w: hybrid weights must not all be zero", types.ErrInvalidArgument)
	}
	return nil
}

// HybridEngine runs the fuzzy, semantic and symbol engines concurrently
// and fuses their min-max normalized scores with a weighted sum.
type HybridEngine struct {
	engines []Engine
	weights []float64
	timeout time.Duration
	log     *slog.Logger
}

// HybridConfig configures a HybridEngine
type HybridConfig struct {
	Fuzzy    Engine
	Semantic Engine // nil when no embedder is configured
	Symbol   Engine
	Weights  Weights
	Timeout  time.Duration // per sub-engine
	Logger   *slog.Logger
}

// NewHybridEngine creates a hybrid engine. Weights are normalized to sum to 1.
func NewHybridEngine(cfg HybridConfig) (*HybridEngine, error) {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultEngineTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := &HybridEngine{timeout: cfg.Timeout, log: cfg.Logger}
	add := func(e Engine, w float64) {
		if e != nil && w > 0 {
			h.engines = append(h.engines, e)
			h.weights = append(h.weights, w)
		}
	}
	add(cfg.Fuzzy, cfg.Weights.Fuzzy)
	add(cfg.Semantic, cfg.Weights.Semantic)
	add(cfg.Symbol, cfg.Weights.Symbol)
	if len(h.engines) == 0 {
		return nil, fmt.Errorf("%w: hybrid engine needs at least one weighted sub-engine", types.ErrInvalidArgument)
	}

	var total float64
	for _, w := range h.weights {
		total += w
	}
	for i := range h.weights {
		h.weights[i] /= total
	}
	return h, nil
}

// Kind implements Engine
func (h *HybridEngine) Kind() types.EngineKind { return types.EngineHybrid }

// subResult holds the outcome of one sub-engine
type subResult struct {
	matches []types.MatchResult
	err     error
}

// Search implements Engine. A failing or timed-out sub-engine contributes
// nothing; if every sub-engine fails the error wraps ErrAllEnginesFailed
// and each engine's error. Output does not depend on completion order.
func (h *HybridEngine) Search(ctx context.Context, c Corpus, req Request) ([]types.MatchResult, error) {
	if err := requireQuery(req); err != nil {
		return nil, err
	}

	sub := req
	sub.Regex = false
	if req.Limit > 0 {
		sub.Limit = max(req.Limit*candidateFactor, minCandidates)
	}

	// each goroutine writes only its own slot, so the join is order-free
	results := make([]subResult, len(h.engines))
	var wg sync.WaitGroup
	for i, e := range h.engines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ectx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			m, err := e.Search(ectx, c, sub)
			if err == nil {
				err = ectx.Err()
			}
			results[i] = subResult{matches: m, err: err}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var errs []error
	for i, r := range results {
		if r.err != nil {
			kind := h.engines[i].Kind()
			h.log.Warn("hybrid sub-engine failed", "engine", kind, "error", r.err)
			errs = append(errs, fmt.Errorf("%s: %w", kind, r.err))
		}
	}
	if len(errs) == len(h.engines) {
		return nil, fmt.Errorf("%w: %w", types.ErrAllEnginesFailed, errors.Join(errs...))
	}

	fused := fuse(results, h.weights)
	return types.Truncate(fused, req.Limit), nil
}

// fuse min-max normalizes each engine's scores independently, combines them
// with weights and collapses results sharing a (file, span) identity.
// Failed engines (non-nil err) are skipped. The result is sorted by fused
// score descending, then file and line.
func fuse(results []subResult, weights []float64) []types.MatchResult {
	type fusedHit struct {
		res   types.MatchResult
		score float64
	}
	hits := make(map[types.MatchKey]*fusedHit)
	var order []types.MatchKey

	for ei, r := range results {
		if r.err != nil || len(r.matches) == 0 {
			continue
		}
		lo, hi := r.matches[0].Score, r.matches[0].Score
		for _, m := range r.matches {
			lo = min(lo, m.Score)
			hi = max(hi, m.Score)
		}

		// within one engine keep the best normalized score per identity
		best := make(map[types.MatchKey]float64)
		for _, m := range r.matches {
			norm := 1.0
			if hi > lo {
				norm = (m.Score - lo) / (hi - lo)
			}
			k := m.Key()
			if cur, ok := best[k]; !ok || norm > cur {
				best[k] = norm
			}
			h, ok := hits[k]
			if !ok {
				h = &fusedHit{res: m}
				hits[k] = h
				order = append(order, k)
			} else if m.Symbol != nil && h.res.Symbol == nil {
				h.res = m
			}
		}
		for k, norm := range best {
			hits[k].score += weights[ei] * norm
		}
	}

	out := make([]types.MatchResult, 0, len(order))
	for _, k := range order {
		h := hits[k]
		m := h.res
		m.Score = min(h.score, 1.0)
		m.Engine = types.EngineHybrid
		out = append(out, m)
	}
	types.SortByScore(out)
	return out
}
