package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dshills/codescope/internal/daemon"
	"github.com/dshills/codescope/internal/indexer"
	"github.com/dshills/codescope/pkg/types"
)

// Command names
const (
	Search            = "search"
	SearchSymbol      = "search-symbol"
	SearchFuzzy       = "search-fuzzy"
	SearchSemantic    = "search-semantic"
	SearchHybrid      = "search-hybrid"
	SearchDiff        = "search-diff"
	Blame             = "blame"
	CallGraph         = "call-graph"
	DataFlow          = "data-flow"
	DependencyGraph   = "dependency-graph"
	DetectSmells      = "detect-smells"
	ExtractSignatures = "extract-signatures"
	FindSimilar       = "find-similar"
	Index             = "index"
	Query             = "query"
)

// Corpus says how much of the root a command reads
type Corpus int

const (
	NoCorpus     Corpus = iota // the command talks to git only
	FileCorpus                 // walked files, no parsing
	ParsedCorpus               // files with symbols and parse results
)

// Command describes one command of the command layer
type Command struct {
	Name   string
	Short  string
	Corpus Corpus

	params func() Params
	decode func(json.RawMessage) (any, error)
	run    func(ctx context.Context, a *App, src source, p Params) (any, error)
}

// NewParams returns a zero parameter struct for the command
func (c *Command) NewParams() Params { return c.params() }

var registry = []*Command{
	{
		Name: Search, Short: "Search file contents for a literal or regex pattern", Corpus: FileCorpus,
		params: func() Params { return &SearchParams{} }, decode: decodeAs[[]types.MatchResult], run: runSearch,
	},
	{
		Name: SearchSymbol, Short: "Search symbol names", Corpus: ParsedCorpus,
		params: func() Params { return &QueryParams{} }, decode: decodeAs[[]types.MatchResult], run: runSymbol,
	},
	{
		Name: SearchFuzzy, Short: "Fuzzy search over file paths and lines", Corpus: FileCorpus,
		params: func() Params { return &QueryParams{} }, decode: decodeAs[[]types.MatchResult], run: engineRunner(func(a *App) engine { return a.fuzzy }),
	},
	{
		Name: SearchSemantic, Short: "Search chunks by embedding similarity", Corpus: ParsedCorpus,
		params: func() Params { return &QueryParams{} }, decode: decodeAs[[]types.MatchResult], run: runSemantic,
	},
	{
		Name: SearchHybrid, Short: "Fused fuzzy, semantic and symbol search", Corpus: ParsedCorpus,
		params: func() Params { return &QueryParams{} }, decode: decodeAs[[]types.MatchResult], run: engineRunner(func(a *App) engine { return a.hybrid }),
	},
	{
		Name: SearchDiff, Short: "Search the lines of a git diff", Corpus: NoCorpus,
		params: func() Params { return &DiffParams{} }, decode: decodeAs[[]types.MatchResult], run: runSearchDiff,
	},
	{
		Name: Blame, Short: "Show the commit that last touched a line", Corpus: NoCorpus,
		params: func() Params { return &BlameParams{} }, decode: decodeAs[*types.BlameRecord], run: runBlame,
	},
	{
		Name: CallGraph, Short: "Build the call graph of the root", Corpus: ParsedCorpus,
		params: func() Params { return &GraphParams{} }, decode: decodeAs[*types.Graph], run: runCallGraph,
	},
	{
		Name: DataFlow, Short: "Build the intra-procedural data flow graph of a file", Corpus: ParsedCorpus,
		params: func() Params { return &DataFlowParams{} }, decode: decodeAs[*types.Graph], run: runDataFlow,
	},
	{
		Name: DependencyGraph, Short: "Build the file dependency graph and report cycles", Corpus: ParsedCorpus,
		params: func() Params { return &GraphParams{} }, decode: decodeAs[*types.Graph], run: runDependencyGraph,
	},
	{
		Name: DetectSmells, Short: "Report code smells", Corpus: ParsedCorpus,
		params: func() Params { return &PathParams{} }, decode: decodeAs[[]types.Finding], run: runSmells,
	},
	{
		Name: ExtractSignatures, Short: "List the public call surface", Corpus: ParsedCorpus,
		params: func() Params { return &PathParams{} }, decode: decodeAs[[]types.Signature], run: runSignatures,
	},
	{
		Name: FindSimilar, Short: "Find symbols and code similar to a query", Corpus: ParsedCorpus,
		params: func() Params { return &QueryParams{} }, decode: decodeAs[[]types.MatchResult], run: engineRunner(func(a *App) engine { return a.similar }),
	},
	{
		Name: Index, Short: "Index the root and report statistics", Corpus: ParsedCorpus,
		params: func() Params { return &IndexParams{} }, decode: decodeAs[*indexer.Statistics], run: runIndex,
	},
	{
		Name: Query, Short: "Run a query language expression", Corpus: ParsedCorpus,
		params: func() Params { return &ExprParams{} }, decode: decodeAs[[]types.MatchResult], run: runQuery,
	},
}

// Commands returns every command in declaration order
func Commands() []*Command { return slices.Clone(registry) }

// Lookup finds a command by name
func Lookup(name string) (*Command, bool) {
	for _, c := range registry {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

func lookup(name string) (*Command, error) {
	c, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown command %q", types.ErrInvalidArgument, name)
	}
	return c, nil
}

// Execute runs command name locally. An empty root in p resolves through
// the configuration.
func (a *App) Execute(ctx context.Context, name string, p Params) (any, error) {
	cmd, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if p.root() == "" {
		root, err := a.cfg.ResolveRoot("")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrIO, err)
		}
		p.setRoot(root)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return cmd.run(ctx, a, &local{app: a, dir: p.root(), corpus: cmd.Corpus}, p)
}

// Run runs command name against an existing snapshot
func (a *App) Run(ctx context.Context, snap *indexer.Snapshot, name string, p Params) (any, error) {
	cmd, err := lookup(name)
	if err != nil {
		return nil, err
	}
	p.setRoot(snap.Root())
	if err := p.validate(); err != nil {
		return nil, err
	}
	return cmd.run(ctx, a, live{snap}, p)
}

// Handle implements daemon.Handler
func (a *App) Handle(ctx context.Context, snap *indexer.Snapshot, command string, raw json.RawMessage) (any, error) {
	cmd, err := lookup(command)
	if err != nil {
		return nil, err
	}
	p := cmd.params()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("%w: %s params: %v", types.ErrInvalidArgument, command, err)
		}
	}
	return a.Run(ctx, snap, command, p)
}

var _ daemon.Handler = (*App)(nil)

// Forward sends command name to a daemon and decodes the result into the
// same type a local run returns. Paths in p must be relative to the
// daemon's root.
func Forward(ctx context.Context, c *daemon.Client, name string, p Params) (any, error) {
	cmd, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.Call(ctx, name, p, &raw); err != nil {
		return nil, err
	}
	return cmd.decode(raw)
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return v, nil
}
