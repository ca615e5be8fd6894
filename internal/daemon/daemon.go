package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/dshills/codescope/internal/indexer"
	"github.com/dshills/codescope/pkg/types"
)

// Defaults for zero Config fields
const (
	DefaultBind              = "127.0.0.1:7477"
	DefaultWriterLockTimeout = 10 * time.Second
	DefaultDrainTimeout      = 5 * time.Second
)

var (
	// ErrRunning is returned by Start when the daemon is not stopped
	ErrRunning = errors.New("daemon already running")

	// ErrDrainTimeout is returned by Stop when in-flight requests had to be
	// cancelled
	ErrDrainTimeout = errors.New("drain timed out")
)

// Handler answers every command the daemon does not handle itself
type Handler interface {
	Handle(ctx context.Context, snap *indexer.Snapshot, command string, params json.RawMessage) (any, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, snap *indexer.Snapshot, command string, params json.RawMessage) (any, error)

// Handle implements Handler
func (f HandlerFunc) Handle(ctx context.Context, snap *indexer.Snapshot, command string, params json.RawMessage) (any, error) {
	return f(ctx, snap, command, params)
}

// Config configures a Daemon
type Config struct {
	Root              string
	Bind              string
	Debounce          time.Duration
	WriterLockTimeout time.Duration
	DrainTimeout      time.Duration
	MaxRestarts       int
	NoWatch           bool // serve without watching the root

	Indexer *indexer.Indexer
	Handler Handler
	Logger  *slog.Logger

	// OnReindex is called after each batch is applied and after a restart
	OnReindex func(generation uint64)
}

// Status is the answer to the status command
type Status struct {
	State      State    `json:"state"`
	Root       string   `json:"root"`
	Addr       string   `json:"addr"`
	Generation uint64   `json:"generation"`
	Files      int      `json:"files"`
	Symbols    int      `json:"symbols"`
	Languages  []string `json:"languages"`
	Restarts   int      `json:"restarts"`
	Uptime     float64  `json:"uptime_seconds"`
}

type updateFunc func(ctx context.Context, state *indexer.State, rels []string, timeout time.Duration) (*indexer.Statistics, error)

// Daemon serves commands against a live index
type Daemon struct {
	cfg Config
	idx *indexer.Indexer
	log *slog.Logger

	// update applies an incremental batch; replaced in tests
	update updateFunc

	mu       sync.Mutex
	state    State
	index    *indexer.State
	ln       net.Listener
	watcher  *Watcher
	conns    map[net.Conn]struct{}
	started  time.Time
	restarts int
	ctx      context.Context // cancelled when draining ends
	cancel   context.CancelFunc

	reindexMu sync.Mutex
	inflight  sync.WaitGroup
	connWG    sync.WaitGroup
	loopWG    sync.WaitGroup
	watchWG   sync.WaitGroup
	fatal     chan error
}

// New creates a stopped daemon
func New(cfg Config) (*Daemon, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: daemon needs a root", types.ErrInvalidArgument)
	}
	if cfg.Bind == "" {
		cfg.Bind = DefaultBind
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.WriterLockTimeout <= 0 {
		cfg.WriterLockTimeout = DefaultWriterLockTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	idx := cfg.Indexer
	if idx == nil {
		var err error
		if idx, err = indexer.New(indexer.Config{Logger: cfg.Logger}); err != nil {
			return nil, err
		}
	}
	d := &Daemon{
		cfg:   cfg,
		idx:   idx,
		log:   cfg.Logger,
		conns: make(map[net.Conn]struct{}),
		fatal: make(chan error, 1),
	}
	d.update = idx.Update
	return d, nil
}

// State returns the lifecycle state
func (d *Daemon) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Addr returns the listening address, or nil when not listening
func (d *Daemon) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ln == nil {
		return nil
	}
	return d.ln.Addr()
}

// Restarts returns how many times the index has been rebuilt after a
// writer lock timeout
func (d *Daemon) Restarts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.restarts
}

// Snapshot returns the current index view, or nil before the first build
func (d *Daemon) Snapshot() *indexer.Snapshot {
	d.mu.Lock()
	state := d.index
	d.mu.Unlock()
	if state == nil {
		return nil
	}
	return state.Snapshot()
}

// Status summarizes the daemon
func (d *Daemon) Status() Status {
	d.mu.Lock()
	st := Status{State: d.state, Root: d.cfg.Root, Restarts: d.restarts}
	if d.ln != nil {
		st.Addr = d.ln.Addr().String()
	}
	if !d.started.IsZero() {
		st.Uptime = time.Since(d.started).Seconds()
	}
	state := d.index
	d.mu.Unlock()
	if state != nil {
		s := state.Snapshot().Stats()
		st.Generation, st.Files, st.Symbols, st.Languages = s.Generation, s.Files, s.Symbols, s.Languages
	}
	return st
}

// Start builds the index, starts listening and starts the file watch. It
// returns once the daemon is Serving.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.state != Stopped {
		d.mu.Unlock()
		return ErrRunning
	}
	d.state = Starting
	d.mu.Unlock()

	if err := d.start(ctx); err != nil {
		d.mu.Lock()
		d.state = Stopped
		d.mu.Unlock()
		return err
	}
	return nil
}

func (d *Daemon) start(ctx context.Context) error {
	state, stats, err := d.idx.Build(ctx, d.cfg.Root)
	if err != nil {
		return fmt.Errorf("initial index: %w", err)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", d.cfg.Bind)
	if err != nil {
		return fmt.Errorf("%w: listen %s: %w", types.ErrIO, d.cfg.Bind, err)
	}

	d.mu.Lock()
	d.index = state
	d.ln = ln
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.mu.Unlock()

	if err := d.startWatch(); err != nil {
		d.cancel()
		_ = ln.Close()
		return err
	}

	d.mu.Lock()
	d.started = time.Now()
	d.state = Serving
	d.mu.Unlock()

	d.loopWG.Add(1)
	go d.acceptLoop(ln)
	d.log.Info("daemon serving", "addr", ln.Addr().String(), "root", d.cfg.Root,
		"files", stats.FilesIndexed, "symbols", stats.SymbolsExtracted)
	return nil
}

func (d *Daemon) startWatch() error {
	if d.cfg.NoWatch {
		return nil
	}
	w, err := NewWatcher(d.cfg.Root, d.cfg.Debounce, func(rel string) bool {
		return d.idx.Walker().SkipDir(d.cfg.Root, rel)
	}, d.log)
	if err != nil {
		return fmt.Errorf("%w: watch %s: %w", types.ErrIO, d.cfg.Root, err)
	}
	if err := w.Start(); err != nil {
		_ = w.Close()
		return fmt.Errorf("%w: watch %s: %w", types.ErrIO, d.cfg.Root, err)
	}
	d.mu.Lock()
	d.watcher = w
	d.mu.Unlock()

	d.watchWG.Add(1)
	go func() {
		defer d.watchWG.Done()
		for batch := range w.Batches() {
			if _, err := d.Reindex(d.ctx, batch); err != nil && !errors.Is(err, context.Canceled) {
				d.log.Error("reindex failed", "paths", len(batch), "error", err)
			}
		}
	}()
	return nil
}

func (d *Daemon) stopWatch() {
	d.mu.Lock()
	w := d.watcher
	d.watcher = nil
	d.mu.Unlock()
	if w != nil {
		_ = w.Close()
	}
	d.watchWG.Wait()
}

// Run starts the daemon and serves until ctx is cancelled. A writer lock
// timeout rebuilds the index; more than MaxRestarts of them stop the
// daemon with an error.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return d.shutdown()
		case err := <-d.fatal:
			d.mu.Lock()
			d.restarts++
			n := d.restarts
			d.mu.Unlock()
			if n > d.cfg.MaxRestarts {
				d.log.Error("giving up after repeated writer lock timeouts", "restarts", n-1)
				_ = d.shutdown()
				return fmt.Errorf("daemon stopped after %d restarts: %w", n-1, err)
			}
			d.log.Warn("restarting index", "reason", err, "restart", n)
			if err := d.restart(ctx); err != nil {
				_ = d.shutdown()
				return fmt.Errorf("restart: %w", err)
			}
		}
	}
}

func (d *Daemon) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.DrainTimeout+time.Second)
	defer cancel()
	return d.Stop(ctx)
}

// restart rebuilds the index and the watch. The listener stays open and
// requests keep being answered from the old index until the new one is in.
func (d *Daemon) restart(ctx context.Context) error {
	d.mu.Lock()
	if d.state != Serving {
		d.mu.Unlock()
		return nil
	}
	d.state = Starting
	d.mu.Unlock()

	d.stopWatch()

	d.reindexMu.Lock()
	state, _, err := d.idx.Build(ctx, d.cfg.Root)
	d.reindexMu.Unlock()
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.index = state
	d.mu.Unlock()

	if err := d.startWatch(); err != nil {
		return err
	}
	d.mu.Lock()
	stopping := d.state != Starting
	if !stopping {
		d.state = Serving
	}
	d.mu.Unlock()
	if stopping {
		d.stopWatch()
		return nil
	}
	d.notify(state.Generation())
	return nil
}

func (d *Daemon) notify(gen uint64) {
	if d.cfg.OnReindex != nil {
		d.cfg.OnReindex(gen)
	}
}

// Reindex brings the index up to date for rels, or rescans the whole root
// when rels is empty. A writer lock timeout schedules a restart.
func (d *Daemon) Reindex(ctx context.Context, rels []string) (*indexer.Statistics, error) {
	d.reindexMu.Lock()
	defer d.reindexMu.Unlock()

	d.mu.Lock()
	state := d.index
	d.mu.Unlock()
	if state == nil {
		return nil, fmt.Errorf("%w: daemon has no index", types.ErrUnavailable)
	}

	before := state.Generation()
	var stats *indexer.Statistics
	var err error
	if len(rels) == 0 {
		stats, err = d.idx.Refresh(ctx, state, d.cfg.WriterLockTimeout)
	} else {
		stats, err = d.update(ctx, state, expand(state, rels), d.cfg.WriterLockTimeout)
	}
	if err != nil {
		if errors.Is(err, indexer.ErrLockTimeout) {
			select {
			case d.fatal <- err:
			default:
			}
		}
		return nil, err
	}
	if stats.Generation != before {
		d.notify(stats.Generation)
	}
	return stats, nil
}

// expand adds the indexed files under any path that is not itself an
// indexed file, so a removed or renamed directory drops its files
func expand(state *indexer.State, rels []string) []string {
	out := rels
	var paths []string
	for _, rel := range rels {
		if _, ok := state.Fingerprint(rel); ok {
			continue
		}
		if paths == nil {
			paths = state.Paths()
		}
		prefix := strings.TrimSuffix(rel, "/") + "/"
		for _, p := range paths {
			if strings.HasPrefix(p, prefix) {
				out = append(out, p)
			}
		}
	}
	return out
}

// Stop drains the daemon: no new connections or requests are accepted,
// in-flight requests get DrainTimeout to finish and are then cancelled.
// It returns ErrDrainTimeout when requests had to be cancelled.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.state == Stopped || d.state == Draining || d.ln == nil {
		d.mu.Unlock()
		return nil
	}
	d.state = Draining
	ln := d.ln
	d.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	d.loopWG.Wait()
	d.stopWatch()

	drained := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(drained)
	}()
	var err error
	select {
	case <-drained:
	case <-time.After(d.cfg.DrainTimeout):
		err = ErrDrainTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		d.log.Warn("cancelling in-flight requests", "reason", err)
	}

	d.cancel()
	d.mu.Lock()
	for c := range d.conns {
		_ = c.Close()
	}
	d.mu.Unlock()
	d.connWG.Wait()
	<-drained

	d.mu.Lock()
	d.state = Stopped
	d.ln = nil
	d.mu.Unlock()
	d.log.Info("daemon stopped")
	return err
}

func (d *Daemon) acceptLoop(ln net.Listener) {
	defer d.loopWG.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			d.log.Warn("accept failed", "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if !d.track(conn) {
			_ = conn.Close()
			continue
		}
		go d.serveConn(conn)
	}
}

// track registers conn unless the daemon is draining
func (d *Daemon) track(conn net.Conn) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Draining || d.state == Stopped {
		return false
	}
	d.conns[conn] = struct{}{}
	d.connWG.Add(2) // connection loop and its reader
	return true
}

func (d *Daemon) untrack(conn net.Conn) {
	d.mu.Lock()
	delete(d.conns, conn)
	d.mu.Unlock()
}

// serveConn answers requests in order. The reader runs ahead so that a
// client disconnect cancels the request being served.
func (d *Daemon) serveConn(conn net.Conn) {
	defer d.connWG.Done()
	defer d.untrack(conn)
	defer conn.Close()

	ctx, cancel := context.WithCancel(d.ctx)
	defer cancel()

	lines := make(chan []byte)
	go func() {
		defer d.connWG.Done()
		defer close(lines)
		defer cancel()
		sc := bufio.NewScanner(conn)
		sc.Buffer(make([]byte, 0, 64<<10), maxLine)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			select {
			case lines <- bytes.Clone(line):
			case <-ctx.Done():
				return
			}
		}
	}()

	enc := json.NewEncoder(conn)
	for line := range lines {
		resp, counted := d.dispatch(ctx, line)
		err := enc.Encode(resp)
		if counted {
			// the request only stops being in flight once its answer is out
			d.inflight.Done()
		}
		if err != nil {
			d.log.Debug("client gone", "error", err)
			return
		}
	}
}

// begin registers an in-flight request unless the daemon is draining
func (d *Daemon) begin() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Serving && d.state != Starting {
		return false
	}
	d.inflight.Add(1)
	return true
}

// dispatch answers one request line. counted reports whether the request
// was registered as in flight; the caller releases it.
func (d *Daemon) dispatch(ctx context.Context, line []byte) (resp Response, counted bool) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse("", fmt.Errorf("%w: malformed request: %v", types.ErrInvalidArgument, err)), false
	}
	if !d.begin() {
		return errorResponse(req.ID, fmt.Errorf("%w: daemon is draining", types.ErrUnavailable)), false
	}
	counted = true
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("command panicked", "command", req.Command, "panic", r)
			resp = errorResponse(req.ID, fmt.Errorf("%s: panic: %v", req.Command, r))
		}
	}()

	start := time.Now()
	result, err := d.handle(ctx, req)
	if err != nil {
		d.log.Debug("command failed", "id", req.ID, "command", req.Command, "error", err)
		return errorResponse(req.ID, err), true
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, fmt.Errorf("encode result: %w", err)), true
	}
	d.log.Debug("command served", "id", req.ID, "command", req.Command, "duration", time.Since(start))
	return Response{ID: req.ID, Status: StatusOK, Result: raw}, true
}

func (d *Daemon) handle(ctx context.Context, req Request) (any, error) {
	switch req.Command {
	case CommandStatus:
		return d.Status(), nil
	case CommandIndex:
		var p IndexParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &p); err != nil {
				return nil, fmt.Errorf("%w: index params: %v", types.ErrInvalidArgument, err)
			}
		}
		return d.Reindex(ctx, p.Paths)
	}
	if d.cfg.Handler == nil {
		return nil, fmt.Errorf("%w: unknown command %q", types.ErrInvalidArgument, req.Command)
	}
	snap := d.Snapshot()
	if snap == nil {
		return nil, fmt.Errorf("%w: daemon has no index", types.ErrUnavailable)
	}
	return d.cfg.Handler.Handle(ctx, snap, req.Command, req.Params)
}
