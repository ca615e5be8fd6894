package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codescope/internal/config"
	"github.com/dshills/codescope/internal/indexer"
	"github.com/dshills/codescope/pkg/types"
)

var daemonCorpus = map[string]string{
	"a.go": "package demo\n\nfunc Alpha() {}\n",
	"b.go": "package demo\n\nfunc Beta() {}\n",
}

// testHandler serves a few commands used to exercise the daemon
type testHandler struct {
	started   chan struct{}
	cancelled chan struct{}
	slow      time.Duration
}

func newTestHandler() *testHandler {
	return &testHandler{started: make(chan struct{}, 4), cancelled: make(chan struct{}, 4), slow: 200 * time.Millisecond}
}

func (h *testHandler) Handle(ctx context.Context, snap *indexer.Snapshot, command string, _ json.RawMessage) (any, error) {
	switch command {
	case "symbols":
		var names []string
		for _, s := range snap.Symbols() {
			names = append(names, s.Name)
		}
		return names, nil
	case "fail":
		return nil, fmt.Errorf("%w: bad glob", types.ErrInvalidPattern)
	case "panic":
		panic("boom")
	case "slow":
		h.started <- struct{}{}
		time.Sleep(h.slow)
		return "done", nil
	case "block":
		h.started <- struct{}{}
		<-ctx.Done()
		h.cancelled <- struct{}{}
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("%w: unknown command %q", types.ErrInvalidArgument, command)
}

func newDaemon(t *testing.T, root string, h Handler, mod func(*Config)) *Daemon {
	t.Helper()
	idx, err := indexer.New(indexer.Config{Logger: config.Discard()})
	require.NoError(t, err)
	cfg := Config{
		Root:         root,
		Bind:         "127.0.0.1:0",
		Debounce:     30 * time.Millisecond,
		DrainTimeout: 2 * time.Second,
		Indexer:      idx,
		Handler:      h,
		Logger:       config.Discard(),
	}
	if mod != nil {
		mod(&cfg)
	}
	d, err := New(cfg)
	require.NoError(t, err)
	return d
}

func startDaemon(t *testing.T, d *Daemon) {
	t.Helper()
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop(context.Background()) })
}

func dial(t *testing.T, d *Daemon) *Client {
	t.Helper()
	c, err := Dial(context.Background(), d.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func symbols(t *testing.T, c *Client) []string {
	t.Helper()
	var names []string
	require.NoError(t, c.Call(context.Background(), "symbols", nil, &names))
	return names
}

func TestDaemonServesCommands(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, daemonCorpus)
	d := newDaemon(t, root, newTestHandler(), func(c *Config) { c.NoWatch = true })
	startDaemon(t, d)
	c := dial(t, d)
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Serving, st.State)
	assert.Equal(t, 2, st.Files)
	assert.Equal(t, uint64(1), st.Generation)
	assert.Equal(t, d.Addr().String(), st.Addr)

	assert.ElementsMatch(t, []string{"Alpha", "Beta"}, symbols(t, c))

	err = c.Call(ctx, "fail", nil, nil)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "InvalidPattern", re.Kind)
	assert.ErrorIs(t, err, types.ErrInvalidPattern)

	err = c.Call(ctx, "panic", nil, nil)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "Internal", re.Kind)

	// errors never stop the daemon
	assert.Equal(t, Serving, d.State())
	assert.ElementsMatch(t, []string{"Alpha", "Beta"}, symbols(t, c))
}

func TestDaemonWireProtocol(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, daemonCorpus)
	d := newDaemon(t, root, newTestHandler(), func(c *Config) { c.NoWatch = true })
	startDaemon(t, d)

	conn, err := net.Dial("tcp", d.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = fmt.Fprint(conn, "not json\n\n{\"id\":\"1\",\"command\":\"status\"}\n{\"id\":\"2\",\"command\":\"fail\"}\n")
	require.NoError(t, err)

	rd := bufio.NewReader(conn)
	read := func() Response {
		line, err := rd.ReadBytes('\n')
		require.NoError(t, err)
		var r Response
		require.NoError(t, json.Unmarshal(line, &r))
		return r
	}

	r := read()
	assert.Equal(t, "", r.ID)
	assert.Equal(t, StatusError, r.Status)
	assert.Equal(t, "InvalidArgument", r.Error.Kind)

	r = read()
	assert.Equal(t, "1", r.ID)
	assert.Equal(t, StatusOK, r.Status)
	var st Status
	require.NoError(t, json.Unmarshal(r.Result, &st))
	assert.Equal(t, Serving, st.State)

	r = read()
	assert.Equal(t, "2", r.ID)
	assert.Equal(t, StatusError, r.Status)
	assert.Equal(t, "InvalidPattern", r.Error.Kind)
	assert.Nil(t, r.Result)
}

func TestDaemonReindexesOnFileChange(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, daemonCorpus)
	var reindexed atomic.Int32
	d := newDaemon(t, root, newTestHandler(), func(c *Config) {
		c.OnReindex = func(uint64) { reindexed.Add(1) }
	})
	startDaemon(t, d)
	c := dial(t, d)

	writeFiles(t, root, map[string]string{"b.go": "package demo\n\nfunc Beta() {}\n\nfunc Gamma() {}\n"})
	require.Eventually(t, func() bool {
		return slices.Contains(symbols(t, c), "Gamma")
	}, 5*time.Second, 20*time.Millisecond)
	assert.ElementsMatch(t, []string{"Alpha", "Beta", "Gamma"}, symbols(t, c))
	assert.GreaterOrEqual(t, reindexed.Load(), int32(1))

	writeFiles(t, root, map[string]string{"c.go": "package demo\n\nfunc Delta() {}\n"})
	require.Eventually(t, func() bool {
		return slices.Contains(symbols(t, c), "Delta")
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, removeFile(root, "a.go"))
	require.Eventually(t, func() bool {
		return !slices.Contains(symbols(t, c), "Alpha")
	}, 5*time.Second, 20*time.Millisecond)

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Files)
	assert.Greater(t, st.Generation, uint64(1))
}

func TestDaemonIndexCommand(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, daemonCorpus)
	var mu sync.Mutex
	var gens []uint64
	d := newDaemon(t, root, newTestHandler(), func(c *Config) {
		c.NoWatch = true
		c.OnReindex = func(g uint64) {
			mu.Lock()
			gens = append(gens, g)
			mu.Unlock()
		}
	})
	startDaemon(t, d)
	c := dial(t, d)
	ctx := context.Background()

	writeFiles(t, root, map[string]string{"a.go": "package demo\n\nfunc Alpha2() {}\n"})
	var stats indexer.Statistics
	require.NoError(t, c.Call(ctx, CommandIndex, IndexParams{Paths: []string{"a.go", "b.go"}}, &stats))
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesSkipped)
	assert.Equal(t, uint64(2), stats.Generation)
	assert.ElementsMatch(t, []string{"Alpha2", "Beta"}, symbols(t, c))

	writeFiles(t, root, map[string]string{"pkg/c.go": "package pkg\n\nfunc Gamma() {}\n"})
	require.NoError(t, c.Call(ctx, CommandIndex, nil, &stats))
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.ElementsMatch(t, []string{"Alpha2", "Beta", "Gamma"}, symbols(t, c))

	// removing a directory drops the files under it
	require.NoError(t, removeAll(root, "pkg"))
	require.NoError(t, c.Call(ctx, CommandIndex, IndexParams{Paths: []string{"pkg"}}, &stats))
	assert.Equal(t, 1, stats.FilesRemoved)
	assert.ElementsMatch(t, []string{"Alpha2", "Beta"}, symbols(t, c))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{2, 3, 4}, gens)
}

func TestDaemonRestartsOnLockTimeout(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, daemonCorpus)
	d := newDaemon(t, root, newTestHandler(), func(c *Config) {
		c.NoWatch = true
		c.MaxRestarts = 1
	})
	d.update = func(context.Context, *indexer.State, []string, time.Duration) (*indexer.Statistics, error) {
		return nil, fmt.Errorf("%w after 10ms", indexer.ErrLockTimeout)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	require.Eventually(t, func() bool { return d.State() == Serving }, 5*time.Second, 10*time.Millisecond)

	c := dial(t, d)
	err := c.Call(context.Background(), CommandIndex, IndexParams{Paths: []string{"a.go"}}, nil)
	require.Error(t, err)
	require.Eventually(t, func() bool { return d.Restarts() == 1 && d.State() == Serving }, 5*time.Second, 10*time.Millisecond)

	// still answering after the restart
	assert.ElementsMatch(t, []string{"Alpha", "Beta"}, symbols(t, c))

	// a second timeout exceeds MaxRestarts
	_ = c.Call(context.Background(), CommandIndex, IndexParams{Paths: []string{"a.go"}}, nil)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, indexer.ErrLockTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.Equal(t, Stopped, d.State())
}

func TestDaemonRunStopsOnCancel(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, daemonCorpus)
	d := newDaemon(t, root, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	require.Eventually(t, func() bool { return d.State() == Serving }, 5*time.Second, 10*time.Millisecond)

	c := dial(t, d)
	err := c.Call(context.Background(), "symbols", nil, nil)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.Equal(t, Stopped, d.State())
}

func TestDaemonStopDrainsInFlight(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, daemonCorpus)
	h := newTestHandler()
	d := newDaemon(t, root, h, func(c *Config) { c.NoWatch = true })
	startDaemon(t, d)
	c := dial(t, d)
	addr := d.Addr().String()

	result := make(chan string, 1)
	go func() {
		var s string
		if err := c.Call(context.Background(), "slow", nil, &s); err != nil {
			s = err.Error()
		}
		result <- s
	}()
	<-h.started

	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, "done", <-result)
	assert.Equal(t, Stopped, d.State())

	_, err := Dial(context.Background(), addr)
	assert.ErrorIs(t, err, types.ErrUnavailable)
}

func TestDaemonStopCancelsAfterDrainTimeout(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, daemonCorpus)
	h := newTestHandler()
	d := newDaemon(t, root, h, func(c *Config) {
		c.NoWatch = true
		c.DrainTimeout = 50 * time.Millisecond
	})
	startDaemon(t, d)
	c := dial(t, d)

	errc := make(chan error, 1)
	go func() { errc <- c.Call(context.Background(), "block", nil, nil) }()
	<-h.started

	assert.ErrorIs(t, d.Stop(context.Background()), ErrDrainTimeout)
	select {
	case <-h.cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not cancelled")
	}
	assert.Error(t, <-errc)
}

func TestClientDisconnectCancelsRequest(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, daemonCorpus)
	h := newTestHandler()
	d := newDaemon(t, root, h, func(c *Config) { c.NoWatch = true })
	startDaemon(t, d)
	c := dial(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Call(ctx, "block", nil, nil) }()
	<-h.started
	cancel()

	assert.ErrorIs(t, <-errc, context.Canceled)
	select {
	case <-h.cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not cancelled")
	}
	assert.Equal(t, Serving, d.State())

	// the client is unusable after a cancelled call
	assert.ErrorIs(t, c.Call(context.Background(), CommandStatus, nil, nil), types.ErrUnavailable)
}

func TestDaemonLifecycleErrors(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	root := t.TempDir()
	writeFiles(t, root, daemonCorpus)
	d := newDaemon(t, root, nil, func(c *Config) { c.NoWatch = true })
	assert.Equal(t, Stopped, d.State())
	assert.Nil(t, d.Addr())
	assert.Nil(t, d.Snapshot())
	assert.NoError(t, d.Stop(context.Background()))

	startDaemon(t, d)
	assert.ErrorIs(t, d.Start(context.Background()), ErrRunning)
	assert.Equal(t, 2, len(d.Snapshot().Files()))

	busy := newDaemon(t, root, nil, func(c *Config) { c.Bind = d.Addr().String() })
	err = busy.Start(context.Background())
	assert.ErrorIs(t, err, types.ErrIO)
	assert.Equal(t, Stopped, busy.State())
}

func TestExpand(t *testing.T) {
	state := indexer.NewState("/src", []*indexer.Entry{
		indexer.NewEntry(types.SourceFile{RelPath: "c.go"}, nil),
		indexer.NewEntry(types.SourceFile{RelPath: "pkg/a.go"}, nil),
		indexer.NewEntry(types.SourceFile{RelPath: "pkg/b.go"}, nil),
		indexer.NewEntry(types.SourceFile{RelPath: "pkgx/d.go"}, nil),
	})
	assert.Equal(t, []string{"c.go"}, expand(state, []string{"c.go"}))
	assert.Equal(t, []string{"pkg", "pkg/a.go", "pkg/b.go"}, expand(state, []string{"pkg"}))
	assert.Equal(t, []string{"new.go"}, expand(state, []string{"new.go"}))
}

func TestStateText(t *testing.T) {
	for _, s := range []State{Stopped, Starting, Serving, Draining} {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var back State
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}
	assert.Equal(t, "unknown", State(42).String())
}

func TestRemoteErrorUnwrap(t *testing.T) {
	err := error(&RemoteError{Kind: "GitBackendError", Message: "git: not a repository"})
	assert.ErrorIs(t, err, types.ErrGitBackend)
	assert.Equal(t, "GitBackendError", types.ErrorKind(err))
	assert.False(t, errors.Is(&RemoteError{Kind: "Internal"}, types.ErrGitBackend))
}
