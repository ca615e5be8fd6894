package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/codescope/pkg/types"
)

// DefaultTimeout bounds a single git invocation
const DefaultTimeout = 30 * time.Second

// Backend runs git queries and returns their raw output
type Backend interface {
	// Blame returns `git blame --porcelain` output for one line of path
	Blame(ctx context.Context, root, path string, line int) ([]byte, error)

	// Diff returns the unified diff for revspec
	Diff(ctx context.Context, root, revspec string) ([]byte, error)
}

// ExecBackend shells out to the git binary
type ExecBackend struct {
	Binary  string
	Timeout time.Duration
}

// NewExecBackend creates an exec backend. Empty binary means "git".
func NewExecBackend(binary string, timeout time.Duration) *ExecBackend {
	if binary == "" {
		binary = "git"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecBackend{Binary: binary, Timeout: timeout}
}

// Blame implements Backend
func (b *ExecBackend) Blame(ctx context.Context, root, path string, line int) ([]byte, error) {
	lines := strconv.Itoa(line) + "," + strconv.Itoa(line)
	return b.run(ctx, root, "blame", "--porcelain", "-L", lines, "--", path)
}

// Diff implements Backend
func (b *ExecBackend) Diff(ctx context.Context, root, revspec string) ([]byte, error) {
	args := []string{"diff", "--unified=3", "--no-color", "--no-ext-diff"}
	if revspec != "" {
		args = append(args, revspec)
	}
	return b.run(ctx, root, append(args, "--")...)
}

func (b *ExecBackend) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, b.Binary, args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: git %s timed out after %s", types.ErrGitBackend, args[0], b.Timeout)
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return nil, fmt.Errorf("%w: git %s: %s", types.ErrGitBackend, args[0], msg)
	}
	return nil, fmt.Errorf("%w: git %s: %w", types.ErrGitBackend, args[0], err)
}
