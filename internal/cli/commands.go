package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dshills/codescope/internal/commands"
	"github.com/dshills/codescope/internal/config"
	"github.com/dshills/codescope/internal/daemon"
	"github.com/dshills/codescope/pkg/types"
)

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// commandFor turns a registry entry into a subcommand. Flags come from the
// command's parameter struct; the main argument may also be positional.
func commandFor(e *env, c *commands.Command) *cobra.Command {
	p := c.NewParams()
	cmd := &cobra.Command{
		Use:   c.Name,
		Short: c.Short,
		Args:  cobra.ArbitraryArgs,
	}
	finish := bindParams(cmd.Flags(), p)
	cmd.Use += usage(p)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, root, err := e.load()
		if err != nil {
			return err
		}
		if err := finish(root, args); err != nil {
			return err
		}
		result, err := e.execute(cmd.Context(), cfg, root, c.Name, p)
		if err != nil {
			return err
		}
		return commands.Render(e.stdout, e.output, result)
	}
	return cmd
}

// execute forwards to a daemon serving root when --daemon is given and
// falls back to a local run when the daemon is unreachable or serves
// another root
func (e *env) execute(ctx context.Context, cfg *config.Config, root, name string, p commands.Params) (any, error) {
	log := e.logger(cfg)
	if e.daemon != "" {
		c, err := daemon.Dial(ctx, e.daemon)
		if err == nil {
			defer c.Close()
			st, err := c.Status(ctx)
			switch {
			case err != nil:
				log.Warn("daemon status failed, running locally", "addr", e.daemon, "error", err)
			case st.Root != root:
				log.Warn("daemon serves another root, running locally", "addr", e.daemon, "daemon_root", st.Root, "root", root)
			default:
				return commands.Forward(ctx, c, name, p)
			}
		} else {
			log.Warn("daemon unreachable, running locally", "addr", e.daemon, "error", err)
		}
	}

	a, err := commands.New(ctx, commands.Options{Config: cfg, Logger: log})
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.Execute(ctx, name, p)
}

// bindParams registers the flags of p and returns a function that applies
// positional arguments and makes path flags relative to the root
// (see resolvePath)
func bindParams(fs *pflag.FlagSet, p commands.Params) func(root string, args []string) error {
	noArgs := func(args []string) error {
		if len(args) > 0 {
			return usageError("unexpected arguments %q", args)
		}
		return nil
	}
	rel := func(root string, path *string) error {
		r, err := resolvePath(root, *path)
		if err != nil {
			return err
		}
		*path = r
		return nil
	}

	switch p := p.(type) {
	case *commands.SearchParams:
		fs.StringVar(&p.Pattern, "pattern", "", "pattern to look for (or the first argument)")
		fs.BoolVar(&p.Regex, "regex", false, "treat the pattern as a regular expression")
		fs.BoolVarP(&p.IgnoreCase, "ignore-case", "i", false, "match case-insensitively")
		fs.IntVarP(&p.Limit, "limit", "n", 0, "maximum number of results (0 = configured default)")
		return func(_ string, args []string) error {
			return positional(&p.Pattern, "pattern", args)
		}
	case *commands.QueryParams:
		fs.StringVarP(&p.Query, "query", "q", "", "query text (or the arguments)")
		fs.IntVarP(&p.Limit, "limit", "n", 0, "maximum number of results (0 = configured default)")
		fs.StringSliceVar(&p.Kinds, "kind", nil, "restrict to these symbol kinds")
		return func(_ string, args []string) error {
			return positional(&p.Query, "query", args)
		}
	case *commands.ExprParams:
		fs.StringVarP(&p.Expr, "expr", "e", "", "query expression (or the arguments)")
		fs.IntVarP(&p.Limit, "limit", "n", 0, "maximum number of results (0 = configured default)")
		return func(_ string, args []string) error {
			return positional(&p.Expr, "expr", args)
		}
	case *commands.DiffParams:
		fs.StringVar(&p.Revspec, "revspec", "", "revision or range to diff (default HEAD)")
		fs.StringVar(&p.Pattern, "pattern", "", "pattern to look for (or the first argument)")
		fs.BoolVar(&p.Regex, "regex", false, "treat the pattern as a regular expression")
		fs.BoolVarP(&p.IgnoreCase, "ignore-case", "i", false, "match case-insensitively")
		fs.IntVarP(&p.Limit, "limit", "n", 0, "maximum number of results (0 = configured default)")
		return func(_ string, args []string) error {
			return positional(&p.Pattern, "pattern", args)
		}
	case *commands.BlameParams:
		fs.StringVar(&p.Path, "path", "", "file to blame, relative to the working directory or the root")
		fs.IntVar(&p.Line, "line", 0, "1-based line number")
		return func(root string, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			return rel(root, &p.Path)
		}
	case *commands.DataFlowParams:
		fs.StringVar(&p.Path, "path", "", "file to analyze, relative to the working directory or the root")
		fs.StringVar(&p.Function, "function", "", "only this function (name or Type.method)")
		return func(root string, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			return rel(root, &p.Path)
		}
	case *commands.PathParams:
		fs.StringVar(&p.Path, "path", "", "file or directory to check, relative to the working directory or the root (default the whole root)")
		fs.BoolVar(&p.IncludePrivate, "include-private", false, "include unexported functions")
		return func(root string, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			return rel(root, &p.Path)
		}
	case *commands.GraphParams:
		fs.StringVar(&p.Module, "module", "", "Go module path, overriding go.mod")
		return func(_ string, args []string) error { return noArgs(args) }
	case *commands.IndexParams:
		return func(root string, args []string) error {
			p.Paths = p.Paths[:0]
			for _, a := range args {
				r, err := resolvePath(root, a)
				if err != nil {
					return err
				}
				p.Paths = append(p.Paths, r)
			}
			return nil
		}
	default:
		panic(fmt.Sprintf("cli: no flags for %T", p))
	}
}

// resolvePath makes p relative to the root. A relative path that names an
// existing file or directory under the working directory, inside the root,
// is taken from there; any other relative path is relative to the root.
func resolvePath(root, p string) (string, error) {
	if p != "" && !filepath.IsAbs(p) {
		if abs, err := filepath.Abs(p); err == nil {
			if _, err := os.Stat(abs); err == nil {
				if r, err := commands.RelPath(root, abs); err == nil {
					return r, nil
				}
			}
		}
	}
	return commands.RelPath(root, p)
}

// positional joins the arguments into *dst unless the flag already set it
func positional(dst *string, name string, args []string) error {
	if len(args) == 0 {
		return nil
	}
	if *dst != "" {
		return usageError("give --%s or an argument, not both", name)
	}
	*dst = strings.Join(args, " ")
	return nil
}

func usage(p commands.Params) string {
	switch p.(type) {
	case *commands.SearchParams, *commands.DiffParams:
		return " [pattern]"
	case *commands.QueryParams:
		return " [query...]"
	case *commands.ExprParams:
		return " [expression...]"
	case *commands.IndexParams:
		return " [paths...]"
	}
	return ""
}
