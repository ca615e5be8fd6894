package cli

import (
	"github.com/spf13/cobra"

	"github.com/dshills/codescope/internal/commands"
	"github.com/dshills/codescope/internal/daemon"
	"github.com/dshills/codescope/internal/mcp"
)

func daemonCommand(e *env) *cobra.Command {
	var bind string
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Keep the index of the root live and answer commands over TCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cfg, err := e.app(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			d, err := a.NewDaemon(cfg.DefaultRoot, bind, noWatch)
			if err != nil {
				return err
			}
			return d.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "address to listen on (default daemon.bind from config)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not watch the root; reindex only on request")
	return cmd
}

func statusCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := e.load()
			if err != nil {
				return err
			}
			addr := e.daemon
			if addr == "" {
				addr = cfg.Daemon.Bind
			}
			c, err := daemon.Dial(cmd.Context(), addr)
			if err != nil {
				return err
			}
			defer c.Close()
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			return commands.Render(e.stdout, e.output, st)
		},
	}
}

func mcpCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the tools over the Model Context Protocol on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cfg, err := e.app(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			s, err := mcp.NewServer(a, e.logger(cfg))
			if err != nil {
				return err
			}
			return s.Serve(cmd.Context())
		},
	}
}
