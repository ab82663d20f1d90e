package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/costdesk/pkg/mcp"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve costdesk tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var mopts []mcp.Option
			if u, err := a.uploads(ctx); err != nil {
				a.log.Warn("object store unavailable, file tools disabled", zap.Error(err))
			} else {
				mopts = append(mopts, mcp.WithUploads(u))
			}
			if a.activity != nil {
				mopts = append(mopts, mcp.WithActivity(a.activity))
			}

			srv := mcp.New(a.assistant, a.quota, version, a.log.Named("mcp"), mopts...)
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
