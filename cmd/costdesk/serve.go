package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/costdesk/pkg/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local HTTP front and the upload poll loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if listen != "" {
				a.cfg.Serve.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			u, err := a.uploads(ctx)
			if err != nil {
				return err
			}

			srv := server.New(a.cfg.Serve.Listen, a.cfg.Upload.MaxBytes, a.assistant, a.quota, u, a.log.Named("server"))
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides serve.listen)")
	return cmd
}
