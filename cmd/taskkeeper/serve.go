package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the task supervisor and its HTTP API",
		Long: `Run the task supervisor. The housekeeper sweeps terminated tasks away
and restarts the ones stopped for a restart while the HTTP API lists tasks,
launches demonstration tasks and asks tasks to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, c)
		},
	}
}

func runServe(ctx context.Context, c *cli) error {
	c.logger.Info("Taskkeeper starting...",
		"port", c.cfg.Server.Port,
		"history_driver", c.cfg.History.Driver,
		"pool_size", c.cfg.Pool.Size)

	app, err := newApplication(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}

	app.housekeeper.Start()
	return app.startHTTPServer(ctx, app.setupRouter())
}
