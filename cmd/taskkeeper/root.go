package main

import (
	"fmt"
	"log/slog"

	"github.com/digiflow/taskkeeper/internal/config"
	"github.com/digiflow/taskkeeper/internal/platform/logger"
	"github.com/spf13/cobra"
)

// cli carries what the root command prepares for its subcommands
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "taskkeeper",
		Short:         "Supervisor for long running background tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "",
		"Path to the configuration file (default ./taskkeeper.yaml or /etc/taskkeeper/taskkeeper.yaml)")

	root.AddCommand(
		newServeCmd(c),
		newHistoryCmd(c),
		newMigrateCmd(c),
		newTokenCmd(c),
		newProgressCmd(c),
	)
	return root
}

// load reads the configuration and sets up the process-wide logger
func (c *cli) load() error {
	if c.cfg != nil {
		return nil
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	c.cfg = cfg
	c.logger = log
	return nil
}
