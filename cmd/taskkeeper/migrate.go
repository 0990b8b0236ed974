package main

import (
	"fmt"

	"github.com/digiflow/taskkeeper/internal/config"
	"github.com/digiflow/taskkeeper/internal/platform/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate {up|down|status|version}",
		Short:     "Run the postgres history schema migrations",
		Long:      "Run the postgres history schema migrations. The sqlite driver creates its schema on open.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{postgres.MigrateUp, postgres.MigrateDown, postgres.MigrateStatus, postgres.MigrateVersion},
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.History.Driver != config.HistoryDriverPostgres {
				return fmt.Errorf("migrations apply to the postgres history driver, configured driver is %q",
					c.cfg.History.Driver)
			}

			db, err := postgres.Open(cmd.Context(), c.cfg.History.DSN)
			if err != nil {
				return fmt.Errorf("failed to open database connection: %w", err)
			}
			defer db.Close()

			if err := postgres.Migrate(cmd.Context(), db, args[0], c.logger); err != nil {
				return fmt.Errorf("migration %s failed: %w", args[0], err)
			}
			c.logger.Info("migration command completed", "command", args[0])
			return nil
		},
	}
}
